package config

// Default values, applied as the lowest configuration layer.
const (
	DefaultRancherClusterName = "local"
	DefaultVIPNamespace       = "harvester-system"
	DefaultVIPConfigMap       = "vip"
	DefaultCloudProviderRole  = "harvesterhci.io:cloudprovider"
	DefaultPollInterval       = "1s"
	DefaultReadyTimeout       = "30m"
)

// Defaults returns the tree every run starts from. Any layer above it may
// override single keys of its sections thanks to the one-level merge.
func Defaults() Tree {
	return Tree{
		"rancher": map[string]any{
			"cluster_name": DefaultRancherClusterName,
			"tls_verify":   false,
		},
		"harvester": map[string]any{
			"vip_namespace":       DefaultVIPNamespace,
			"vip_config_map":      DefaultVIPConfigMap,
			"cloud_provider_role": DefaultCloudProviderRole,
		},
		"kubernetes": map[string]any{
			"rke2_provisioned_install": false,
			"install_harvester_csi":    false,
		},
		"poll_interval": DefaultPollInterval,
		"ready_timeout": DefaultReadyTimeout,
		"dry_run":       false,
	}
}

package config

import "time"

// Config is the typed view of a composed configuration tree. Only the keys
// the provisioners act on are modelled; templates read the raw tree.
type Config struct {
	APIToken string `mapstructure:"api_token"`

	Rancher    RancherConfig    `mapstructure:"rancher"`
	Harvester  HarvesterConfig  `mapstructure:"harvester"`
	Cluster    ClusterConfig    `mapstructure:"cluster"`
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`
	Machines   MachinesConfig   `mapstructure:"machines"`

	// PollInterval is the pause between cluster readiness checks.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// ReadyTimeout bounds the readiness wait. Zero waits until cancelled.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`

	DryRun bool `mapstructure:"dry_run"`
}

// RancherConfig locates the cluster-management API.
type RancherConfig struct {
	Hostname string `mapstructure:"hostname"`

	// ClusterName is the management cluster that holds provisioning
	// clusters, usually "local".
	ClusterName string `mapstructure:"cluster_name"`

	TLSVerify bool `mapstructure:"tls_verify"`
}

// HarvesterConfig names the Harvester cluster as registered in Rancher and
// the objects the storage cloud-config is derived from.
type HarvesterConfig struct {
	ClusterName       string `mapstructure:"cluster_name"`
	VIPNamespace      string `mapstructure:"vip_namespace"`
	VIPConfigMap      string `mapstructure:"vip_config_map"`
	CloudProviderRole string `mapstructure:"cloud_provider_role"`
}

// ClusterConfig is the part of the blueprint's cluster section the
// provisioners need. The rest is only consumed by the cluster template.
type ClusterConfig struct {
	Name string `mapstructure:"name"`
}

// KubernetesConfig holds the install feature toggles.
type KubernetesConfig struct {
	RKE2ProvisionedInstall bool `mapstructure:"rke2_provisioned_install"`
	InstallHarvesterCSI    bool `mapstructure:"install_harvester_csi"`
}

// MachinesConfig describes the VMs to provision and the catalogs they
// reference.
type MachinesConfig struct {
	Namespace            string                    `mapstructure:"namespace"`
	TemplateImageName    string                    `mapstructure:"template_image_name"`
	TemplateImageNameGPU string                    `mapstructure:"template_image_name_gpu"`
	PCIDevices           map[string]PCIDeviceClass `mapstructure:"pcidevices"`
	VMs                  []VM                      `mapstructure:"vms"`
}

// PCIDeviceClass is a catalog entry: a logical device name mapped to the
// physical bus addresses that satisfy it.
type PCIDeviceClass struct {
	Address []string `mapstructure:"address"`
}

// VM is one entry of machines.vms.
type VM struct {
	Name          string      `mapstructure:"name"`
	HarvesterNode string      `mapstructure:"harvester_node"`
	Role          []string    `mapstructure:"role"`
	Type          string      `mapstructure:"type"`
	PCIDevices    []string    `mapstructure:"pcidevices"`
	ExtraDisks    []ExtraDisk `mapstructure:"extra_disks"`
	DiskSize      int         `mapstructure:"disk_size"`

	// Spec is the raw descriptor as written in the blueprint, handed to
	// templates as-is.
	Spec map[string]any `mapstructure:"-"`
}

// ExtraDisk is an additional data disk of a VM.
type ExtraDisk struct {
	DiskSize     int    `mapstructure:"disk_size"`
	StorageClass string `mapstructure:"storageclass"`
}

// VMTypeGPU selects the GPU template image.
const VMTypeGPU = "gpu"

// IsGPU reports whether the VM should boot from the GPU template image.
func (v VM) IsGPU() bool {
	return v.Type == VMTypeGPU
}

// ImageName returns the template image display name for vm.
func (m MachinesConfig) ImageName(vm VM) string {
	if vm.IsGPU() {
		return m.TemplateImageNameGPU
	}
	return m.TemplateImageName
}

// NeedsClusterName reports whether some step of the run addresses the
// downstream cluster by name.
func (c *Config) NeedsClusterName(provisionCluster bool) bool {
	return provisionCluster || c.Kubernetes.RKE2ProvisionedInstall || c.Kubernetes.InstallHarvesterCSI
}

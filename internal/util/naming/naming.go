package naming

import "fmt"

// Naming functions for VM and storage cloud-config resources.

func Disk(vm string, ordinal int) string {
	return fmt.Sprintf("%s-disk-%d", vm, ordinal)
}

func OSDisk(vm string) string {
	return Disk(vm, 0)
}

func CloudInitSecret(vm string) string {
	return fmt.Sprintf("%s-cloudinit", vm)
}

func CloudProviderRoleBinding(namespace, serviceAccount string) string {
	return fmt.Sprintf("%s-%s", namespace, serviceAccount)
}

func ServiceAccountToken(serviceAccount string) string {
	return fmt.Sprintf("%s-token", serviceAccount)
}

// KubeconfigContext names both the context and the user of a generated
// storage cloud-config kubeconfig.
func KubeconfigContext(serviceAccount, namespace, cluster string) string {
	return fmt.Sprintf("%s-%s-%s", serviceAccount, namespace, cluster)
}

// ImageID is the namespace/name reference Harvester stores in the
// harvesterhci.io/imageId annotation.
func ImageID(namespace, name string) string {
	return fmt.Sprintf("%s/%s", namespace, name)
}

// VIPEndpoint is the Harvester API endpoint behind a virtual IP.
func VIPEndpoint(ip string) string {
	return fmt.Sprintf("https://%s:6443", ip)
}

// Package harvester resolves blueprint references against a live Harvester
// cluster: PCI passthrough devices by bus address, OS disk images by display
// name, and the service-account kubeconfig handed to the Harvester storage
// and cloud provider of a downstream cluster.
package harvester

// Package naming provides consistent naming functions for the resources
// created while provisioning Harvester VMs.
//
// Disk claims follow {vm}-disk-{n} with the OS disk at n=0; cloud-init
// secrets follow {vm}-cloudinit. Storage cloud-config objects derive from
// the machines namespace and the downstream cluster name.
package naming

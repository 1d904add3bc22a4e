// Package provisioning runs a provisioning pass over a composed blueprint.
//
// # Phases
//
//   - cluster: submits the downstream cluster to the management cluster and
//     waits until its control plane is bootstrapped and waiting for nodes.
//   - vms: resolves each VM's devices and disks, renders its manifests and
//     applies the cloud-init secret and the VirtualMachine to Harvester.
//
// # Core Types
//
// Context carries the composed configuration, the clients, run options and
// State. Phase is a provisioning step with Name() and Provision() methods.
// State accumulates the cluster outcome and one VMResult per VM.
package provisioning

package harvester

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/util/labels"
)

// DeviceRef is a PCI device passed through to a VM. Name is the PCIDevice
// object, DeviceName the resource name it is allocated as.
type DeviceRef struct {
	Name       string `json:"name"`
	DeviceName string `json:"deviceName"`
}

// Inventory is the PCI devices of one Harvester node.
type Inventory []unstructured.Unstructured

// NodeInventory lists the PCI devices of node.
func NodeInventory(ctx context.Context, lister Lister, node string) (Inventory, error) {
	list, err := lister.List(ctx, PCIDeviceGVR, "", labels.SelectorForNode(node))
	if err != nil {
		return nil, fmt.Errorf("failed to list PCI devices of node %s: %w", node, err)
	}
	return Inventory(list.Items), nil
}

// FindPCIDeviceByAddress returns the device at the given bus address.
// Devices without an address are ignored.
func FindPCIDeviceByAddress(inv Inventory, address string) (DeviceRef, bool) {
	for i := range inv {
		device := &inv[i]
		found, ok, _ := unstructured.NestedString(device.Object, "status", "address")
		if !ok || found != address {
			continue
		}
		resourceName, _, _ := unstructured.NestedString(device.Object, "status", "resourceName")
		return DeviceRef{Name: device.GetName(), DeviceName: resourceName}, true
	}
	return DeviceRef{}, false
}

// ResolvePCIDevices resolves the wanted catalog entries to devices of the
// inventory. Entries missing from the catalog and addresses missing from the
// inventory are left out and reported as warnings.
func ResolvePCIDevices(inv Inventory, wanted []string, catalog map[string]config.PCIDeviceClass) ([]DeviceRef, []string) {
	var (
		refs     []DeviceRef
		warnings []string
	)
	for _, name := range wanted {
		class, ok := catalog[name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("pci device %q is not defined in machines.pcidevices", name))
			continue
		}
		if len(class.Address) == 0 {
			warnings = append(warnings, fmt.Sprintf("pci device %q has no addresses", name))
			continue
		}
		for _, address := range class.Address {
			ref, found := FindPCIDeviceByAddress(inv, address)
			if !found {
				warnings = append(warnings, fmt.Sprintf("pci device %q: no device at address %s", name, address))
				continue
			}
			refs = append(refs, ref)
		}
	}
	return refs, warnings
}

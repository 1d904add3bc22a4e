package harvester

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Harvester custom resources.
var (
	PCIDeviceGVR = schema.GroupVersionResource{
		Group:    "devices.harvesterhci.io",
		Version:  "v1beta1",
		Resource: "pcidevices",
	}
	VirtualMachineImageGVR = schema.GroupVersionResource{
		Group:    "harvesterhci.io",
		Version:  "v1beta1",
		Resource: "virtualmachineimages",
	}
)

// Lister lists custom resources by label selector. An empty namespace lists
// across all namespaces.
type Lister interface {
	List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error)
}

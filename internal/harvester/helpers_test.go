package harvester

import (
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/restmapper"

	"github.com/prh-io/prh/internal/k8sclient"
)

func pciDevice(name, node, address, resourceName string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"status": map[string]any{"address": address, "resourceName": resourceName, "nodeName": node},
	}}
	u.SetAPIVersion("devices.harvesterhci.io/v1beta1")
	u.SetKind("PCIDevice")
	u.SetName(name)
	u.SetLabels(map[string]string{"nodename": node})
	return u
}

func vmImage(namespace, name, displayName, storageClass string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"status": map[string]any{"storageClassName": storageClass},
	}}
	u.SetAPIVersion("harvesterhci.io/v1beta1")
	u.SetKind("VirtualMachineImage")
	u.SetNamespace(namespace)
	u.SetName(name)
	u.SetLabels(map[string]string{"harvesterhci.io/imageDisplayName": displayName})
	return u
}

// newFakeHarvester returns a k8sclient backed by fakes, seeded with custom
// resources and core objects.
func newFakeHarvester(t *testing.T, custom []runtime.Object, core ...runtime.Object) (k8sclient.Client, *fake.Clientset) {
	t.Helper()

	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))

	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
		map[schema.GroupVersionResource]string{
			PCIDeviceGVR:           "PCIDeviceList",
			VirtualMachineImageGVR: "VirtualMachineImageList",
		},
		custom...,
	)

	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	clientset := fake.NewSimpleClientset(core...)

	return k8sclient.NewFromClients(clientset, dyn, restmapper.NewDiscoveryRESTMapper(nil)), clientset
}

package provisioning

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/restmapper"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/harvester"
	"github.com/prh-io/prh/internal/k8sclient"
	"github.com/prh-io/prh/internal/manifests"
)

// applyCall is one recorded Apply.
type applyCall struct {
	Kind      string
	Name      string
	Namespace string
	Update    bool
	Manifest  *unstructured.Unstructured
}

// recordingHarvester serves reads from client-go fakes and records applies
// instead of performing them.
type recordingHarvester struct {
	k8sclient.Client

	mu       sync.Mutex
	calls    []applyCall
	existing map[string]bool
	lists    map[string]int
}

func (h *recordingHarvester) List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error) {
	h.mu.Lock()
	if h.lists == nil {
		h.lists = map[string]int{}
	}
	h.lists[gvr.Resource]++
	h.mu.Unlock()
	return h.Client.List(ctx, gvr, namespace, labelSelector)
}

func (h *recordingHarvester) Apply(_ context.Context, manifest any, namespace string, opts k8sclient.ApplyOptions) (k8sclient.Outcome, error) {
	obj, err := k8sclient.ToUnstructured(manifest)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, applyCall{
		Kind:      obj.GetKind(),
		Name:      obj.GetName(),
		Namespace: namespace,
		Update:    opts.Update,
		Manifest:  obj,
	})

	switch {
	case !h.existing[obj.GetName()]:
		return k8sclient.OutcomeCreated, nil
	case opts.Update:
		return k8sclient.OutcomeUpdated, nil
	default:
		return k8sclient.OutcomeExists, nil
	}
}

func (h *recordingHarvester) kinds() []string {
	kinds := make([]string, 0, len(h.calls))
	for _, c := range h.calls {
		kinds = append(kinds, c.Kind+"/"+c.Name)
	}
	return kinds
}

func image(name, displayName, storageClass string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"status": map[string]any{"storageClassName": storageClass},
	}}
	u.SetAPIVersion("harvesterhci.io/v1beta1")
	u.SetKind("VirtualMachineImage")
	u.SetNamespace("default")
	u.SetName(name)
	u.SetLabels(map[string]string{"harvesterhci.io/imageDisplayName": displayName})
	return u
}

func pciDevice(name, node, address, resourceName string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"status": map[string]any{"address": address, "resourceName": resourceName},
	}}
	u.SetAPIVersion("devices.harvesterhci.io/v1beta1")
	u.SetKind("PCIDevice")
	u.SetName(name)
	u.SetLabels(map[string]string{"nodename": node})
	return u
}

// newHarvester returns a recording Harvester client holding an Ubuntu image,
// no GPU image and one GPU on hv-node-2.
func newHarvester(t *testing.T, core ...runtime.Object) (*recordingHarvester, *fake.Clientset) {
	t.Helper()

	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
		map[schema.GroupVersionResource]string{
			harvester.PCIDeviceGVR:           "PCIDeviceList",
			harvester.VirtualMachineImageGVR: "VirtualMachineImageList",
		},
		image("image-ubuntu", "ubuntu-22.04", "longhorn-image-ubuntu"),
		pciDevice("hv-node-2-3b000", "hv-node-2", "0000:3b:00.0", "nvidia.com/GA102GL"),
	)

	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	clientset := fake.NewSimpleClientset(core...)

	return &recordingHarvester{
		Client:   k8sclient.NewFromClients(clientset, dyn, restmapper.NewDiscoveryRESTMapper(nil)),
		existing: map[string]bool{},
	}, clientset
}

// countingRenderer counts renders per template.
type countingRenderer struct {
	*manifests.Renderer

	mu     sync.Mutex
	counts map[string]int
}

func newCountingRenderer() *countingRenderer {
	return &countingRenderer{Renderer: manifests.NewRenderer(""), counts: map[string]int{}}
}

func (r *countingRenderer) Render(name string, data map[string]any) (string, error) {
	r.mu.Lock()
	r.counts[name]++
	r.mu.Unlock()
	return r.Renderer.Render(name, data)
}

func (r *countingRenderer) total() int {
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

type fakeRancher struct {
	command string
	err     error
	calls   []string
}

func (f *fakeRancher) NodeCommand(_ context.Context, clusterName string) (string, error) {
	f.calls = append(f.calls, clusterName)
	return f.command, f.err
}

func baseConfig() config.Tree {
	return config.Merge(config.Defaults(), config.Tree{
		"api_token":     "token-xyz",
		"rancher":       map[string]any{"hostname": "rancher.example.org"},
		"harvester":     map[string]any{"cluster_name": "harvester"},
		"poll_interval": "1ms",
		"machines": map[string]any{
			"template_image_name":     "ubuntu-22.04",
			"template_image_name_gpu": "ubuntu-22.04-nvidia",
			"pcidevices": map[string]any{
				"gpu": map[string]any{"address": []any{"0000:3b:00.0", "0000:af:00.0"}},
			},
		},
	})
}

func vmSpec(name, node string, extra map[string]any) map[string]any {
	spec := map[string]any{
		"name":           name,
		"harvester_node": node,
		"role":           []any{"worker"},
		"disk_size":      40,
	}
	for k, v := range extra {
		spec[k] = v
	}
	return spec
}

func blueprint(kubernetes map[string]any, vms ...map[string]any) config.Tree {
	list := make([]any, 0, len(vms))
	for _, vm := range vms {
		list = append(list, vm)
	}
	return config.Tree{
		"kubernetes": kubernetes,
		"machines": map[string]any{
			"namespace": "vms",
			"vms":       list,
		},
	}
}

func compose(t *testing.T, bp config.Tree) *config.Document {
	t.Helper()

	doc, err := config.Compose(baseConfig(), bp)
	require.NoError(t, err)
	return doc
}

// newRun builds a provisioning context for doc with a recording Harvester.
func newRun(t *testing.T, doc *config.Document, opts Options, core ...runtime.Object) (*Context, *recordingHarvester, *countingRenderer, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	if opts.Out == nil {
		opts.Out = &out
	}
	renderer := newCountingRenderer()
	h, _ := newHarvester(t, core...)

	ctx := NewContext(context.Background(), doc, renderer, opts)
	ctx.Harvester = h
	return ctx, h, renderer, &out
}

func vipConfigMap() *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "vip", Namespace: "harvester-system"},
		Data:       map[string]string{"ip": "10.0.0.5"},
	}
}

func tokenSecret(namespace, serviceAccount string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: serviceAccount + "-token", Namespace: namespace},
		Type:       corev1.SecretTypeServiceAccountToken,
		Data: map[string][]byte{
			corev1.ServiceAccountTokenKey:  []byte("sa-token"),
			corev1.ServiceAccountRootCAKey: []byte("ca"),
		},
	}
}

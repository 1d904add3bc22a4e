package k8sclient

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// Client provides the Kubernetes operations used during provisioning.
type Client interface {
	// Apply creates a single manifest. The manifest may be YAML or JSON text
	// ([]byte or string), a map or an *unstructured.Unstructured. namespace
	// is used for namespaced objects that do not name their own.
	//
	// An object that already exists is not an error: the outcome is
	// OutcomeExists, or OutcomeUpdated when opts.Update is set.
	Apply(ctx context.Context, manifest any, namespace string, opts ApplyOptions) (Outcome, error)

	// Get fetches a custom resource. Cluster-scoped resources use an empty
	// namespace.
	Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error)

	// List lists custom resources matching labelSelector. An empty namespace
	// lists across all namespaces.
	List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error)

	// EnsureNamespace creates the namespace unless it exists.
	EnsureNamespace(ctx context.Context, name string) error

	// EnsureServiceAccount creates the service account unless it exists and
	// returns the stored object.
	EnsureServiceAccount(ctx context.Context, namespace, name string) (*corev1.ServiceAccount, error)

	// EnsureClusterRoleBinding binds a ClusterRole to a service account inside
	// namespace with a RoleBinding, unless the binding exists.
	EnsureClusterRoleBinding(ctx context.Context, namespace, name, clusterRole, serviceAccount string) error

	// EnsureServiceAccountToken creates a long-lived token secret owned by sa,
	// unless it exists.
	EnsureServiceAccountToken(ctx context.Context, name string, sa *corev1.ServiceAccount) error

	// GetSecret reads a secret.
	GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error)

	// GetConfigMap reads a config map.
	GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error)
}

// client implements the Client interface using k8s.io/client-go.
type client struct {
	clientset     kubernetes.Interface
	dynamicClient dynamic.Interface
	mapper        meta.RESTMapper
}

// NewFromKubeconfig creates a Client from kubeconfig bytes.
// This avoids the need to write kubeconfig to a temporary file.
func NewFromKubeconfig(kubeconfig []byte) (Client, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	// Discovery is deferred until the first manifest is applied, so building
	// a client for a cluster that is still bootstrapping does not fail.
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))

	return &client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		mapper:        mapper,
	}, nil
}

// NewFromClients creates a Client from pre-configured clients.
// This is useful for testing with fake clients.
func NewFromClients(
	clientset kubernetes.Interface,
	dynamicClient dynamic.Interface,
	mapper meta.RESTMapper,
) Client {
	return &client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		mapper:        mapper,
	}
}

// Get fetches a single custom resource.
func (c *client) Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error) {
	var (
		obj *unstructured.Unstructured
		err error
	)
	if namespace == "" {
		obj, err = c.dynamicClient.Resource(gvr).Get(ctx, name, getOptions)
	} else {
		obj, err = c.dynamicClient.Resource(gvr).Namespace(namespace).Get(ctx, name, getOptions)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", gvr.Resource, qualifiedName(namespace, name), err)
	}
	return obj, nil
}

// List lists custom resources matching a label selector.
func (c *client) List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error) {
	opts := listOptions(labelSelector)

	var (
		list *unstructured.UnstructuredList
		err  error
	)
	if namespace == "" {
		list, err = c.dynamicClient.Resource(gvr).List(ctx, opts)
	} else {
		list, err = c.dynamicClient.Resource(gvr).Namespace(namespace).List(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s (selector %q): %w", gvr.Resource, labelSelector, err)
	}
	return list, nil
}

func qualifiedName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

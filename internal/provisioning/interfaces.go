package provisioning

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/prh-io/prh/internal/harvester"
	"github.com/prh-io/prh/internal/k8sclient"
)

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// Applier submits rendered manifests. Implemented by k8sclient.Client.
type Applier interface {
	Apply(ctx context.Context, manifest any, namespace string, opts k8sclient.ApplyOptions) (k8sclient.Outcome, error)
}

// ResourceGetter reads a single custom resource. Implemented by k8sclient.Client.
type ResourceGetter interface {
	Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error)
}

// ManagementClient talks to the Rancher management cluster, which holds the
// provisioning cluster objects.
type ManagementClient interface {
	Applier
	ResourceGetter
}

// HarvesterClient talks to the Harvester cluster the VMs run on.
type HarvesterClient interface {
	Applier
	harvester.Lister
	harvester.CloudConfigClient
}

// NodeCommander returns the node registration command of a downstream
// cluster. Implemented by rancher.Client.
type NodeCommander interface {
	NodeCommand(ctx context.Context, clusterName string) (string, error)
}

// Renderer renders named manifest templates. Implemented by manifests.Renderer.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

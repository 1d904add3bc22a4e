package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/k8sclient"
	"github.com/prh-io/prh/internal/manifests"
)

// ClusterGVR is the Rancher provisioning cluster resource.
var ClusterGVR = schema.GroupVersionResource{
	Group:    "provisioning.cattle.io",
	Version:  "v1",
	Resource: "clusters",
}

const (
	// ClusterNamespace holds provisioning clusters on the management cluster.
	ClusterNamespace = "fleet-default"

	// ReadyCondition is the condition the readiness wait inspects.
	ReadyCondition = "Ready"

	// ReadyCheckpointReason is reported on the Ready condition once the
	// control plane is bootstrapped and the cluster waits for nodes to
	// register. VMs must exist before the cluster can get any further.
	ReadyCheckpointReason = "Waiting"
)

// ClusterPhase submits the downstream cluster and waits for its readiness
// checkpoint.
type ClusterPhase struct{}

// NewClusterPhase creates a new cluster phase.
func NewClusterPhase() *ClusterPhase {
	return &ClusterPhase{}
}

// Name implements the Phase interface.
func (p *ClusterPhase) Name() string {
	return "cluster"
}

// Provision implements the Phase interface.
func (p *ClusterPhase) Provision(ctx *Context) error {
	log := logr.FromContextOrDiscard(ctx)
	name := ctx.Config.Cluster.Name

	if ctx.Options.DryRun {
		manifest, err := RenderCluster(ctx.Renderer, ctx.Doc.Tree)
		if err != nil {
			return err
		}
		return writeDryRun(ctx.Options.Out, "", manifest)
	}

	if ctx.Management == nil {
		return errors.New("no management cluster client configured")
	}

	outcome, err := SubmitCluster(ctx, ctx.Renderer, ctx.Management, ctx.Doc.Tree)
	if err != nil {
		return err
	}
	ctx.State.ClusterOutcome = outcome
	log.Info("cluster submitted", "cluster", name, "outcome", outcome)

	return WaitForClusterReady(ctx, ctx.Management, name, ctx.Config.PollInterval, ctx.Config.ReadyTimeout)
}

// RenderCluster renders the cluster manifest from the composed tree.
func RenderCluster(r Renderer, tree config.Tree) (string, error) {
	manifest, err := r.Render(manifests.Cluster, map[string]any{
		"blueprint": map[string]any(tree),
		"namespace": ClusterNamespace,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render cluster manifest: %w", err)
	}
	return manifest, nil
}

// SubmitCluster renders the cluster manifest and applies it to the
// management cluster. A cluster that already exists is left as it is.
func SubmitCluster(ctx context.Context, r Renderer, c Applier, tree config.Tree) (k8sclient.Outcome, error) {
	manifest, err := RenderCluster(r, tree)
	if err != nil {
		return "", err
	}

	outcome, err := c.Apply(ctx, manifest, ClusterNamespace, k8sclient.ApplyOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to submit cluster: %w", err)
	}
	return outcome, nil
}

// WaitForClusterReady polls the named cluster every interval until its
// Ready condition reports the readiness checkpoint. Failed reads, including
// a cluster that does not exist yet, count as not ready. A zero timeout
// waits until ctx is cancelled.
func WaitForClusterReady(ctx context.Context, c ResourceGetter, name string, interval, timeout time.Duration) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("cluster", name)
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempts := 0
	err := wait.PollUntilContextCancel(ctx, interval, true, func(ctx context.Context) (bool, error) {
		attempts++
		cluster, err := c.Get(ctx, ClusterGVR, ClusterNamespace, name)
		if err != nil {
			log.V(1).Info("cluster not readable yet", "attempt", attempts, "reason", err.Error())
			return false, nil
		}

		ready, reason := ReadyCheckpoint(cluster)
		if !ready {
			log.V(1).Info("cluster not at checkpoint yet", "attempt", attempts, "readyReason", reason)
		}
		return ready, nil
	})
	if err != nil {
		return fmt.Errorf("cluster %s did not reach the %q checkpoint after %d checks: %w",
			name, ReadyCheckpointReason, attempts, err)
	}

	log.Info("cluster is waiting for nodes", "checks", attempts)
	return nil
}

// ReadyCheckpoint reports whether cluster's Ready condition carries the
// readiness checkpoint reason. The observed reason is returned either way,
// empty when there is no Ready condition.
func ReadyCheckpoint(cluster *unstructured.Unstructured) (bool, string) {
	conditions, _, _ := unstructured.NestedSlice(cluster.Object, "status", "conditions")
	for _, c := range conditions {
		condition, ok := c.(map[string]any)
		if !ok || condition["type"] != ReadyCondition {
			continue
		}
		reason, _ := condition["reason"].(string)
		return reason == ReadyCheckpointReason, reason
	}
	return false, ""
}

// writeDryRun prints documents as one YAML stream, headed by a separator
// carrying name when set.
func writeDryRun(out io.Writer, name string, documents ...string) error {
	header := "---"
	if name != "" {
		header += " " + name
	}
	if _, err := fmt.Fprintln(out, header); err != nil {
		return err
	}
	for i, doc := range documents {
		if i > 0 {
			if _, err := io.WriteString(out, "---\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(out, ensureNewline(doc)); err != nil {
			return err
		}
	}
	return nil
}

func ensureNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}

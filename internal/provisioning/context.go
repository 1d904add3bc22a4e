package provisioning

import (
	"context"
	"io"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/k8sclient"
)

// Options are the per-run switches taken from the command line.
type Options struct {
	// Update replaces VMs and cloud-init secrets that already exist.
	Update bool

	// VMs restricts an update run to the named VMs. Ignored without Update.
	VMs []string

	// DryRun prints the rendered manifests to Out instead of applying them.
	DryRun bool

	// Out receives dry-run output.
	Out io.Writer
}

// State holds the shared results of provisioning phases.
type State struct {
	// ClusterOutcome is what applying the cluster manifest did. Empty when the
	// blueprint has no cluster section or during a dry run.
	ClusterOutcome k8sclient.Outcome

	// Results holds one entry per processed VM, in blueprint order.
	Results []VMResult
}

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	Doc        *config.Document
	Config     *config.Config
	Options    Options
	Renderer   Renderer
	Management ManagementClient
	Harvester  HarvesterClient
	Rancher    NodeCommander
	State      *State
}

// NewContext creates a new provisioning context. The clients are attached by
// the caller, since which ones a run needs depends on the blueprint.
func NewContext(ctx context.Context, doc *config.Document, renderer Renderer, opts Options) *Context {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Context{
		Context:  ctx,
		Doc:      doc,
		Config:   doc.Config,
		Options:  opts,
		Renderer: renderer,
		State:    &State{},
	}
}

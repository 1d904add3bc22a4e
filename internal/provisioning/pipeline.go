package provisioning

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/prh-io/prh/internal/config"
)

// Pipeline is an ordered list of phases.
type Pipeline struct {
	Phases []Phase
}

// NewPipeline creates a pipeline running phases in order.
func NewPipeline(phases ...Phase) *Pipeline {
	return &Pipeline{Phases: phases}
}

// PhasesFor returns the phases a document asks for: the cluster phase when the
// blueprint has a cluster section, then the VM phase.
func PhasesFor(doc *config.Document) []Phase {
	var phases []Phase
	if doc.ProvisionCluster {
		phases = append(phases, NewClusterPhase())
	}
	return append(phases, NewVMPhase())
}

// Run executes all phases sequentially and stops at the first failure.
func (p *Pipeline) Run(ctx *Context) error {
	parent := ctx.Context
	defer func() { ctx.Context = parent }()

	log := logr.FromContextOrDiscard(parent)
	start := time.Now()
	log.Info("starting provisioning", "phases", len(p.Phases), "dryRun", ctx.Options.DryRun)

	for i, phase := range p.Phases {
		phaseStart := time.Now()
		phaseLog := log.WithValues("phase", phase.Name(), "step", fmt.Sprintf("%d/%d", i+1, len(p.Phases)))
		phaseLog.Info("phase started")
		ctx.Context = logr.NewContext(parent, phaseLog)

		if err := phase.Provision(ctx); err != nil {
			phaseLog.Error(err, "phase failed")
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}

		phaseLog.Info("phase completed", "duration", time.Since(phaseStart).Round(time.Millisecond))
	}

	log.Info("provisioning completed", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

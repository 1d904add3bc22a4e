// Package handlers implements the commands of the prh CLI.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/k8sclient"
	"github.com/prh-io/prh/internal/logging"
	"github.com/prh-io/prh/internal/manifests"
	"github.com/prh-io/prh/internal/platform/rancher"
	"github.com/prh-io/prh/internal/provisioning"
)

// ProvisionOptions are the command-line inputs of a provisioning run.
type ProvisionOptions struct {
	Blueprint     string
	Update        bool
	VMs           []string
	DryRun        bool
	LogLevel      string
	LogFile       string
	ConfigDir     string
	BlueprintsDir string
	TemplatesDir  string
}

// RancherAPI is the part of the Rancher API a run needs: kubeconfigs for the
// clusters it talks to and the node registration command for new VMs.
type RancherAPI interface {
	Kubeconfig(ctx context.Context, clusterName string) ([]byte, error)
	provisioning.NodeCommander
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newRancherClient creates a Rancher API client.
	newRancherClient = func(hostname, apiToken string, tlsVerify bool) RancherAPI {
		return rancher.NewClient(hostname, apiToken, tlsVerify)
	}

	// newK8sClient creates a Kubernetes client from kubeconfig data.
	newK8sClient = k8sclient.NewFromKubeconfig

	// environ returns the environment the PRH_ configuration overlay is read from.
	environ = os.Environ

	// stdout receives dry-run output.
	stdout io.Writer = os.Stdout

	// stderr receives logs when no log file is configured.
	stderr io.Writer = os.Stderr
)

// Provision composes the configuration with the named blueprint and runs the
// provisioning pipeline: the downstream cluster when the blueprint defines
// one, then its VMs on Harvester.
//
// A dry run still reads from Harvester to resolve images and PCI devices,
// but changes nothing and prints the manifests to stdout instead.
func Provision(ctx context.Context, opts ProvisionOptions) (err error) {
	log, closer, err := logging.New(opts.LogLevel, opts.LogFile, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close log file: %w", cerr)
		}
	}()
	ctx = logr.NewContext(ctx, log.WithValues("blueprint", opts.Blueprint))

	doc, err := loadDocument(ctx, opts)
	if err != nil {
		return err
	}
	cfg := doc.Config

	pctx := provisioning.NewContext(ctx, doc, manifests.NewRenderer(opts.TemplatesDir), provisioning.Options{
		Update: opts.Update,
		VMs:    opts.VMs,
		DryRun: opts.DryRun || cfg.DryRun,
		Out:    stdout,
	})

	rc := newRancherClient(cfg.Rancher.Hostname, cfg.APIToken, cfg.Rancher.TLSVerify)
	pctx.Rancher = rc

	if pctx.Harvester, err = clusterClient(ctx, rc, cfg.Harvester.ClusterName); err != nil {
		return fmt.Errorf("failed to connect to Harvester: %w", err)
	}
	if doc.ProvisionCluster && !pctx.Options.DryRun {
		if pctx.Management, err = clusterClient(ctx, rc, cfg.Rancher.ClusterName); err != nil {
			return fmt.Errorf("failed to connect to the management cluster: %w", err)
		}
	}

	runErr := provisioning.NewPipeline(provisioning.PhasesFor(doc)...).Run(pctx)
	report(ctx, pctx.State)
	return runErr
}

// loadDocument reads the configuration directory and the blueprint and
// composes them. Unreadable configuration files are logged and skipped.
func loadDocument(ctx context.Context, opts ProvisionOptions) (*config.Document, error) {
	log := logr.FromContextOrDiscard(ctx)

	tree, skipped, err := config.Load(opts.ConfigDir, environ())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, e := range skipped {
		log.Error(e.Err, "skipping configuration file", "file", e.Path)
	}

	blueprint, err := config.LoadBlueprint(opts.BlueprintsDir, opts.Blueprint)
	if err != nil {
		return nil, err
	}

	return config.Compose(tree, blueprint)
}

// clusterClient builds a Kubernetes client for a Rancher-managed cluster
// from the kubeconfig Rancher generates for it.
func clusterClient(ctx context.Context, rc RancherAPI, clusterName string) (k8sclient.Client, error) {
	kubeconfig, err := rc.Kubeconfig(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	if len(kubeconfig) == 0 {
		return nil, fmt.Errorf("rancher returned no kubeconfig for cluster %s", clusterName)
	}
	return newK8sClient(kubeconfig)
}

// report logs the outcome of every processed VM.
func report(ctx context.Context, state *provisioning.State) {
	log := logr.FromContextOrDiscard(ctx)
	for _, r := range state.Results {
		switch {
		case r.Err != nil:
			log.Info("VM summary", "vm", r.Name, "status", "failed", "error", r.Err.Error())
		case r.Skipped():
			log.Info("VM summary", "vm", r.Name, "status", "skipped", "warnings", len(r.Warnings))
		default:
			log.Info("VM summary", "vm", r.Name, "status", "done", "manifests", len(r.Applied), "warnings", len(r.Warnings))
		}
	}
}

package provisioning

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"

	"github.com/prh-io/prh/internal/config"
	"github.com/prh-io/prh/internal/harvester"
	"github.com/prh-io/prh/internal/k8sclient"
	"github.com/prh-io/prh/internal/manifests"
	"github.com/prh-io/prh/internal/util/naming"
)

// Placeholders rendered during a dry run for values that can only be
// produced by talking to, or changing, the live clusters.
const (
	DryRunNodeCommand    = "<node-command>"
	DryRunCSICloudConfig = "# storage cloud-config is generated on a real run\n"
)

// AppliedManifest records what applying one manifest did.
type AppliedManifest struct {
	Kind    string
	Name    string
	Outcome k8sclient.Outcome
}

// VMResult reports how one VM was processed.
type VMResult struct {
	Name string

	// Applied lists the manifests in apply order. Empty on a dry run.
	Applied []AppliedManifest

	// Warnings lists what was left out of the VM, such as PCI devices that
	// could not be found on its node.
	Warnings []string

	// Err is set when the VM could not be provisioned.
	Err error
}

// Skipped reports whether the VM already existed and was left untouched.
func (r VMResult) Skipped() bool {
	for _, m := range r.Applied {
		if m.Kind == "VirtualMachine" {
			return m.Outcome == k8sclient.OutcomeExists
		}
	}
	return false
}

// VMPhase provisions the VMs of the blueprint on Harvester.
type VMPhase struct{}

// NewVMPhase creates a new VM phase.
func NewVMPhase() *VMPhase {
	return &VMPhase{}
}

// Name implements the Phase interface.
func (p *VMPhase) Name() string {
	return "vms"
}

// shared holds the per-run inputs common to all VMs.
type shared struct {
	nodeCommand    string
	csiCloudConfig string
}

// Provision implements the Phase interface. VMs are processed one at a time
// in blueprint order; a failing VM does not stop the others and all failures
// are returned together.
func (p *VMPhase) Provision(ctx *Context) error {
	log := logr.FromContextOrDiscard(ctx)
	if ctx.Harvester == nil {
		return errors.New("no Harvester client configured")
	}

	vms := selectVMs(ctx)
	if len(vms) == 0 {
		log.Info("no VMs to provision")
		return nil
	}

	in, err := prepare(ctx)
	if err != nil {
		return err
	}

	inventories := make(nodeInventories)
	var errs error
	for _, vm := range vms {
		result := provisionVM(ctx, vm, in, inventories)
		ctx.State.Results = append(ctx.State.Results, result)
		if result.Err != nil {
			log.Error(result.Err, "VM failed", "vm", vm.Name)
			errs = multierr.Append(errs, fmt.Errorf("vm %s: %w", vm.Name, result.Err))
		}
	}
	return errs
}

// selectVMs applies the --vms allow-list, which only narrows update runs.
func selectVMs(ctx *Context) []config.VM {
	log := logr.FromContextOrDiscard(ctx)
	all := ctx.Config.Machines.VMs
	filter := ctx.Options.VMs
	if len(filter) == 0 {
		return all
	}
	if !ctx.Options.Update {
		log.Info("VM filter only applies to update runs, provisioning all VMs", "warning", "ignored filter", "vms", filter)
		return all
	}

	var selected []config.VM
	for _, vm := range all {
		if slices.Contains(filter, vm.Name) {
			selected = append(selected, vm)
		}
	}
	for _, name := range filter {
		if !slices.ContainsFunc(all, func(vm config.VM) bool { return vm.Name == name }) {
			log.Info("VM filter names a VM the blueprint does not define", "warning", "unknown VM", "vm", name)
		}
	}
	return selected
}

// prepare fetches the node registration command and builds the storage
// cloud-config, both shared by every VM of the run.
func prepare(ctx *Context) (shared, error) {
	log := logr.FromContextOrDiscard(ctx)
	cfg := ctx.Config
	var in shared

	if cfg.Kubernetes.RKE2ProvisionedInstall {
		cmd, err := nodeCommand(ctx)
		switch {
		case err == nil:
			in.nodeCommand = cmd
		case ctx.Options.DryRun:
			log.Info("node command unavailable, rendering a placeholder", "warning", err.Error())
			in.nodeCommand = DryRunNodeCommand
		default:
			return in, err
		}
	}

	if cfg.Kubernetes.InstallHarvesterCSI {
		if ctx.Options.DryRun {
			in.csiCloudConfig = DryRunCSICloudConfig
		} else {
			csi, err := harvester.StorageCloudConfig(ctx, ctx.Harvester, harvester.CloudConfigParams{
				Namespace:     cfg.Machines.Namespace,
				ClusterName:   cfg.Cluster.Name,
				ClusterRole:   cfg.Harvester.CloudProviderRole,
				VIPNamespace:  cfg.Harvester.VIPNamespace,
				VIPConfigMap:  cfg.Harvester.VIPConfigMap,
				TokenInterval: cfg.PollInterval,
			})
			if err != nil {
				return in, fmt.Errorf("failed to create storage cloud-config: %w", err)
			}
			in.csiCloudConfig = csi
		}
	}

	return in, nil
}

func nodeCommand(ctx *Context) (string, error) {
	if ctx.Rancher == nil {
		return "", errors.New("no Rancher client configured")
	}
	cmd, err := ctx.Rancher.NodeCommand(ctx, ctx.Config.Cluster.Name)
	if err != nil {
		return "", fmt.Errorf("failed to get node command for cluster %s: %w", ctx.Config.Cluster.Name, err)
	}
	return cmd, nil
}

// renderedVM holds the manifests of one VM.
type renderedVM struct {
	secret         string
	virtualMachine string
}

// nodeInventories holds the PCI inventory of each Harvester node, listed
// the first time a VM on that node asks for PCI devices.
type nodeInventories map[string]harvester.Inventory

func (n nodeInventories) get(ctx *Context, node string) (harvester.Inventory, error) {
	if inv, ok := n[node]; ok {
		return inv, nil
	}
	inv, err := harvester.NodeInventory(ctx, ctx.Harvester, node)
	if err != nil {
		return nil, err
	}
	n[node] = inv
	return inv, nil
}

// provisionVM resolves, renders and applies a single VM.
func provisionVM(ctx *Context, vm config.VM, in shared, inventories nodeInventories) VMResult {
	log := logr.FromContextOrDiscard(ctx).WithValues("vm", vm.Name)
	result := VMResult{Name: vm.Name}

	var devices []harvester.DeviceRef
	if len(vm.PCIDevices) > 0 {
		inv, err := inventories.get(ctx, vm.HarvesterNode)
		if err != nil {
			result.Err = err
			return result
		}
		devices, result.Warnings = harvester.ResolvePCIDevices(inv, vm.PCIDevices, ctx.Config.Machines.PCIDevices)
		for _, w := range result.Warnings {
			log.Info("PCI device left out", "warning", w)
		}
	}

	imageName := ctx.Config.Machines.ImageName(vm)
	disks, err := harvester.Disks(ctx, ctx.Harvester, vm, imageName)
	if err != nil {
		result.Err = err
		return result
	}

	rendered, err := renderVM(ctx.Renderer, ctx.Doc.Tree, ctx.Config.Machines.Namespace, vm, devices, disks, in)
	if err != nil {
		result.Err = err
		return result
	}

	if ctx.Options.DryRun {
		result.Err = writeDryRun(ctx.Options.Out, vm.Name, rendered.secret, rendered.virtualMachine)
		return result
	}

	opts := k8sclient.ApplyOptions{Update: ctx.Options.Update}
	for _, m := range []struct {
		kind, name, manifest string
	}{
		{"Secret", naming.CloudInitSecret(vm.Name), rendered.secret},
		{"VirtualMachine", vm.Name, rendered.virtualMachine},
	} {
		outcome, err := ctx.Harvester.Apply(ctx, m.manifest, ctx.Config.Machines.Namespace, opts)
		if err != nil {
			result.Err = err
			return result
		}
		result.Applied = append(result.Applied, AppliedManifest{Kind: m.kind, Name: m.name, Outcome: outcome})
		log.Info("manifest applied", "kind", m.kind, "name", m.name, "outcome", outcome)
	}

	return result
}

// renderVM renders the VirtualMachine, its cloud-init payloads and the
// cloud-init secret wrapping them.
func renderVM(
	r Renderer,
	tree config.Tree,
	namespace string,
	vm config.VM,
	devices []harvester.DeviceRef,
	disks []corev1.PersistentVolumeClaim,
	in shared,
) (renderedVM, error) {
	spec := vm.Spec
	if spec == nil {
		spec = map[string]any{"name": vm.Name, "harvester_node": vm.HarvesterNode}
	}
	blueprint := map[string]any(tree)
	secretName := naming.CloudInitSecret(vm.Name)

	render := func(name string, data map[string]any) (string, error) {
		out, err := r.Render(name, data)
		if err != nil {
			return "", fmt.Errorf("failed to render %s: %w", name, err)
		}
		return out, nil
	}

	virtualMachine, err := render(manifests.VirtualMachine, map[string]any{
		"blueprint":       blueprint,
		"namespace":       namespace,
		"vm":              spec,
		"disks":           disks,
		"pcidevices":      devices,
		"cloudInitSecret": secretName,
	})
	if err != nil {
		return renderedVM{}, err
	}

	userData, err := render(manifests.UserData, map[string]any{
		"blueprint":      blueprint,
		"vm":             spec,
		"nodeCommand":    in.nodeCommand,
		"role":           RoleFlags(vm.Role),
		"csiCloudConfig": in.csiCloudConfig,
	})
	if err != nil {
		return renderedVM{}, err
	}

	networkData, err := render(manifests.NetworkData, map[string]any{
		"blueprint": blueprint,
		"vm":        spec,
	})
	if err != nil {
		return renderedVM{}, err
	}

	secret, err := render(manifests.CloudInitSecret, map[string]any{
		"blueprint":       blueprint,
		"namespace":       namespace,
		"vm":              spec,
		"cloudInitSecret": secretName,
		"userData":        userData,
		"networkData":     networkData,
	})
	if err != nil {
		return renderedVM{}, err
	}

	return renderedVM{secret: secret, virtualMachine: virtualMachine}, nil
}

// RoleFlags turns role tags into registration command flags, e.g.
// ["etcd", "worker"] becomes "--etcd --worker".
func RoleFlags(roles []string) string {
	flags := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			flags = append(flags, "--"+role)
		}
	}
	return strings.Join(flags, " ")
}

package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Document is a configuration tree composed with a blueprint.
type Document struct {
	// Tree is the merged configuration and blueprint, the data templates see.
	Tree Tree

	// Config is the typed, validated view of Tree.
	Config *Config

	// ProvisionCluster is set when the blueprint carries a cluster section,
	// which asks for the downstream cluster to be provisioned before its VMs.
	ProvisionCluster bool
}

// Compose merges the blueprint over the configuration tree, decodes the
// result and validates it.
func Compose(cfg, blueprint Tree) (*Document, error) {
	merged := Merge(cfg, blueprint)

	decoded, err := Decode(merged)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Tree:             merged,
		Config:           decoded,
		ProvisionCluster: blueprint.Has("cluster"),
	}

	if err := decoded.Validate(doc.ProvisionCluster); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return doc, nil
}

// Decode converts a tree into the typed schema. String values coming from the
// environment are accepted for booleans, numbers and durations.
func Decode(tree Tree) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}

	if err := decoder.Decode(map[string]any(tree)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	attachVMSpecs(&cfg, tree)
	return &cfg, nil
}

// attachVMSpecs keeps each VM's raw descriptor next to its decoded form.
func attachVMSpecs(cfg *Config, tree Tree) {
	raw, ok := tree.Lookup("machines.vms")
	if !ok {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		return
	}
	for i := range cfg.Machines.VMs {
		if i >= len(list) {
			break
		}
		if spec, ok := asMap(list[i]); ok {
			cfg.Machines.VMs[i].Spec = spec
		}
	}
}

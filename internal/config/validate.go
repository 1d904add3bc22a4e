package config

import (
	"fmt"
)

// Validate checks the configuration for errors that would make a run fail
// halfway. provisionCluster tells whether the blueprint provisions the
// downstream cluster.
func (c *Config) Validate(provisionCluster bool) error {
	if c.APIToken == "" {
		return fmt.Errorf("api_token is required")
	}
	if c.Rancher.Hostname == "" {
		return fmt.Errorf("rancher.hostname is required")
	}
	if c.Rancher.ClusterName == "" {
		return fmt.Errorf("rancher.cluster_name is required")
	}
	if c.Harvester.ClusterName == "" {
		return fmt.Errorf("harvester.cluster_name is required")
	}

	if c.NeedsClusterName(provisionCluster) && c.Cluster.Name == "" {
		return fmt.Errorf("cluster.name is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout must not be negative, got %s", c.ReadyTimeout)
	}

	if err := c.validateMachines(); err != nil {
		return fmt.Errorf("machines validation failed: %w", err)
	}

	return nil
}

func (c *Config) validateMachines() error {
	m := c.Machines
	if len(m.VMs) == 0 {
		return nil
	}

	if m.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	seen := make(map[string]bool, len(m.VMs))
	for i, vm := range m.VMs {
		if vm.Name == "" {
			return fmt.Errorf("vms[%d]: name is required", i)
		}
		if seen[vm.Name] {
			return fmt.Errorf("vms[%d]: duplicate name %q", i, vm.Name)
		}
		seen[vm.Name] = true

		if err := m.validateVM(vm); err != nil {
			return fmt.Errorf("vm %s: %w", vm.Name, err)
		}
	}

	return nil
}

func (m MachinesConfig) validateVM(vm VM) error {
	if vm.HarvesterNode == "" {
		return fmt.Errorf("harvester_node is required")
	}
	if vm.DiskSize <= 0 {
		return fmt.Errorf("disk_size must be positive")
	}
	if m.ImageName(vm) == "" {
		if vm.IsGPU() {
			return fmt.Errorf("machines.template_image_name_gpu is required for gpu VMs")
		}
		return fmt.Errorf("machines.template_image_name is required")
	}
	for j, disk := range vm.ExtraDisks {
		if disk.DiskSize <= 0 {
			return fmt.Errorf("extra_disks[%d]: disk_size must be positive", j)
		}
		if disk.StorageClass == "" {
			return fmt.Errorf("extra_disks[%d]: storageclass is required", j)
		}
	}
	return nil
}

// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing
// and flag binding. Command execution is delegated to handler functions in the
// handlers package.
package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prh-io/prh/cmd/prh/handlers"
)

// Flag names. Each flag can also be set through the environment as PRH_ plus
// the upper-cased name, dashes replaced by underscores.
const (
	flagUpdate        = "update"
	flagVMs           = "vms"
	flagLogLevel      = "log-level"
	flagLogFile       = "log-file"
	flagConfigDir     = "config-dir"
	flagBlueprintsDir = "blueprints-dir"
	flagTemplatesDir  = "templates-dir"
	flagDryRun        = "dry-run"
)

// runProvision executes a provisioning run; replaced in tests.
var runProvision = handlers.Provision

// Root returns the root command for the prh CLI.
//
// The root command provisions the blueprint named by its single argument.
// Flag values are resolved through viper so that PRH_ environment variables
// can stand in for them.
func Root() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "prh <blueprint>",
		Short: "Provision Rancher clusters and Harvester VMs from blueprints",
		Long: `Provision a downstream Rancher cluster and its virtual machines on Harvester.

The blueprint is looked up in the blueprints directory, merged over the
configuration found in the config directory and the PRH_ environment, and
then applied: the cluster first when the blueprint defines one, then every VM.

VMs that already exist are left untouched unless --update is given.

Examples:
  # Provision the VMs and cluster of blueprints/lab.yaml
  prh lab

  # Re-apply two VMs of an existing blueprint
  prh lab --update --vms lab-cp-1,lab-worker-1

  # Print what would be applied
  prh lab --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), provisionOptions(v, args[0]))
		},
	}

	f := cmd.Flags()
	f.BoolP(flagUpdate, "u", false, "Replace VMs and cloud-init secrets that already exist")
	f.StringSlice(flagVMs, nil, "Comma-separated VM names to update (only with --update)")
	f.String(flagLogLevel, "info", "Log level: debug, info or error")
	f.String(flagLogFile, "", "Append logs to this file instead of stderr")
	f.String(flagConfigDir, "./config", "Directory holding configuration files")
	f.String(flagBlueprintsDir, "./blueprints", "Directory holding blueprints")
	f.String(flagTemplatesDir, "", "Directory with templates overriding the built-in ones")
	f.Bool(flagDryRun, false, "Print rendered manifests instead of applying them")

	bindFlags(v, cmd)

	cmd.AddCommand(Version())

	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	v.SetEnvPrefix("PRH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(cmd.Flags())
}

func provisionOptions(v *viper.Viper, blueprint string) handlers.ProvisionOptions {
	return handlers.ProvisionOptions{
		Blueprint:     blueprint,
		Update:        v.GetBool(flagUpdate),
		VMs:           splitList(v.GetStringSlice(flagVMs)),
		DryRun:        v.GetBool(flagDryRun),
		LogLevel:      v.GetString(flagLogLevel),
		LogFile:       v.GetString(flagLogFile),
		ConfigDir:     v.GetString(flagConfigDir),
		BlueprintsDir: v.GetString(flagBlueprintsDir),
		TemplatesDir:  v.GetString(flagTemplatesDir),
	}
}

// splitList flattens comma-separated entries, since values coming from the
// environment arrive as a single string.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

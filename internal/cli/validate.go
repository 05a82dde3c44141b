package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/odm/internal/adapter"
	"github.com/roach88/odm/internal/schema"
)

// ValidationResult is the JSON payload of a successful validate.
type ValidationResult struct {
	Valid       bool                   `json:"valid"`
	Fingerprint string                 `json:"fingerprint"`
	Entities    []schema.EntitySummary `json:"entities"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var adapterName string

	cmd := &cobra.Command{
		Use:   "validate [specs-dir]",
		Short: "Validate model and cluster declarations",
		Long: `Load every YAML and CUE declaration file in a directory, build the
schema and report every problem found at once: unknown kinds, invalid
options, missing relation targets, and attributes the selected adapter
cannot store.

The directory defaults to specs_dir from the configuration.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.ensure(cmd); err != nil {
				return err
			}
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("adapter") {
				adapterName = ""
			}
			return runValidate(rootOpts, rootOpts.Config.ResolveSpecsDir(dir), adapterName, cmd)
		},
	}
	cmd.Flags().StringVar(&adapterName, "adapter", "", "also check that this adapter supports every attribute")

	return cmd
}

func runValidate(opts *RootOptions, specsDir, adapterName string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var support schema.Supporter
	if adapterName != "" {
		a, err := adapter.New(adapterName, opts.Logger)
		if err != nil {
			return formatter.Fail(ExitCommandError, "unknown adapter", err)
		}
		support = a
	}

	formatter.VerboseLog("Loading declarations from %s", specsDir)
	reg, err := LoadRegistry(specsDir, opts.Config.PrimaryKey, support, opts.Logger)
	if err != nil {
		if isLoadError(err) {
			return formatter.Fail(ExitCommandError, "cannot load declarations", err)
		}
		return formatter.Fail(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(Issues(err))), err)
	}

	fp, err := reg.Fingerprint()
	if err != nil {
		return formatter.Fail(ExitFailure, "cannot fingerprint schema", err)
	}
	result := ValidationResult{Valid: true, Fingerprint: fp, Entities: reg.Describe()}
	return formatter.Success(result, validateText(reg, fp))
}

func validateText(reg *schema.Registry, fp string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %d model(s), %d cluster(s) valid\n", len(reg.Models()), len(reg.Clusters()))
	for _, es := range reg.Describe() {
		label := "model"
		if es.Cluster {
			label = "cluster"
		}
		fmt.Fprintf(&b, "  %s %s\n", label, es.Name)
		for _, as := range es.Attributes {
			target := as.Target
			if len(as.Types) > 0 {
				target = strings.Join(as.Types, "|")
			}
			if target != "" {
				target = " -> " + target
			}
			fmt.Fprintf(&b, "    %-12s %s%s\n", as.Name, as.Kind, target)
		}
	}
	fmt.Fprintf(&b, "fingerprint %s", fp)
	return b.String()
}

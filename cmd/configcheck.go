package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check [mode]",
	Short: "Validate the config and the reconciliation plan",
	Long:  "Validates config.yaml for the given mode (run, serve, health, indicators; default run) and loads the plan. An ambiguous authority table fails here.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "run"
		if len(args) == 1 {
			mode = args[0]
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		plan, err := config.LoadPlan(cfg.Pipeline.PlanPath)
		if err != nil {
			return err
		}
		if _, err := reconcile.NewResolver(plan.Authority, plan.Resolution); err != nil {
			return eris.Wrap(err, "config check")
		}

		missing := unconfiguredSources(plan, cfg)
		summarizePlan(os.Stdout, plan, missing)
		return nil
	},
}

// unconfiguredSources lists ranked sources that no configured adapter serves.
func unconfiguredSources(plan *config.Plan, c *config.Config) []string {
	var out []string
	for _, name := range plan.Sources() {
		if _, ok := c.Source(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

func summarizePlan(w io.Writer, plan *config.Plan, missing []string) {
	_, _ = fmt.Fprintf(w, "plan ok: %d categories, %d sources\n", len(plan.Authority.Categories), len(plan.Sources()))
	for _, phase := range model.Phases {
		_, _ = fmt.Fprintf(w, "  %-10s %d fields\n", phase, len(plan.FieldsFor(phase)))
	}
	for _, name := range missing {
		_, _ = fmt.Fprintf(w, "warning: ranked source %q has no configured adapter\n", name)
	}
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

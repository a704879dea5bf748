package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/pipeline"
	"github.com/sells-group/reconcile-cli/internal/source"
)

var (
	runEntity string
	runAsOf   string
	runOut    string
	runDemo   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation pipeline for a single entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil && !runDemo {
			return err
		}
		asOf, err := parseAsOf(runAsOf)
		if err != nil {
			return err
		}

		plan, reg, cleanup, err := loadPlanAndSources(cmd, runDemo)
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		opts := pipeline.OptionsFromConfig(cfg.Pipeline)
		if runOut != "" {
			opts = append(opts, pipeline.WithArtifactDir(runOut))
		}
		if st != nil {
			opts = append(opts, pipeline.WithStore(st))
		}

		result, err := pipeline.RunPipeline(ctx, runEntity, asOf, plan, reg, opts...)
		if err != nil {
			var blocked *pipeline.PipelineBlockedError
			if errors.As(err, &blocked) {
				_ = printBlocked(os.Stdout, blocked)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("reconciliation complete",
			zap.String("entity", runEntity),
			zap.String("run_id", result.RunID),
			zap.Float64("confidence", result.Confidence.Value),
			zap.Bool("degraded", result.Degraded),
		)

		return printJSON(os.Stdout, result)
	},
}

// loadPlanAndSources returns the demo plan and sources with demo set, else
// the configured ones.
func loadPlanAndSources(cmd *cobra.Command, demo bool) (*config.Plan, *source.Registry, func(), error) {
	if demo {
		plan, err := demoPlan()
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "load demo plan")
		}
		return plan, demoRegistry(), func() {}, nil
	}

	plan, err := config.LoadPlan(cfg.Pipeline.PlanPath)
	if err != nil {
		return nil, nil, nil, err
	}
	srcs, err := buildSources(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return plan, srcs.Registry, srcs.Close, nil
}

// parseAsOf reads a YYYY-MM-DD date. Empty means today (UTC).
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid as-of date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// blockedReport is what a blocked run prints.
type blockedReport struct {
	Status   model.RunStatus           `json:"status"`
	Phase    model.Phase               `json:"phase"`
	Decision model.QualityGateDecision `json:"decision"`
}

func printBlocked(w io.Writer, b *pipeline.PipelineBlockedError) error {
	if err := printJSON(w, blockedReport{
		Status:   model.RunStatusBlocked,
		Phase:    b.Phase,
		Decision: b.Decision,
	}); err != nil {
		return err
	}
	for _, r := range b.Decision.BlockingReasons {
		fmt.Fprintf(os.Stderr, "blocked: %s\n", r)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().StringVar(&runEntity, "entity", "", "entity identifier (required)")
	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "as-of date YYYY-MM-DD (default today)")
	runCmd.Flags().StringVar(&runOut, "out", "", "artifact directory (overrides pipeline.artifact_dir)")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "use the built-in demo plan and in-memory sources")
	_ = runCmd.MarkFlagRequired("entity")
	rootCmd.AddCommand(runCmd)
}

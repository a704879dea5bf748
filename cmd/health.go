package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/monitoring"
	"github.com/sells-group/reconcile-cli/internal/source"
)

var healthDemo bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("health"); err != nil && !healthDemo {
			return err
		}

		_, reg, cleanup, err := loadPlanAndSources(cmd, healthDemo)
		if err != nil {
			return err
		}
		defer cleanup()

		statuses := monitoring.CheckHealth(cmd.Context(), reg.Adapters(), cfg.Pipeline.ConcurrencyLimit)
		down := formatHealth(os.Stdout, statuses)
		if down > 0 {
			return eris.Errorf("%d of %d sources unhealthy", down, len(statuses))
		}
		return nil
	},
}

// formatHealth writes the probe results and returns the unhealthy count.
func formatHealth(out io.Writer, statuses []source.HealthStatus) int {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tHEALTHY\tLATENCY\tDETAIL")

	down := 0
	for _, s := range statuses {
		if !s.Healthy {
			down++
		}
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", s.Source, s.Healthy, s.Latency.Round(time.Microsecond), s.Detail)
	}
	_ = w.Flush()
	return down
}

func init() {
	healthCmd.Flags().BoolVar(&healthDemo, "demo", false, "probe the built-in demo sources")
	rootCmd.AddCommand(healthCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/db"
	"github.com/sells-group/reconcile-cli/internal/source/pgsource"
	"github.com/sells-group/reconcile-cli/internal/source/tabular"
)

var indicatorsCmd = &cobra.Command{
	Use:   "indicators",
	Short: "Manage the economic-indicator table",
}

var indicatorsLoadCmd = &cobra.Command{
	Use:   "load <location>",
	Short: "Load indicator observations from a CSV or XLSX table",
	Long:  "Reads an entity,field,date,value[,unit] table from a local path, http(s) or ftp URL and upserts it into the indicator table.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("indicators"); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		sheet, _ := cmd.Flags().GetString("sheet")

		rows, err := readIndicators(ctx, args[0], tabular.Format(format), sheet)
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Indicators.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return err
		}
		defer pool.Close()

		adapter := pgsource.New(pgsource.Config{Name: "indicators", Table: cfg.Indicators.Table}, pool)
		if err := adapter.Migrate(ctx); err != nil {
			return err
		}

		start := time.Now()
		n, err := adapter.Load(ctx, rows)
		if err != nil {
			return err
		}
		zap.L().Info("indicators loaded",
			zap.String("location", args[0]),
			zap.Int64("rows", n),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Fprintf(os.Stdout, "loaded %d indicator rows into %s\n", n, cfg.Indicators.Table)
		return nil
	},
}

// readIndicators parses a tabular file into indicator rows.
func readIndicators(ctx context.Context, location string, format tabular.Format, sheet string) ([]pgsource.Indicator, error) {
	t := tabular.New(tabular.Config{
		Name:     "indicators",
		Location: location,
		Format:   format,
		Sheet:    sheet,
	}, newOpener(cfg.Fetcher, 0))

	records, err := t.Load(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "indicators: read %s", location)
	}

	rows := make([]pgsource.Indicator, len(records))
	for i, r := range records {
		rows[i] = pgsource.Indicator{
			EntityID:   r.Entity,
			Field:      r.Field,
			ObservedAt: r.Date,
			Value:      r.Value,
			Unit:       r.Unit,
		}
	}
	return rows, nil
}

func init() {
	indicatorsLoadCmd.Flags().String("format", "", "table format: csv or xlsx (default from extension)")
	indicatorsLoadCmd.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")

	indicatorsCmd.AddCommand(indicatorsLoadCmd)
	rootCmd.AddCommand(indicatorsCmd)
}

package main

import (
	_ "embed"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/source"
)

//go:embed demo_plan.yaml
var demoPlanYAML []byte

// demoPlan returns the built-in plan used with --demo.
func demoPlan() (*config.Plan, error) {
	return config.ParsePlan(demoPlanYAML)
}

// demoRegistry returns in-memory sources for the demo plan. The exchange and
// the aggregator disagree on the close by a few tenths of a percent.
func demoRegistry() *source.Registry {
	reg := source.NewRegistry()
	reg.Register(source.NewStatic("exchange", map[string]source.StaticEntry{
		"price.close":  {Value: 187.20, Unit: "USD"},
		"price.volume": {Value: 5.1e6},
	}))
	reg.Register(source.NewStatic("aggregator", map[string]source.StaticEntry{
		"price.close":       {Value: 187.95, Unit: "USD"},
		"price.volume":      {Value: 5.1e6},
		"fin.revenue":       {Value: 383.3e9, Unit: "USD"},
		"fin.revenue_prior": {Value: 394.3e9, Unit: "USD"},
	}))
	reg.Register(source.NewStatic("filings", map[string]source.StaticEntry{
		"fin.revenue":       {Value: 383.285e9, Unit: "USD"},
		"fin.revenue_prior": {Value: 394.328e9, Unit: "USD"},
		"fin.net_income":    {Value: 96.995e9, Unit: "USD"},
	}))
	reg.Register(source.NewStatic("indicators", map[string]source.StaticEntry{
		"macro.cpi_yoy": {Value: 3.2},
	}))
	return reg
}

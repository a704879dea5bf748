package confidence

import (
	"sort"
	"time"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Assessment is the aggregator's view of one phase.
type Assessment struct {
	Score model.ConfidenceScore
	// Completeness is resolved / required over every declared field.
	Completeness float64
	// OptionalCompleteness is the same ratio over non-mandatory fields only,
	// 1 when the phase declares none.
	OptionalCompleteness float64
	Categories           map[string]model.ConfidenceScore
	Missing              []string
}

// Aggregator turns resolved fields into phase confidence.
type Aggregator struct {
	decay DecayConfig
}

// NewAggregator returns an aggregator using decay for staleness.
func NewAggregator(decay DecayConfig) *Aggregator {
	return &Aggregator{decay: decay}
}

// Assess scores fields against the phase's declared specs:
//
//	confidence = completeness × weighted_mean × staleness_factor
//
// The weighted mean runs over resolved declared fields using each spec's
// importance. With no specs every resolved field counts with weight 1.
func (a *Aggregator) Assess(specs []model.FieldSpec, fields map[string]model.ResolvedField) Assessment {
	if len(specs) == 0 {
		specs = implicitSpecs(fields)
	}

	out := Assessment{Categories: map[string]model.ConfidenceScore{}}
	byCategory := map[string][]model.FieldSpec{}
	var optional, optionalResolved int
	for _, s := range specs {
		byCategory[s.Category] = append(byCategory[s.Category], s)
		_, ok := fields[s.Name]
		if !s.Mandatory {
			optional++
			if ok {
				optionalResolved++
			}
		}
		if !ok {
			out.Missing = append(out.Missing, s.Name)
		}
	}
	sort.Strings(out.Missing)

	out.OptionalCompleteness = 1
	if optional > 0 {
		out.OptionalCompleteness = float64(optionalResolved) / float64(optional)
	}

	out.Score = a.score(model.ScopePhase, specs, fields)
	out.Completeness = out.Score.ContributingFactors["completeness"]
	for cat, catSpecs := range byCategory {
		if cat == "" {
			continue
		}
		out.Categories[cat] = a.score(model.ScopeCategory, catSpecs, fields)
	}
	return out
}

func (a *Aggregator) score(scope model.Scope, specs []model.FieldSpec, fields map[string]model.ResolvedField) model.ConfidenceScore {
	if len(specs) == 0 {
		return model.NewScore(scope, 1, map[string]float64{
			"completeness": 1, "weighted_mean": 1, "staleness_factor": 1,
		})
	}

	var resolved int
	var weightSum, weighted float64
	var maxStale time.Duration
	for _, s := range specs {
		f, ok := fields[s.Name]
		if !ok {
			continue
		}
		resolved++
		w := s.Weight()
		weightSum += w
		weighted += w * f.Confidence.Value
		if st := f.Value.Staleness(); st > maxStale {
			maxStale = st
		}
	}

	completeness := float64(resolved) / float64(len(specs))
	mean := 0.0
	if weightSum > 0 {
		mean = weighted / weightSum
	}
	factor := StalenessFactor(maxStale, a.decay)

	return model.NewScore(scope, completeness*mean*factor, map[string]float64{
		"completeness":      completeness,
		"weighted_mean":     mean,
		"staleness_factor":  factor,
		"max_staleness_hrs": maxStale.Hours(),
	})
}

func implicitSpecs(fields map[string]model.ResolvedField) []model.FieldSpec {
	specs := make([]model.FieldSpec, 0, len(fields))
	for name, f := range fields {
		specs = append(specs, model.FieldSpec{Name: name, Category: f.Category, Importance: 1})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Pipeline returns the pipeline-scope score: the minimum of the phase scores.
func Pipeline(phases ...model.ConfidenceScore) model.ConfidenceScore {
	if len(phases) == 0 {
		return model.NewScore(model.ScopePipeline, 0, nil)
	}
	low := phases[0].Value
	for _, p := range phases[1:] {
		if p.Value < low {
			low = p.Value
		}
	}
	return model.NewScore(model.ScopePipeline, low, map[string]float64{
		"phases": float64(len(phases)),
	})
}

// WeightedPassRatio scores validation checks: sum of weights of passed checks
// over the sum of all weights. No checks scores 1.
func WeightedPassRatio(checks []model.CheckResult) model.ConfidenceScore {
	var total, passed float64
	var failed int
	for _, c := range checks {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		if c.Passed {
			passed += w
		} else {
			failed++
		}
	}
	if total == 0 {
		return model.NewScore(model.ScopePhase, 1, map[string]float64{"checks": 0})
	}
	return model.NewScore(model.ScopePhase, passed/total, map[string]float64{
		"checks":     float64(len(checks)),
		"failed":     float64(failed),
		"pass_ratio": passed / total,
	})
}

package pipeline

import (
	"fmt"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
)

// Validation check kinds.
const (
	CheckMandatory = "mandatory"
	CheckRange     = "range"
	CheckAgreement = "agreement"
)

// Checks runs the validation checks over the prior phases' results.
func Checks(plan *config.Plan, sets []phaseFields) []model.CheckResult {
	var out []model.CheckResult
	add := func(kind, name string, passed bool, detail string) {
		out = append(out, model.CheckResult{
			Name:     kind + ":" + name,
			Kind:     kind,
			Passed:   passed,
			Blocking: plan.Validation.IsBlocking(kind),
			Weight:   plan.Validation.Weight(kind),
			Detail:   detail,
		})
	}

	byPhase := map[model.Phase]model.FieldSet{}
	for _, ps := range sets {
		byPhase[ps.phase] = ps.set
	}

	for _, phase := range model.Phases {
		specs := plan.FieldsFor(phase)
		if len(specs) == 0 {
			continue
		}
		fs := byPhase[phase]
		for _, spec := range specs {
			f, ok := fs.Fields[spec.Name]
			if spec.Mandatory {
				detail := fmt.Sprintf("%s resolved in %s", spec.Name, phase)
				if !ok {
					detail = fmt.Sprintf("%s missing from %s", spec.Name, phase)
				}
				add(CheckMandatory, spec.Name, ok, detail)
			}
			if ok && (spec.Min != nil || spec.Max != nil) {
				passed, detail := inRange(f.Value.Value, spec.Min, spec.Max)
				add(CheckRange, spec.Name, passed, detail)
			}
		}
	}

	// Fields resolved in more than one phase must agree with their first
	// resolution.
	first := map[string]phaseFields{}
	for _, ps := range sets {
		for _, name := range ps.set.Names() {
			prior, seen := first[name]
			if !seen {
				first[name] = ps
				continue
			}
			a := prior.set.Fields[name].Value.Value
			b := ps.set.Fields[name].Value.Value
			v := reconcile.Variance(a, b)
			passed := v <= plan.Validation.AgreementTolerance+1e-12
			add(CheckAgreement, name, passed, fmt.Sprintf("%s=%g vs %s=%g (variance %.2f%%, tolerance %.2f%%)",
				prior.phase, a, ps.phase, b, v*100, plan.Validation.AgreementTolerance*100))
		}
	}
	return out
}

func inRange(v float64, lo, hi *float64) (bool, string) {
	switch {
	case lo != nil && v < *lo:
		return false, fmt.Sprintf("%g below minimum %g", v, *lo)
	case hi != nil && v > *hi:
		return false, fmt.Sprintf("%g above maximum %g", v, *hi)
	}
	return true, fmt.Sprintf("%g within range", v)
}

// checkCounts returns the number of passed and failed checks.
func checkCounts(checks []model.CheckResult) (passed, failed int) {
	for _, c := range checks {
		if c.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

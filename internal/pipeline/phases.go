package pipeline

import (
	"context"
	"fmt"

	"github.com/sells-group/reconcile-cli/internal/confidence"
	"github.com/sells-group/reconcile-cli/internal/gate"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// PhaseOutput is what a phase hands back to the orchestrator: its typed
// result and everything the gate needs to judge it.
type PhaseOutput struct {
	Result model.PhaseResult
	Gate   gate.Input
	// Attempts is the number of collection attempts, 1 for phases that do
	// not fetch.
	Attempts int
}

// PhaseFunc runs one phase over the context built so far. It must not
// modify pc or anything reachable from it.
type PhaseFunc func(ctx context.Context, pc model.PhaseContext) (PhaseOutput, error)

func gateInput(phase model.Phase, a confidence.Assessment, blocking []string) gate.Input {
	optional := a.OptionalCompleteness
	return gate.Input{
		Phase:                phase,
		Confidence:           a.Score,
		OptionalCompleteness: &optional,
		Categories:           a.Categories,
		BlockingConditions:   blocking,
	}
}

// discover resolves the discovery fields.
func (o *Orchestrator) discover(ctx context.Context, pc model.PhaseContext) (PhaseOutput, error) {
	specs := o.plan.FieldsFor(model.PhaseDiscover)
	fs, blocking, err := o.collect(ctx, model.PhaseDiscover, specs, pc)
	if err != nil {
		return PhaseOutput{}, err
	}

	a := o.aggregator.Assess(specs, fs.Fields)
	return PhaseOutput{
		Result:   &model.DiscoveryResult{FieldSet: fs, Confidence: a.Score},
		Gate:     gateInput(model.PhaseDiscover, a, blocking),
		Attempts: fs.Attempts,
	}, nil
}

// analyze resolves the analysis fields, then computes derived metrics over
// analysis and discovery fields.
func (o *Orchestrator) analyze(ctx context.Context, pc model.PhaseContext) (PhaseOutput, error) {
	pp := o.plan.Phases[model.PhaseAnalyze]
	fs, blocking, err := o.collect(ctx, model.PhaseAnalyze, pp.Fields, pc)
	if err != nil {
		return PhaseOutput{}, err
	}

	discovery := pc.Discovery()
	lookup := func(name string) (model.ResolvedField, bool) {
		if f, ok := fs.Fields[name]; ok {
			return f, true
		}
		if discovery != nil {
			return discovery.Field(name)
		}
		return model.ResolvedField{}, false
	}
	blocking = append(blocking, deriveAll(pp.Derived, lookup, &fs)...)

	derived := make([]model.DerivedMetric, 0, len(pp.Derived))
	for _, d := range pp.Derived {
		derived = append(derived, d.Metric())
	}

	specs := o.plan.FieldsFor(model.PhaseAnalyze)
	a := o.aggregator.Assess(specs, fs.Fields)
	return PhaseOutput{
		Result:   &model.AnalysisResult{FieldSet: fs, Derived: derived, Confidence: a.Score},
		Gate:     gateInput(model.PhaseAnalyze, a, blocking),
		Attempts: fs.Attempts,
	}, nil
}

// synthesize resolves the synthesis fields and assembles the fact sheet
// over everything resolved so far. Its confidence covers the whole sheet.
func (o *Orchestrator) synthesize(ctx context.Context, pc model.PhaseContext) (PhaseOutput, error) {
	specs := o.plan.FieldsFor(model.PhaseSynthesize)
	fs, blocking, err := o.collect(ctx, model.PhaseSynthesize, specs, pc)
	if err != nil {
		return PhaseOutput{}, err
	}

	sets := append(priorFieldSets(pc), phaseFields{model.PhaseSynthesize, fs})
	sh := buildSheet(sets)
	all := sheetSpecs(o.plan.AllFields())
	a := o.aggregator.Assess(all, sh.fields)

	res := &model.SynthesisResult{
		FieldSet:   fs,
		Facts:      sh.Facts(all, o.plan.Staleness.Grace),
		Caveats:    sheetCaveats(sets, pc.Decisions()),
		Confidence: a.Score,
	}
	return PhaseOutput{
		Result:   res,
		Gate:     gateInput(model.PhaseSynthesize, a, blocking),
		Attempts: fs.Attempts,
	}, nil
}

// validateAll runs the checks over all prior results. Failed blocking checks
// block the run.
func (o *Orchestrator) validateAll(_ context.Context, pc model.PhaseContext) (PhaseOutput, error) {
	checks := Checks(o.plan, priorFieldSets(pc))
	passed, failed := checkCounts(checks)
	score := confidence.WeightedPassRatio(checks)

	var blocking []string
	for _, c := range checks {
		if !c.Passed && c.Blocking {
			blocking = append(blocking, fmt.Sprintf("validation check %s failed: %s", c.Name, c.Detail))
		}
	}

	return PhaseOutput{
		Result: &model.ValidationReport{
			Checks:     checks,
			Passed:     passed,
			Failed:     failed,
			Confidence: score,
		},
		Gate: gate.Input{
			Phase:              model.PhaseValidate,
			Confidence:         score,
			BlockingConditions: blocking,
		},
		Attempts: 1,
	}, nil
}

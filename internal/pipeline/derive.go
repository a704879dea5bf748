package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// Compute applies a derived-metric operation to two input values.
//
//	ratio       a / b
//	difference  a - b
//	pct_change  (a - b) / |b|
func Compute(op string, a, b float64) (float64, error) {
	var v float64
	switch op {
	case config.OpRatio:
		if b == 0 {
			return 0, eris.New("pipeline: ratio denominator is zero")
		}
		v = a / b
	case config.OpDifference:
		v = a - b
	case config.OpPctChange:
		if b == 0 {
			return 0, eris.New("pipeline: pct_change base is zero")
		}
		v = (a - b) / math.Abs(b)
	default:
		return 0, eris.Errorf("pipeline: unknown derived operation %q", op)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("pipeline: %s produced non-finite value", op)
	}
	return v, nil
}

// Derive builds the resolved field of a derived metric. Its confidence is
// the weaker of its inputs' and it is as stale as its stalest input.
func Derive(d config.DerivedSpec, a, b model.ResolvedField) (model.ResolvedField, error) {
	v, err := Compute(d.Operation, a.Value.Value, b.Value.Value)
	if err != nil {
		return model.ResolvedField{}, eris.Wrapf(err, "derive %s", d.Name)
	}

	conf := math.Min(a.Confidence.Value, b.Confidence.Value)
	category := d.Category
	if category == "" {
		category = a.Category
	}

	return model.ResolvedField{
		FieldName: d.Name,
		Category:  category,
		Value: model.FieldValue{
			FieldName:        d.Name,
			Value:            v,
			Unit:             d.Unit,
			SourceID:         "derived:" + d.Operation,
			AuthorityLevel:   conf,
			ObservedAt:       oldest(a.Value.ObservedAt, b.Value.ObservedAt),
			StalenessSeconds: max(a.Value.StalenessSeconds, b.Value.StalenessSeconds),
		},
		Confidence: model.NewScore(model.ScopeField, conf, map[string]float64{
			"input_" + a.FieldName: a.Confidence.Value,
			"input_" + b.FieldName: b.Confidence.Value,
		}),
		Sources:    a.Sources + b.Sources,
		Conflicted: a.Conflicted || b.Conflicted,
		Derived:    true,
	}, nil
}

// deriveAll computes the analyze phase's derived metrics. Inputs are looked
// up in the current phase's fields first, then in prior phases.
func deriveAll(specs []config.DerivedSpec, lookup func(string) (model.ResolvedField, bool), fs *model.FieldSet) []string {
	var blocking []string
	for _, d := range specs {
		failure := func(msg string) {
			f := []model.SourceFailure{{Source: "derived:" + d.Operation, Kind: kindDerivation, Message: msg}}
			fs.Unresolved = append(fs.Unresolved, model.UnresolvedField{
				FieldName: d.Name,
				Category:  d.Category,
				Mandatory: d.Mandatory,
				Failures:  f,
			})
			if d.Mandatory {
				blocking = append(blocking, fmt.Sprintf("mandatory derived metric %s unavailable: %s", d.Name, msg))
			}
		}

		a, okA := lookup(d.Inputs[0])
		b, okB := lookup(d.Inputs[1])
		switch {
		case !okA:
			failure(fmt.Sprintf("input %s unresolved", d.Inputs[0]))
			continue
		case !okB:
			failure(fmt.Sprintf("input %s unresolved", d.Inputs[1]))
			continue
		}

		rf, err := Derive(d, a, b)
		if err != nil {
			failure(err.Error())
			continue
		}
		fs.Fields[d.Name] = rf
	}
	return blocking
}

func oldest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}

package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func resolved(name, cat string, conf float64, stale time.Duration) model.ResolvedField {
	return model.ResolvedField{
		FieldName:  name,
		Category:   cat,
		Value:      model.FieldValue{FieldName: name, SourceID: "s", StalenessSeconds: int64(stale / time.Second)},
		Confidence: model.NewScore(model.ScopeField, conf, nil),
		Sources:    1,
	}
}

func TestAssess_WeightedMean(t *testing.T) {
	t.Parallel()

	specs := []model.FieldSpec{
		{Name: "price", Category: "pricing", Importance: 3, Mandatory: true},
		{Name: "volume", Category: "pricing", Importance: 1},
	}
	fields := map[string]model.ResolvedField{
		"price":  resolved("price", "pricing", 0.9, 0),
		"volume": resolved("volume", "pricing", 0.5, 0),
	}

	a := NewAggregator(DefaultDecay()).Assess(specs, fields)
	assert.InDelta(t, (3*0.9+0.5)/4, a.Score.Value, 1e-9)
	assert.Equal(t, model.ScopePhase, a.Score.Scope)
	assert.Equal(t, 1.0, a.Completeness)
	assert.Equal(t, 1.0, a.OptionalCompleteness)
	assert.Empty(t, a.Missing)

	require.Contains(t, a.Categories, "pricing")
	assert.InDelta(t, a.Score.Value, a.Categories["pricing"].Value, 1e-9)
	assert.Equal(t, model.ScopeCategory, a.Categories["pricing"].Scope)
}

func TestAssess_CompletenessAndMissing(t *testing.T) {
	t.Parallel()

	specs := []model.FieldSpec{
		{Name: "price", Category: "pricing", Mandatory: true},
		{Name: "eps", Category: "financials"},
		{Name: "revenue", Category: "financials"},
		{Name: "margin", Category: "financials"},
	}
	fields := map[string]model.ResolvedField{
		"price":   resolved("price", "pricing", 0.9, 0),
		"revenue": resolved("revenue", "financials", 0.9, 0),
	}

	a := NewAggregator(DefaultDecay()).Assess(specs, fields)
	assert.Equal(t, 0.5, a.Completeness)
	assert.InDelta(t, 0.45, a.Score.Value, 1e-9)
	assert.InDelta(t, 1.0/3, a.OptionalCompleteness, 1e-9)
	assert.Equal(t, []string{"eps", "margin"}, a.Missing)
	assert.InDelta(t, 0.3, a.Categories["financials"].Value, 1e-9)
	assert.InDelta(t, 0.9, a.Categories["pricing"].Value, 1e-9)
}

func TestAssess_StalenessApplied(t *testing.T) {
	t.Parallel()

	specs := []model.FieldSpec{{Name: "gdp", Category: "macro"}}
	fields := map[string]model.ResolvedField{"gdp": resolved("gdp", "macro", 0.8, 31*day)}

	a := NewAggregator(DecayConfig{Grace: day, HalfLife: 30 * day, Floor: 0.1}).Assess(specs, fields)
	assert.InDelta(t, 0.4, a.Score.Value, 1e-9)
	assert.InDelta(t, 0.5, a.Score.ContributingFactors["staleness_factor"], 1e-9)
}

func TestAssess_NoSpecsUsesFields(t *testing.T) {
	t.Parallel()

	fields := map[string]model.ResolvedField{
		"a": resolved("a", "x", 0.6, 0),
		"b": resolved("b", "x", 1.0, 0),
	}
	a := NewAggregator(DefaultDecay()).Assess(nil, fields)
	assert.InDelta(t, 0.8, a.Score.Value, 1e-9)

	empty := NewAggregator(DefaultDecay()).Assess(nil, nil)
	assert.Equal(t, 1.0, empty.Score.Value)
}

func TestAssess_NothingResolved(t *testing.T) {
	t.Parallel()

	a := NewAggregator(DefaultDecay()).Assess([]model.FieldSpec{{Name: "price", Category: "pricing"}}, nil)
	assert.Equal(t, 0.0, a.Score.Value)
	assert.Equal(t, 0.0, a.OptionalCompleteness)
}

func TestPipeline_Minimum(t *testing.T) {
	t.Parallel()

	got := Pipeline(
		model.NewScore(model.ScopePhase, 0.93, nil),
		model.NewScore(model.ScopePhase, 0.81, nil),
		model.NewScore(model.ScopePhase, 0.88, nil),
	)
	assert.Equal(t, 0.81, got.Value)
	assert.Equal(t, model.ScopePipeline, got.Scope)
	assert.Equal(t, 0.0, Pipeline().Value)
}

func TestWeightedPassRatio(t *testing.T) {
	t.Parallel()

	got := WeightedPassRatio([]model.CheckResult{
		{Name: "a", Passed: true, Weight: 3},
		{Name: "b", Passed: false, Weight: 1},
	})
	assert.Equal(t, 0.75, got.Value)
	assert.Equal(t, 1.0, got.ContributingFactors["failed"])
	assert.Equal(t, 1.0, WeightedPassRatio(nil).Value)
}

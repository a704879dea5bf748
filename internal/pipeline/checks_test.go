package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func fieldSet(fields ...model.ResolvedField) model.FieldSet {
	fs := model.FieldSet{Fields: map[string]model.ResolvedField{}, Attempts: 1}
	for _, f := range fields {
		fs.Fields[f.FieldName] = f
	}
	return fs
}

func checkByName(checks []model.CheckResult, name string) (model.CheckResult, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return model.CheckResult{}, false
}

func TestChecks_AllPass(t *testing.T) {
	t.Parallel()

	plan := loadTestPlan(t)
	growth := input("fin.revenue_growth", 0.11, 0.98, 0, time.Time{})
	growth.Derived = true
	sets := []phaseFields{
		{model.PhaseDiscover, fieldSet(input("price.close", 100, 0.95, 0, time.Time{}))},
		{model.PhaseAnalyze, fieldSet(input("fin.revenue", 200, 0.98, 0, time.Time{}), growth)},
	}

	checks := Checks(plan, sets)

	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name)
		assert.True(t, c.Passed, c.Name)
	}
	assert.Equal(t, []string{
		"mandatory:price.close",
		"range:price.close",
		"mandatory:fin.revenue",
	}, names)

	c, _ := checkByName(checks, "mandatory:price.close")
	assert.True(t, c.Blocking)
	assert.Equal(t, 3.0, c.Weight)
	c, _ = checkByName(checks, "range:price.close")
	assert.False(t, c.Blocking)
	assert.Equal(t, 2.0, c.Weight)
}

func TestChecks_MissingMandatory(t *testing.T) {
	t.Parallel()

	checks := Checks(loadTestPlan(t), []phaseFields{
		{model.PhaseDiscover, fieldSet()},
	})
	c, ok := checkByName(checks, "mandatory:price.close")
	require.True(t, ok)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, "missing from discover")

	_, ok = checkByName(checks, "range:price.close")
	assert.False(t, ok, "range is only checked for resolved fields")
}

func TestChecks_RangeBelowMinimum(t *testing.T) {
	t.Parallel()

	checks := Checks(loadTestPlan(t), []phaseFields{
		{model.PhaseDiscover, fieldSet(input("price.close", -3, 0.95, 0, time.Time{}))},
	})
	c, ok := checkByName(checks, "range:price.close")
	require.True(t, ok)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, "below minimum 0")
}

func TestChecks_CrossPhaseAgreement(t *testing.T) {
	t.Parallel()

	plan := loadTestPlan(t)
	tests := []struct {
		name   string
		later  float64
		passed bool
	}{
		{"within tolerance", 100.5, true},
		{"beyond tolerance", 103, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			checks := Checks(plan, []phaseFields{
				{model.PhaseDiscover, fieldSet(input("price.close", 100, 0.95, 0, time.Time{}))},
				{model.PhaseSynthesize, fieldSet(input("price.close", tt.later, 0.95, 0, time.Time{}))},
			})
			c, ok := checkByName(checks, "agreement:price.close")
			require.True(t, ok)
			assert.Equal(t, tt.passed, c.Passed, c.Detail)
			assert.Equal(t, CheckAgreement, c.Kind)
		})
	}
}

func TestInRange(t *testing.T) {
	t.Parallel()

	lo, hi := 0.0, 10.0
	ok, _ := inRange(5, &lo, &hi)
	assert.True(t, ok)
	ok, detail := inRange(11, &lo, &hi)
	assert.False(t, ok)
	assert.Contains(t, detail, "above maximum")
	ok, _ = inRange(-1, nil, &hi)
	assert.True(t, ok)
}

func TestCheckCounts(t *testing.T) {
	t.Parallel()

	p, f := checkCounts([]model.CheckResult{{Passed: true}, {Passed: false}, {Passed: true}})
	assert.Equal(t, 2, p)
	assert.Equal(t, 1, f)
}

package reconcile

import (
	"math"
	"sort"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Detection is the outcome of comparing all candidates for one field.
type Detection struct {
	// Candidates sorted by authority (desc) then source id (asc).
	Candidates  []model.FieldValue
	MaxVariance float64
	Tolerance   float64
	Conflict    bool
}

// Variance returns |a-b| / max(|a|,|b|), or 0 when both are 0.
func Variance(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

// SortCandidates returns a sorted copy of values so fetch order never
// influences resolution.
func SortCandidates(values []model.FieldValue) []model.FieldValue {
	out := append([]model.FieldValue(nil), values...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AuthorityLevel != out[j].AuthorityLevel {
			return out[i].AuthorityLevel > out[j].AuthorityLevel
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// Detect computes the largest pairwise variance among values and flags a
// conflict when it exceeds tolerance. Fewer than two values never conflict.
func Detect(values []model.FieldValue, tolerance float64) Detection {
	d := Detection{
		Candidates: SortCandidates(values),
		Tolerance:  tolerance,
	}
	for i := 0; i < len(d.Candidates); i++ {
		for j := i + 1; j < len(d.Candidates); j++ {
			if v := Variance(d.Candidates[i].Value, d.Candidates[j].Value); v > d.MaxVariance {
				d.MaxVariance = v
			}
		}
	}
	d.Conflict = len(d.Candidates) > 1 && d.MaxVariance > tolerance
	return d
}

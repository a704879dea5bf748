package reconcile

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// ErrNoCandidates is returned when Resolve is called without any values.
var ErrNoCandidates = eris.New("reconcile: no candidate values")

// Policy holds the numeric knobs of resolution.
type Policy struct {
	// SingleSourceCeiling caps the confidence of uncorroborated fields.
	SingleSourceCeiling float64 `yaml:"single_source_ceiling" mapstructure:"single_source_ceiling" validate:"gt=0,lte=1"`
	// PenaltyMin applies at variance == tolerance, PenaltyMax at or beyond
	// tolerance * SaturationMultiple. Linear in between.
	PenaltyMin         float64            `yaml:"penalty_min" mapstructure:"penalty_min" validate:"gte=0,lte=1"`
	PenaltyMax         float64            `yaml:"penalty_max" mapstructure:"penalty_max" validate:"gtefield=PenaltyMin,lte=1"`
	SaturationMultiple float64            `yaml:"saturation_multiple" mapstructure:"saturation_multiple" validate:"gt=1"`
	DefaultTolerance   float64            `yaml:"default_tolerance" mapstructure:"default_tolerance" validate:"gte=0"`
	Tolerances         map[string]float64 `yaml:"tolerances" mapstructure:"tolerances"`
}

// DefaultPolicy returns the stock resolution policy.
func DefaultPolicy() Policy {
	return Policy{
		SingleSourceCeiling: 0.75,
		PenaltyMin:          0.02,
		PenaltyMax:          0.15,
		SaturationMultiple:  1.5,
		DefaultTolerance:    0.10,
	}
}

// Tolerance returns the variance tolerance for category.
func (p Policy) Tolerance(category string) float64 {
	if t, ok := p.Tolerances[category]; ok {
		return t
	}
	return p.DefaultTolerance
}

// Penalty maps a variance above tolerance to a confidence deduction in
// [PenaltyMin, PenaltyMax]. Variance within tolerance carries no penalty.
func (p Policy) Penalty(variance, tolerance float64) float64 {
	if variance <= tolerance {
		return 0
	}
	span := tolerance * (p.SaturationMultiple - 1)
	if span <= 0 {
		return p.PenaltyMax
	}
	frac := math.Min((variance-tolerance)/span, 1)
	return p.PenaltyMin + (p.PenaltyMax-p.PenaltyMin)*frac
}

// Resolution is the result of reconciling one field.
type Resolution struct {
	Field    model.ResolvedField
	Conflict *model.ConflictRecord
}

// Resolver selects the value of a field from authority-stamped candidates.
type Resolver struct {
	table  AuthorityTable
	policy Policy
}

// NewResolver validates table and returns a resolver. An ambiguous table is
// rejected here, before any data is fetched.
func NewResolver(table AuthorityTable, policy Policy) (*Resolver, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{table: table, policy: policy}, nil
}

// Table returns the authority table.
func (r *Resolver) Table() AuthorityTable { return r.table }

// Policy returns the resolution policy.
func (r *Resolver) Policy() Policy { return r.policy }

// Resolve picks a value for field from values, which must already carry
// their authority levels. The result is deterministic in the candidate set:
// fetch order does not matter and the same input always yields the same
// output. The chosen value is always one of the candidates.
func (r *Resolver) Resolve(field, category string, values []model.FieldValue) (Resolution, error) {
	if len(values) == 0 {
		return Resolution{}, eris.Wrapf(ErrNoCandidates, "field %s", field)
	}

	det := Detect(values, r.policy.Tolerance(category))
	winner := det.Candidates[0]

	rf := model.ResolvedField{
		FieldName: field,
		Category:  category,
		Value:     winner,
		Sources:   len(det.Candidates),
	}

	if !det.Conflict {
		rf.Confidence = r.baseline(det.Candidates)
		return Resolution{Field: rf}, nil
	}

	if runner := det.Candidates[1]; runner.AuthorityLevel == winner.AuthorityLevel {
		return Resolution{}, &AmbiguousAuthorityError{
			Category: category,
			Field:    field,
			Level:    winner.AuthorityLevel,
			Sources:  []string{winner.SourceID, runner.SourceID},
		}
	}

	penalty := r.policy.Penalty(det.MaxVariance, det.Tolerance)
	support := r.baseline(agreeing(winner, det.Candidates, det.Tolerance)).Value
	ceiling := r.preConflictCeiling(det.Candidates, det.Tolerance)
	rf.Conflicted = true
	rf.Confidence = model.NewScore(model.ScopeField, math.Min(support-penalty, ceiling), map[string]float64{
		"authority":            winner.AuthorityLevel,
		"winner_support":       support,
		"conflict_penalty":     penalty,
		"pre_conflict_ceiling": ceiling,
		"max_variance":         det.MaxVariance,
	})

	rec := &model.ConflictRecord{
		FieldName:           field,
		Category:            category,
		CandidateValues:     det.Candidates,
		VariancePct:         det.MaxVariance * 100,
		Tolerance:           det.Tolerance,
		Penalty:             penalty,
		Resolution:          winner,
		ResolutionRationale: rationale(winner, det, penalty),
	}
	return Resolution{Field: rf, Conflict: rec}, nil
}

// baseline is the confidence of a conflict-free candidate set, sorted by
// authority: the winner's authority, capped by the single-source ceiling when
// nothing corroborates it.
func (r *Resolver) baseline(cands []model.FieldValue) model.ConfidenceScore {
	winner := cands[0]
	if len(cands) == 1 {
		return model.NewScore(model.ScopeField, math.Min(winner.AuthorityLevel, r.policy.SingleSourceCeiling), map[string]float64{
			"authority":             winner.AuthorityLevel,
			"single_source_ceiling": r.policy.SingleSourceCeiling,
		})
	}
	return model.NewScore(model.ScopeField, winner.AuthorityLevel, map[string]float64{
		"authority":        winner.AuthorityLevel,
		"agreeing_sources": float64(len(cands)),
	})
}

// agreeing returns the candidates within tolerance of winner, winner first.
func agreeing(winner model.FieldValue, cands []model.FieldValue, tolerance float64) []model.FieldValue {
	out := make([]model.FieldValue, 0, len(cands))
	for _, c := range cands {
		if Variance(winner.Value, c.Value) <= tolerance {
			out = append(out, c)
		}
	}
	return out
}

// preConflictCeiling is the lowest confidence among the conflict-free sets
// left by dropping a single candidate. A conflicted field never scores above
// the field it was before the dissenting source arrived.
func (r *Resolver) preConflictCeiling(cands []model.FieldValue, tolerance float64) float64 {
	ceiling := 1.0
	for i := range cands {
		rest := make([]model.FieldValue, 0, len(cands)-1)
		rest = append(rest, cands[:i]...)
		rest = append(rest, cands[i+1:]...)
		if len(rest) == 0 || Detect(rest, tolerance).Conflict {
			continue
		}
		ceiling = math.Min(ceiling, r.baseline(rest).Value)
	}
	return ceiling
}

func rationale(winner model.FieldValue, det Detection, penalty float64) string {
	others := make([]string, 0, len(det.Candidates)-1)
	for _, c := range det.Candidates[1:] {
		others = append(others, fmt.Sprintf("%s=%g (%.2f)", c.SourceID, c.Value, c.AuthorityLevel))
	}
	return fmt.Sprintf("selected %s=%g with highest authority %.2f over %s; variance %.1f%% exceeds tolerance %.1f%%, penalty %.3f",
		winner.SourceID, winner.Value, winner.AuthorityLevel, strings.Join(others, ", "),
		det.MaxVariance*100, det.Tolerance*100, penalty)
}

package model

// ConflictRecord is the audit entry for a field whose sources disagreed
// beyond tolerance. Resolution is always one of CandidateValues.
type ConflictRecord struct {
	FieldName           string       `json:"field_name" validate:"required"`
	Category            string       `json:"category"`
	CandidateValues     []FieldValue `json:"candidate_values" validate:"min=2,dive"`
	VariancePct         float64      `json:"variance_pct" validate:"gte=0"`
	Tolerance           float64      `json:"tolerance" validate:"gte=0"`
	Penalty             float64      `json:"penalty" validate:"gte=0,lte=1"`
	Resolution          FieldValue   `json:"resolution"`
	ResolutionRationale string       `json:"resolution_rationale" validate:"required"`
}

package model

import (
	"time"
)

// FieldValue is a single observation of a field reported by one source.
// It is a value type; the With* helpers return modified copies.
type FieldValue struct {
	FieldName        string    `json:"field_name" validate:"required"`
	Value            float64   `json:"value"`
	Unit             string    `json:"unit,omitempty"`
	SourceID         string    `json:"source_id" validate:"required"`
	AuthorityLevel   float64   `json:"authority_level" validate:"gte=0,lte=1"`
	ObservedAt       time.Time `json:"observed_at"`
	StalenessSeconds int64     `json:"staleness_seconds" validate:"gte=0"`
}

// WithAuthority returns a copy stamped with the configured authority level of
// its source and the staleness relative to asOf. Observations dated after asOf
// (or undated) are treated as current.
func (fv FieldValue) WithAuthority(level float64, asOf time.Time) FieldValue {
	out := fv
	out.AuthorityLevel = Clamp01(level)
	out.StalenessSeconds = 0
	if !fv.ObservedAt.IsZero() && asOf.After(fv.ObservedAt) {
		out.StalenessSeconds = int64(asOf.Sub(fv.ObservedAt) / time.Second)
	}
	return out
}

// Staleness returns the observation age as a duration.
func (fv FieldValue) Staleness() time.Duration {
	return time.Duration(fv.StalenessSeconds) * time.Second
}

// FieldSpec declares a field a phase requires.
type FieldSpec struct {
	Name       string   `yaml:"name" json:"name" validate:"required"`
	Category   string   `yaml:"category" json:"category" validate:"required"`
	Importance float64  `yaml:"importance" json:"importance" validate:"gte=0"`
	Mandatory  bool     `yaml:"mandatory" json:"mandatory"`
	Unit       string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Min        *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Weight returns the importance weight, defaulting to 1.
func (s FieldSpec) Weight() float64 {
	if s.Importance <= 0 {
		return 1
	}
	return s.Importance
}

// ResolvedField is the accepted value for a field after reconciliation.
type ResolvedField struct {
	FieldName  string          `json:"field_name" validate:"required"`
	Category   string          `json:"category"`
	Value      FieldValue      `json:"value"`
	Confidence ConfidenceScore `json:"confidence"`
	Sources    int             `json:"sources" validate:"gte=1"`
	Conflicted bool            `json:"conflicted"`
	Derived    bool            `json:"derived,omitempty"`
}

// SourceFailure explains why one source did not supply a field.
type SourceFailure struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// UnresolvedField is a required field no source could supply.
type UnresolvedField struct {
	FieldName string          `json:"field_name" validate:"required"`
	Category  string          `json:"category"`
	Mandatory bool            `json:"mandatory"`
	Failures  []SourceFailure `json:"failures,omitempty"`
}

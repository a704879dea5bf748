package model

import "math"

// Scope identifies what a ConfidenceScore describes.
type Scope string

const (
	ScopeField    Scope = "field"
	ScopeCategory Scope = "category"
	ScopePhase    Scope = "phase"
	ScopePipeline Scope = "pipeline"
)

// ConfidenceScore is a reliability value in [0,1]. Other scales (percent,
// 0-10) are presentation concerns and never stored.
type ConfidenceScore struct {
	Scope               Scope              `json:"scope" validate:"required,oneof=field category phase pipeline"`
	Value               float64            `json:"value" validate:"gte=0,lte=1"`
	ContributingFactors map[string]float64 `json:"contributing_factors,omitempty"`
}

// NewScore builds a score with the value clamped to [0,1].
func NewScore(scope Scope, value float64, factors map[string]float64) ConfidenceScore {
	return ConfidenceScore{
		Scope:               scope,
		Value:               Clamp01(value),
		ContributingFactors: factors,
	}
}

// Clamp01 clamps v into [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}

package model

// Decision is the outcome of a quality gate.
type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionDegrade Decision = "degrade"
	DecisionBlock   Decision = "block"
)

// Severity orders decisions so the worst of several can be picked.
func (d Decision) Severity() int {
	switch d {
	case DecisionProceed:
		return 0
	case DecisionDegrade:
		return 1
	default:
		return 2
	}
}

// Worst returns the more severe of two decisions.
func Worst(a, b Decision) Decision {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// QualityGateDecision is created once per phase transition and never revisited.
type QualityGateDecision struct {
	PhaseName       Phase    `json:"phase_name" validate:"required"`
	Confidence      float64  `json:"confidence" validate:"gte=0,lte=1"`
	Threshold       float64  `json:"threshold" validate:"gte=0,lte=1"`
	Decision        Decision `json:"decision" validate:"required,oneof=proceed degrade block"`
	BlockingReasons []string `json:"blocking_reasons,omitempty"`
	Notes           []string `json:"notes,omitempty"`
}

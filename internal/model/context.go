package model

import (
	"encoding/json"
	"time"
)

// PhaseContext threads run state between phases. It is append-only: With
// returns a new context and never touches the receiver. Prior results are
// shared by pointer, so phase n+1 sees phase n's result unchanged.
type PhaseContext struct {
	entityID   string
	asOf       time.Time
	results    map[Phase]PhaseResult
	decisions  []QualityGateDecision
	cumulative ConfidenceScore
}

// NewPhaseContext starts an empty context for one entity and date.
func NewPhaseContext(entityID string, asOf time.Time) PhaseContext {
	return PhaseContext{
		entityID:   entityID,
		asOf:       asOf,
		results:    map[Phase]PhaseResult{},
		cumulative: NewScore(ScopePipeline, 1, nil),
	}
}

// With returns a new context with result and its gate decision appended.
// Cumulative confidence is the minimum over all phases seen so far.
func (c PhaseContext) With(result PhaseResult, decision QualityGateDecision) PhaseContext {
	results := make(map[Phase]PhaseResult, len(c.results)+1)
	for p, r := range c.results {
		results[p] = r
	}
	results[result.PhaseName()] = result

	decisions := make([]QualityGateDecision, 0, len(c.decisions)+1)
	decisions = append(decisions, c.decisions...)
	decisions = append(decisions, decision)

	cum := c.cumulative.Value
	if v := result.Score().Value; v < cum {
		cum = v
	}

	return PhaseContext{
		entityID:  c.entityID,
		asOf:      c.asOf,
		results:   results,
		decisions: decisions,
		cumulative: NewScore(ScopePipeline, cum, map[string]float64{
			"phases": float64(len(results)),
		}),
	}
}

func (c PhaseContext) EntityID() string { return c.entityID }
func (c PhaseContext) AsOf() time.Time  { return c.asOf }

// CumulativeConfidence is the weakest phase confidence so far.
func (c PhaseContext) CumulativeConfidence() ConfidenceScore { return c.cumulative }

// Result returns the stored result for a phase.
func (c PhaseContext) Result(p Phase) (PhaseResult, bool) {
	r, ok := c.results[p]
	return r, ok
}

// Decisions returns a copy of the gate decisions in phase order.
func (c PhaseContext) Decisions() []QualityGateDecision {
	out := make([]QualityGateDecision, len(c.decisions))
	copy(out, c.decisions)
	return out
}

// Discovery returns the Discover result, or nil if that phase has not run.
func (c PhaseContext) Discovery() *DiscoveryResult {
	r, _ := c.results[PhaseDiscover].(*DiscoveryResult)
	return r
}

// Analysis returns the Analyze result, or nil.
func (c PhaseContext) Analysis() *AnalysisResult {
	r, _ := c.results[PhaseAnalyze].(*AnalysisResult)
	return r
}

// Synthesis returns the Synthesize result, or nil.
func (c PhaseContext) Synthesis() *SynthesisResult {
	r, _ := c.results[PhaseSynthesize].(*SynthesisResult)
	return r
}

// Validation returns the Validate result, or nil.
func (c PhaseContext) Validation() *ValidationReport {
	r, _ := c.results[PhaseValidate].(*ValidationReport)
	return r
}

// MarshalJSON exposes the context for partial-result inspection.
func (c PhaseContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EntityID             string                `json:"entity_id"`
		AsOf                 string                `json:"as_of_date"`
		PriorResults         map[Phase]PhaseResult `json:"prior_results"`
		Decisions            []QualityGateDecision `json:"decisions"`
		CumulativeConfidence ConfidenceScore       `json:"cumulative_confidence"`
	}{
		EntityID:             c.entityID,
		AsOf:                 c.asOf.Format(time.DateOnly),
		PriorResults:         c.results,
		Decisions:            c.decisions,
		CumulativeConfidence: c.cumulative,
	})
}

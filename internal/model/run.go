package model

import (
	"time"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued       RunStatus = "queued"
	RunStatusDiscovering  RunStatus = "discovering"
	RunStatusAnalyzing    RunStatus = "analyzing"
	RunStatusSynthesizing RunStatus = "synthesizing"
	RunStatusValidating   RunStatus = "validating"
	RunStatusComplete     RunStatus = "complete"
	RunStatusDegraded     RunStatus = "degraded"
	RunStatusBlocked      RunStatus = "blocked"
	RunStatusFailed       RunStatus = "failed"
)

// StatusFor returns the in-progress run status for a phase.
func StatusFor(p Phase) RunStatus {
	switch p {
	case PhaseDiscover:
		return RunStatusDiscovering
	case PhaseAnalyze:
		return RunStatusAnalyzing
	case PhaseSynthesize:
		return RunStatusSynthesizing
	case PhaseValidate:
		return RunStatusValidating
	default:
		return RunStatusQueued
	}
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusComplete, RunStatusDegraded, RunStatusBlocked, RunStatusFailed:
		return true
	}
	return false
}

// Run is one audited invocation of the pipeline.
type Run struct {
	ID        string          `json:"id"`
	EntityID  string          `json:"entity_id"`
	AsOf      time.Time       `json:"as_of"`
	Status    RunStatus       `json:"status"`
	Result    *PipelineResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusDegraded PhaseStatus = "degraded"
	PhaseStatusBlocked  PhaseStatus = "blocked"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      Phase        `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Record    *PhaseRecord `json:"record,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseRecord is the audit summary stored for a finished phase.
type PhaseRecord struct {
	Phase      Phase                `json:"phase"`
	Status     PhaseStatus          `json:"status"`
	Duration   int64                `json:"duration_ms"`
	Attempts   int                  `json:"attempts"`
	Confidence float64              `json:"confidence"`
	Decision   *QualityGateDecision `json:"decision,omitempty"`
	Conflicts  []ConflictRecord     `json:"conflicts,omitempty"`
	Unresolved []UnresolvedField    `json:"unresolved,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// PipelineResult is the final output of a run that was not blocked.
type PipelineResult struct {
	RunID           string                `json:"run_id"`
	EntityID        string                `json:"entity_id"`
	AsOf            time.Time             `json:"as_of"`
	Discovery       *DiscoveryResult      `json:"discovery"`
	Analysis        *AnalysisResult       `json:"analysis"`
	Synthesis       *SynthesisResult      `json:"synthesis"`
	Validation      *ValidationReport     `json:"validation"`
	Decisions       []QualityGateDecision `json:"decisions"`
	Confidence      ConfidenceScore       `json:"confidence"`
	Degraded        bool                  `json:"degraded"`
	DegradedReasons []string              `json:"degraded_reasons,omitempty"`
	Artifacts       []string              `json:"artifacts,omitempty"`
}

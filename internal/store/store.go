// Package store persists the audit trail of pipeline runs: the run itself,
// each phase record and every quality gate decision.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// ErrNotFound is returned when a run or phase does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	EntityID string          `json:"entity_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, entityID string, asOf time.Time) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.PipelineResult, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name model.Phase) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, record *model.PhaseRecord) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Gate decisions
	RecordDecision(ctx context.Context, runID string, decision model.QualityGateDecision) error
	ListDecisions(ctx context.Context, runID string) ([]model.QualityGateDecision, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Sentinels for errors.Is matching.
var (
	ErrBlocked         = eris.New("pipeline blocked")
	ErrSchemaViolation = eris.New("artifact schema violation")
)

// PipelineBlockedError is returned when a quality gate blocks the run. It
// carries the context as it stood after the blocked phase so callers can
// inspect partial results. No field of a blocked run is trustworthy output.
type PipelineBlockedError struct {
	Phase    model.Phase
	Decision model.QualityGateDecision
	Context  model.PhaseContext
}

func (e *PipelineBlockedError) Error() string {
	msg := fmt.Sprintf("pipeline: blocked at %s (confidence %.3f)", e.Phase, e.Decision.Confidence)
	if len(e.Decision.BlockingReasons) > 0 {
		msg += ": " + strings.Join(e.Decision.BlockingReasons, "; ")
	}
	return msg
}

func (e *PipelineBlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// SchemaViolationError is returned when a phase artifact fails its schema.
// It is always fatal.
type SchemaViolationError struct {
	Phase      model.Phase
	Violations []string
	Err        error
}

func (e *SchemaViolationError) Error() string {
	msg := fmt.Sprintf("pipeline: %s artifact violates schema", e.Phase)
	if len(e.Violations) > 0 {
		msg += ": " + strings.Join(e.Violations, "; ")
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

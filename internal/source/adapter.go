// Package source defines the adapter contract for external data sources and
// the error taxonomy the pipeline uses to decide retry and degradation.
package source

import (
	"context"
	"slices"
	"time"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// HealthStatus is the result of an adapter health probe.
type HealthStatus struct {
	Source  string        `json:"source"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency_ns"`
	Detail  string        `json:"detail,omitempty"`
}

// Adapter wraps one external data source.
type Adapter interface {
	// Name returns the source id (matches source ids in the authority table).
	Name() string
	// SupportedFields returns the field names this source can supply.
	SupportedFields() []string
	// Fetch returns the source's observation of field for entityID as of asOf.
	// Errors should be classified with the Error kinds in this package.
	Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error)
	// HealthCheck probes the source.
	HealthCheck(ctx context.Context) HealthStatus
}

// Supports reports whether a can supply field.
func Supports(a Adapter, field string) bool {
	return slices.Contains(a.SupportedFields(), field)
}

// ProbeHealth times probe and reports the outcome for source name.
func ProbeHealth(ctx context.Context, name string, probe func(ctx context.Context) error) HealthStatus {
	start := time.Now()
	err := probe(ctx)
	hs := HealthStatus{
		Source:  name,
		Healthy: err == nil,
		Latency: time.Since(start),
	}
	if err != nil {
		hs.Detail = err.Error()
	}
	return hs
}

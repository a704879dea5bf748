// Package pipeline runs the four gated phases of a reconciliation run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/confidence"
	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/gate"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/source"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// DefaultConcurrency bounds in-flight fetches when no limit is configured.
const DefaultConcurrency = 8

// Orchestrator runs Discover, Analyze, Synthesize and Validate in order,
// gating after each one.
type Orchestrator struct {
	plan       *config.Plan
	registry   *source.Registry
	resolver   *reconcile.Resolver
	aggregator *confidence.Aggregator
	gate       *gate.Gate

	retry       resilience.RetryConfig
	concurrency int
	timeout     time.Duration
	store       store.Store
	artifacts   *ArtifactWriter
	metrics     *Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore records runs, phases and gate decisions in st.
func WithStore(st store.Store) Option {
	return func(o *Orchestrator) { o.store = st }
}

// WithArtifactDir writes phase artifacts under dir.
func WithArtifactDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.artifacts = NewArtifactWriter(dir)
		}
	}
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRetry sets the phase collection retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithConcurrency bounds in-flight fetches.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithTimeout bounds a whole run.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// OptionsFromConfig maps pipeline settings onto options.
func OptionsFromConfig(cfg config.PipelineConfig) []Option {
	return []Option{
		WithRetry(resilience.FromRetryConfig(cfg.MaxRetries, cfg.RetryBaseDelayMs, cfg.RetryMaxDelayMs, cfg.RetryMultiplier, 0)),
		WithConcurrency(cfg.ConcurrencyLimit),
		WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second),
		WithArtifactDir(cfg.ArtifactDir),
	}
}

// New validates plan and builds an orchestrator over the adapters in reg.
// An ambiguous authority table fails here, before any run starts.
func New(plan *config.Plan, reg *source.Registry, opts ...Option) (*Orchestrator, error) {
	if plan == nil {
		return nil, eris.New("pipeline: nil plan")
	}
	if reg == nil {
		return nil, eris.New("pipeline: nil registry")
	}
	if err := plan.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid plan")
	}
	resolver, err := reconcile.NewResolver(plan.Authority, plan.Resolution)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build resolver")
	}

	o := &Orchestrator{
		plan:        plan,
		registry:    reg,
		resolver:    resolver,
		aggregator:  confidence.NewAggregator(plan.Staleness),
		gate:        gate.New(plan.Gate),
		retry:       resilience.DefaultRetryConfig(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}

	for _, name := range plan.Sources() {
		if reg.Get(name) == nil {
			zap.L().Warn("pipeline: ranked source has no adapter", zap.String("source", name))
		}
	}
	return o, nil
}

// RunPipeline builds an orchestrator and runs it once.
func RunPipeline(ctx context.Context, entityID string, asOf time.Time, plan *config.Plan, reg *source.Registry, opts ...Option) (*model.PipelineResult, error) {
	o, err := New(plan, reg, opts...)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, entityID, asOf)
}

type phaseStep struct {
	phase model.Phase
	run   PhaseFunc
}

func (o *Orchestrator) steps() []phaseStep {
	return []phaseStep{
		{model.PhaseDiscover, o.discover},
		{model.PhaseAnalyze, o.analyze},
		{model.PhaseSynthesize, o.synthesize},
		{model.PhaseValidate, o.validateAll},
	}
}

// Run reconciles entityID as of asOf. A Block at any gate stops the run and
// returns *PipelineBlockedError. Degrade decisions let the run continue and
// mark the result degraded. Adapter failures never abort a run.
func (o *Orchestrator) Run(ctx context.Context, entityID string, asOf time.Time) (*model.PipelineResult, error) {
	if entityID == "" {
		return nil, eris.New("pipeline: entity id is required")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	log := zap.L().With(zap.String("entity", entityID), zap.String("as_of", asOf.Format(time.DateOnly)))

	runID := uuid.NewString()
	if o.store != nil {
		run, err := o.store.CreateRun(ctx, entityID, asOf)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
	}
	log = log.With(zap.String("run_id", runID))
	log.Info("pipeline: starting run")

	result := &model.PipelineResult{RunID: runID, EntityID: entityID, AsOf: asOf}
	pc := model.NewPhaseContext(entityID, asOf)

	for _, step := range o.steps() {
		o.setStatus(ctx, log, runID, model.StatusFor(step.phase))
		phaseRow := o.createPhase(ctx, log, runID, step.phase)

		start := time.Now()
		out, err := step.run(ctx, pc)
		elapsed := time.Since(start)

		rec := &model.PhaseRecord{Phase: step.phase, Duration: elapsed.Milliseconds(), Attempts: out.Attempts}
		if err != nil {
			rec.Status = model.PhaseStatusFailed
			rec.Error = err.Error()
			log.Error("pipeline: phase failed", zap.String("phase", string(step.phase)), zap.Error(err))
			o.completePhase(ctx, log, phaseRow, rec)
			o.finish(ctx, log, runID, model.RunStatusFailed, nil, err.Error())
			return nil, eris.Wrapf(err, "pipeline: %s", step.phase)
		}

		decision := o.gate.Evaluate(out.Gate)
		pc = pc.With(out.Result, decision)
		o.metrics.phase(step.phase, elapsed, decision)
		if o.store != nil {
			if err := o.store.RecordDecision(ctx, runID, decision); err != nil {
				log.Warn("pipeline: failed to record decision", zap.String("phase", string(step.phase)), zap.Error(err))
			}
		}

		rec.Confidence = decision.Confidence
		rec.Decision = &decision
		rec.Conflicts = out.Result.ConflictRecords()
		rec.Unresolved = unresolvedOf(out.Result)
		rec.Status = phaseStatus(decision.Decision)

		if o.artifacts != nil {
			path, err := o.artifacts.Write(NewArtifact(runID, pc, out.Result, decision))
			if err != nil {
				rec.Status = model.PhaseStatusFailed
				rec.Error = err.Error()
				o.completePhase(ctx, log, phaseRow, rec)
				o.finish(ctx, log, runID, model.RunStatusFailed, nil, err.Error())
				return nil, err
			}
			result.Artifacts = append(result.Artifacts, path)
		}
		o.completePhase(ctx, log, phaseRow, rec)

		log.Info("pipeline: phase complete",
			zap.String("phase", string(step.phase)),
			zap.String("decision", string(decision.Decision)),
			zap.Float64("confidence", decision.Confidence),
			zap.Int("attempts", out.Attempts),
			zap.Duration("elapsed", elapsed),
		)

		switch decision.Decision {
		case model.DecisionBlock:
			blocked := &PipelineBlockedError{Phase: step.phase, Decision: decision, Context: pc}
			o.finish(ctx, log, runID, model.RunStatusBlocked, nil, blocked.Error())
			return nil, blocked
		case model.DecisionDegrade:
			result.Degraded = true
			for _, note := range decision.Notes {
				result.DegradedReasons = append(result.DegradedReasons, fmt.Sprintf("%s: %s", step.phase, note))
			}
		}
	}

	result.Discovery = pc.Discovery()
	result.Analysis = pc.Analysis()
	result.Synthesis = pc.Synthesis()
	result.Validation = pc.Validation()
	result.Decisions = pc.Decisions()

	scores := make([]model.ConfidenceScore, 0, len(model.Phases))
	for _, p := range model.Phases {
		if r, ok := pc.Result(p); ok {
			scores = append(scores, r.Score())
		}
	}
	result.Confidence = confidence.Pipeline(scores...)

	status := model.RunStatusComplete
	if result.Degraded {
		status = model.RunStatusDegraded
	}
	o.finish(ctx, log, runID, status, result, "")
	return result, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus) {
	if o.store == nil {
		return
	}
	if err := o.store.UpdateRunStatus(ctx, runID, status); err != nil {
		log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (o *Orchestrator) createPhase(ctx context.Context, log *zap.Logger, runID string, phase model.Phase) *model.RunPhase {
	if o.store == nil {
		return nil
	}
	rp, err := o.store.CreatePhase(ctx, runID, phase)
	if err != nil {
		log.Warn("pipeline: failed to create phase", zap.String("phase", string(phase)), zap.Error(err))
		return nil
	}
	return rp
}

func (o *Orchestrator) completePhase(ctx context.Context, log *zap.Logger, rp *model.RunPhase, rec *model.PhaseRecord) {
	if o.store == nil || rp == nil {
		return
	}
	if err := o.store.CompletePhase(ctx, rp.ID, rec); err != nil {
		log.Warn("pipeline: failed to complete phase", zap.String("phase", string(rec.Phase)), zap.Error(err))
	}
}

// finish records the terminal status. It uses a fresh context so a run
// that timed out is still recorded.
func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus, result *model.PipelineResult, errMsg string) {
	o.metrics.run(status)
	log.Info("pipeline: run finished", zap.String("status", string(status)))
	if o.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.CompleteRun(sctx, runID, status, result, errMsg); err != nil {
		log.Warn("pipeline: failed to complete run", zap.Error(err))
	}
}

func phaseStatus(d model.Decision) model.PhaseStatus {
	switch d {
	case model.DecisionBlock:
		return model.PhaseStatusBlocked
	case model.DecisionDegrade:
		return model.PhaseStatusDegraded
	default:
		return model.PhaseStatusComplete
	}
}

func unresolvedOf(r model.PhaseResult) []model.UnresolvedField {
	switch v := r.(type) {
	case *model.DiscoveryResult:
		return v.Unresolved
	case *model.AnalysisResult:
		return v.Unresolved
	case *model.SynthesisResult:
		return v.Unresolved
	}
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/source"
)

// Failure kinds recorded for fields that never reached a source.
const (
	kindNoSource   = "no_source"
	kindAmbiguous  = "ambiguous_authority"
	kindDerivation = "derivation"
)

// errRetryableFetches marks a collection attempt in which at least one fetch
// failed with a retryable kind.
var errRetryableFetches = eris.New("pipeline: retryable fetch failures")

type fetchTask struct {
	spec    model.FieldSpec
	adapter source.Adapter
	level   float64
}

type fetchResult struct {
	task  fetchTask
	value model.FieldValue
	err   error
}

// collection is the raw outcome of one collection attempt, keyed by field.
type collection struct {
	values    map[string][]model.FieldValue
	failures  map[string][]model.SourceFailure
	retryable int
}

// tasks plans one fetch per (field, source) pair the authority table ranks
// for the field's category and the registry can serve.
func (o *Orchestrator) tasks(specs []model.FieldSpec) []fetchTask {
	table := o.resolver.Table()
	var out []fetchTask
	for _, spec := range specs {
		for _, a := range o.registry.ForField(spec.Name, table.SourceNames(spec.Category)) {
			level, _ := table.Level(spec.Category, a.Name())
			out = append(out, fetchTask{spec: spec, adapter: a, level: level})
		}
	}
	return out
}

// collectOnce runs every task through a bounded pool. One adapter failing
// never cancels the others. If ctx ends, the partial results are dropped.
func (o *Orchestrator) collectOnce(ctx context.Context, tasks []fetchTask, entityID string, asOf time.Time) (*collection, error) {
	results := make([]fetchResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, t := range tasks {
		g.Go(func() error {
			start := time.Now()
			v, err := t.adapter.Fetch(gctx, t.spec.Name, entityID, asOf)
			if err == nil {
				v, err = normalize(t, v, asOf)
			}
			o.metrics.fetch(t.adapter.Name(), err, time.Since(start))
			results[i] = fetchResult{task: t, value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: collection interrupted")
	}

	col := &collection{
		values:   map[string][]model.FieldValue{},
		failures: map[string][]model.SourceFailure{},
	}
	for _, r := range results {
		name := r.task.spec.Name
		if r.err == nil {
			col.values[name] = append(col.values[name], r.value)
			continue
		}
		se := source.Classify(r.task.adapter.Name(), name, r.err)
		if source.IsRetryable(se) {
			col.retryable++
		}
		col.failures[name] = append(col.failures[name], model.SourceFailure{
			Source:  r.task.adapter.Name(),
			Kind:    string(se.Kind),
			Message: r.err.Error(),
		})
	}
	return col, nil
}

// normalize fills identity fields the adapter left blank, rejects values the
// pipeline cannot use and stamps the configured authority.
func normalize(t fetchTask, v model.FieldValue, asOf time.Time) (model.FieldValue, error) {
	name, src := t.spec.Name, t.adapter.Name()
	if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
		return model.FieldValue{}, source.Malformed(src, name, eris.Errorf("non-finite value %v", v.Value))
	}
	if v.Unit == "" {
		v.Unit = t.spec.Unit
	} else if t.spec.Unit != "" && !strings.EqualFold(v.Unit, t.spec.Unit) {
		return model.FieldValue{}, source.Malformed(src, name, eris.Errorf("unit %q, want %q", v.Unit, t.spec.Unit))
	}
	v.FieldName = name
	v.SourceID = src
	return v.WithAuthority(t.level, asOf), nil
}

// collect fetches and resolves specs for one phase. Retryable failures
// re-run the whole collection with backoff; once retries are spent the
// affected fields stay unresolved. The returned conditions block the phase.
func (o *Orchestrator) collect(ctx context.Context, phase model.Phase, specs []model.FieldSpec, pc model.PhaseContext) (model.FieldSet, []string, error) {
	log := zap.L().With(zap.String("phase", string(phase)), zap.String("entity", pc.EntityID()))
	tasks := o.tasks(specs)

	cfg := o.retry
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errRetryableFetches) }
	cfg.OnRetry = resilience.RetryLogger("pipeline", string(phase)+" collection")

	out := resilience.Retry(ctx, cfg, func(ctx context.Context, _ int) (*collection, error) {
		col, err := o.collectOnce(ctx, tasks, pc.EntityID(), pc.AsOf())
		if err != nil {
			return nil, err
		}
		if col.retryable > 0 {
			return col, errRetryableFetches
		}
		return col, nil
	})
	if err := ctx.Err(); err != nil {
		return model.FieldSet{}, nil, eris.Wrapf(err, "pipeline: %s collection", phase)
	}
	if out.Value == nil {
		return model.FieldSet{}, nil, eris.Wrapf(out.Err, "pipeline: %s collection", phase)
	}
	col := out.Value
	if out.Err != nil {
		log.Warn("pipeline: retries exhausted, leaving failed fields unresolved",
			zap.Int("attempts", out.Attempts),
			zap.Int("retryable_failures", col.retryable),
		)
	}

	fs := model.FieldSet{
		Fields:   make(map[string]model.ResolvedField, len(specs)),
		Attempts: out.Attempts,
	}
	var blocking []string
	for _, spec := range specs {
		values := col.values[spec.Name]
		if len(values) == 0 {
			failures := col.failures[spec.Name]
			if len(failures) == 0 {
				failures = []model.SourceFailure{{
					Source:  "none",
					Kind:    kindNoSource,
					Message: fmt.Sprintf("no configured source supplies category %q", spec.Category),
				}}
			}
			blocking = append(blocking, o.unresolve(&fs, spec, failures)...)
			log.Warn("pipeline: field unresolved",
				zap.String("field", spec.Name),
				zap.Bool("mandatory", spec.Mandatory),
				zap.String("failures", describeFailures(failures)),
			)
			continue
		}

		res, err := o.resolver.Resolve(spec.Name, spec.Category, values)
		var amb *reconcile.AmbiguousAuthorityError
		if errors.As(err, &amb) {
			fs.Unresolved = append(fs.Unresolved, model.UnresolvedField{
				FieldName: spec.Name,
				Category:  spec.Category,
				Mandatory: spec.Mandatory,
				Failures: []model.SourceFailure{{
					Source:  strings.Join(amb.Sources, ","),
					Kind:    kindAmbiguous,
					Message: amb.Error(),
				}},
			})
			blocking = append(blocking, amb.Error())
			continue
		}
		if err != nil {
			return model.FieldSet{}, nil, eris.Wrapf(err, "pipeline: resolve %s", spec.Name)
		}

		fs.Fields[spec.Name] = res.Field
		if res.Conflict != nil {
			fs.Conflicts = append(fs.Conflicts, *res.Conflict)
			o.metrics.conflict(phase, spec.Category)
			log.Info("pipeline: conflict resolved",
				zap.String("field", spec.Name),
				zap.String("source", res.Conflict.Resolution.SourceID),
				zap.Float64("variance_pct", res.Conflict.VariancePct),
				zap.Float64("confidence", res.Field.Confidence.Value),
			)
		}
		if f := col.failures[spec.Name]; len(f) > 0 {
			log.Debug("pipeline: field resolved despite source failures",
				zap.String("field", spec.Name),
				zap.String("failures", describeFailures(f)),
			)
		}
	}
	return fs, blocking, nil
}

// unresolve records spec as unresolved and returns the blocking condition
// a mandatory field raises.
func (o *Orchestrator) unresolve(fs *model.FieldSet, spec model.FieldSpec, failures []model.SourceFailure) []string {
	fs.Unresolved = append(fs.Unresolved, model.UnresolvedField{
		FieldName: spec.Name,
		Category:  spec.Category,
		Mandatory: spec.Mandatory,
		Failures:  failures,
	})
	if !spec.Mandatory {
		return nil
	}
	return []string{fmt.Sprintf("mandatory field %s unresolved: %s", spec.Name, describeFailures(failures))}
}

func describeFailures(failures []model.SourceFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Source, f.Kind))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

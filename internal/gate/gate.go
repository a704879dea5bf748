// Package gate decides whether the pipeline may continue after a phase.
package gate

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// epsilon absorbs float rounding in products like completeness × mean ×
// staleness, so a score that equals a threshold on paper still meets it. It
// is far below any real miss: 0.799999 against 0.80 still blocks.
const epsilon = 1e-9

// Thresholds is a pair of gate cut-offs.
type Thresholds struct {
	Institutional float64 `yaml:"institutional" mapstructure:"institutional" validate:"gte=0,lte=1"`
	Minimum       float64 `yaml:"minimum" mapstructure:"minimum" validate:"gte=0,lte=1"`
}

// Validate checks 0 <= minimum <= institutional <= 1.
func (t Thresholds) Validate() error {
	if t.Minimum < 0 || t.Institutional > 1 || t.Minimum > t.Institutional {
		return eris.Errorf("gate: invalid thresholds minimum=%.2f institutional=%.2f", t.Minimum, t.Institutional)
	}
	return nil
}

// Config holds the gate's thresholds and their overrides.
type Config struct {
	Thresholds          Thresholds                 `yaml:"thresholds" mapstructure:"thresholds"`
	Phases              map[model.Phase]Thresholds `yaml:"phases" mapstructure:"phases"`
	Categories          map[string]Thresholds      `yaml:"categories" mapstructure:"categories"`
	DegradedModeAllowed bool                       `yaml:"degraded_mode_allowed" mapstructure:"degraded_mode_allowed"`
	// CompletenessFloor is the minimum share of non-mandatory fields that
	// must resolve.
	CompletenessFloor float64 `yaml:"completeness_floor" mapstructure:"completeness_floor" validate:"gte=0,lte=1"`
}

// DefaultConfig returns institutional 0.90, minimum 0.80, degraded mode on
// and a completeness floor of 0.80.
func DefaultConfig() Config {
	return Config{
		Thresholds:          Thresholds{Institutional: 0.90, Minimum: 0.80},
		DegradedModeAllowed: true,
		CompletenessFloor:   0.80,
	}
}

// Validate checks every threshold pair.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	for p, t := range c.Phases {
		if err := t.Validate(); err != nil {
			return eris.Wrapf(err, "phase %s", p)
		}
	}
	for cat, t := range c.Categories {
		if err := t.Validate(); err != nil {
			return eris.Wrapf(err, "category %s", cat)
		}
	}
	if c.CompletenessFloor < 0 || c.CompletenessFloor > 1 {
		return eris.Errorf("gate: completeness floor %.2f outside [0,1]", c.CompletenessFloor)
	}
	return nil
}

// ThresholdsFor returns the phase override or the default thresholds.
func (c Config) ThresholdsFor(p model.Phase) Thresholds {
	if t, ok := c.Phases[p]; ok {
		return t
	}
	return c.Thresholds
}

// Input is everything the gate looks at for one phase.
type Input struct {
	Phase      model.Phase
	Confidence model.ConfidenceScore
	// OptionalCompleteness is checked against the floor when set.
	OptionalCompleteness *float64
	Categories           map[string]model.ConfidenceScore
	BlockingConditions   []string
}

// Gate evaluates phase results. It holds no state between calls.
type Gate struct {
	cfg Config
}

// New returns a gate for cfg.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Config returns the gate configuration.
func (g *Gate) Config() Config { return g.cfg }

// Evaluate produces the phase's decision. Any blocking condition blocks
// regardless of confidence. Otherwise the phase score and every overridden
// category score are judged and the worst decision wins.
func (g *Gate) Evaluate(in Input) model.QualityGateDecision {
	th := g.cfg.ThresholdsFor(in.Phase)
	d := model.QualityGateDecision{
		PhaseName:  in.Phase,
		Confidence: in.Confidence.Value,
		Threshold:  th.Institutional,
		Decision:   model.DecisionProceed,
	}

	blocking := append([]string(nil), in.BlockingConditions...)
	if in.OptionalCompleteness != nil && *in.OptionalCompleteness < g.cfg.CompletenessFloor-epsilon {
		blocking = append(blocking, fmt.Sprintf("completeness %.0f%% of non-mandatory fields below floor %.0f%%",
			*in.OptionalCompleteness*100, g.cfg.CompletenessFloor*100))
	}
	if len(blocking) > 0 {
		d.Decision = model.DecisionBlock
		d.BlockingReasons = blocking
		return d
	}

	dec, reason := g.judge("phase "+string(in.Phase), in.Confidence.Value, th)
	g.apply(&d, dec, reason)

	cats := make([]string, 0, len(in.Categories))
	for cat := range in.Categories {
		if _, ok := g.cfg.Categories[cat]; ok {
			cats = append(cats, cat)
		}
	}
	sort.Strings(cats)
	for _, cat := range cats {
		dec, reason := g.judge("category "+cat, in.Categories[cat].Value, g.cfg.Categories[cat])
		g.apply(&d, dec, reason)
	}

	if d.Decision == model.DecisionProceed {
		d.Notes = append(d.Notes, fmt.Sprintf("confidence %.3f meets institutional threshold %.2f", d.Confidence, th.Institutional))
	}
	return d
}

func (g *Gate) judge(subject string, score float64, th Thresholds) (model.Decision, string) {
	switch {
	case score >= th.Institutional-epsilon:
		return model.DecisionProceed, ""
	case score >= th.Minimum-epsilon && g.cfg.DegradedModeAllowed:
		return model.DecisionDegrade, fmt.Sprintf("%s confidence %.3f below institutional threshold %.2f",
			subject, score, th.Institutional)
	case score >= th.Minimum-epsilon:
		return model.DecisionBlock, fmt.Sprintf("%s confidence %.3f below institutional threshold %.2f and degraded mode is not allowed",
			subject, score, th.Institutional)
	default:
		return model.DecisionBlock, fmt.Sprintf("%s confidence %.3f below minimum threshold %.2f",
			subject, score, th.Minimum)
	}
}

func (g *Gate) apply(d *model.QualityGateDecision, dec model.Decision, reason string) {
	d.Decision = model.Worst(d.Decision, dec)
	switch dec {
	case model.DecisionBlock:
		d.BlockingReasons = append(d.BlockingReasons, reason)
	case model.DecisionDegrade:
		d.Notes = append(d.Notes, reason)
	}
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reconcile-cli/internal/confidence"
	"github.com/sells-group/reconcile-cli/internal/gate"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
)

// Derived metric operations.
const (
	OpRatio      = "ratio"
	OpDifference = "difference"
	OpPctChange  = "pct_change"
)

// Plan is the reconciliation plan: who is trusted for what, which fields
// each phase needs and how strict each gate is. It is read from YAML.
type Plan struct {
	Authority  reconcile.AuthorityTable  `yaml:"authority"`
	Resolution reconcile.Policy          `yaml:"resolution"`
	Gate       gate.Config               `yaml:"gate"`
	Staleness  confidence.DecayConfig    `yaml:"staleness"`
	Phases     map[model.Phase]PhasePlan `yaml:"phases" validate:"dive"`
	Validation ValidationPlan            `yaml:"validation"`
}

// PhasePlan lists the fields a data-collecting phase resolves.
type PhasePlan struct {
	Fields  []model.FieldSpec `yaml:"fields" validate:"dive"`
	Derived []DerivedSpec     `yaml:"derived,omitempty" validate:"dive"`
}

// DerivedSpec declares a metric computed in Analyze from two resolved fields.
type DerivedSpec struct {
	Name       string   `yaml:"name" validate:"required"`
	Operation  string   `yaml:"operation" validate:"required,oneof=ratio difference pct_change"`
	Inputs     []string `yaml:"inputs" validate:"len=2"`
	Category   string   `yaml:"category"`
	Importance float64  `yaml:"importance" validate:"gte=0"`
	Mandatory  bool     `yaml:"mandatory"`
	Unit       string   `yaml:"unit,omitempty"`
	Min        *float64 `yaml:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty"`
}

// Spec returns the field spec the aggregator and validator use for the
// derived metric.
func (d DerivedSpec) Spec() model.FieldSpec {
	return model.FieldSpec{
		Name:       d.Name,
		Category:   d.Category,
		Importance: d.Importance,
		Mandatory:  d.Mandatory,
		Unit:       d.Unit,
		Min:        d.Min,
		Max:        d.Max,
	}
}

// Metric returns the model form of the derived metric.
func (d DerivedSpec) Metric() model.DerivedMetric {
	return model.DerivedMetric{Name: d.Name, Operation: d.Operation, Inputs: d.Inputs}
}

// ValidationPlan tunes the Validate phase checks.
type ValidationPlan struct {
	// AgreementTolerance is the relative variance allowed when a field is
	// resolved in more than one phase.
	AgreementTolerance float64 `yaml:"agreement_tolerance" validate:"gte=0"`
	// Weights per check kind: mandatory, range, agreement.
	Weights map[string]float64 `yaml:"weights"`
	// Blocking lists check kinds whose failure blocks the run.
	Blocking []string `yaml:"blocking"`
}

// IsBlocking reports whether a failed check of kind blocks the run.
func (v ValidationPlan) IsBlocking(kind string) bool {
	for _, k := range v.Blocking {
		if k == kind {
			return true
		}
	}
	return false
}

// Weight returns the configured weight for kind, defaulting to 1.
func (v ValidationPlan) Weight(kind string) float64 {
	if w, ok := v.Weights[kind]; ok && w > 0 {
		return w
	}
	return 1
}

// DefaultPlan returns a plan with default policy, gate and staleness
// settings and no fields.
func DefaultPlan() Plan {
	return Plan{
		Resolution: reconcile.DefaultPolicy(),
		Gate:       gate.DefaultConfig(),
		Staleness:  confidence.DefaultDecay(),
		Phases:     map[model.Phase]PhasePlan{},
		Validation: ValidationPlan{
			AgreementTolerance: 0.01,
			Weights:            map[string]float64{"mandatory": 3, "range": 2, "agreement": 2},
			Blocking:           []string{"mandatory"},
		},
	}
}

// LoadPlan reads a plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read plan %s", path)
	}
	return ParsePlan(data)
}

// ParsePlan decodes YAML over the default plan, fills field categories from
// the authority table and validates the result.
func ParsePlan(data []byte) (*Plan, error) {
	plan := DefaultPlan()
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, eris.Wrap(err, "config: parse plan")
	}

	for phase, pp := range plan.Phases {
		for i, f := range pp.Fields {
			if f.Category == "" {
				if cat, ok := plan.Authority.CategoryOf(f.Name); ok {
					pp.Fields[i].Category = cat
				}
			}
		}
		plan.Phases[phase] = pp
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks the plan at setup. Ambiguous authority is reported as a
// *reconcile.AmbiguousAuthorityError.
func (p *Plan) Validate() error {
	if err := p.Authority.Validate(); err != nil {
		return err
	}
	if err := p.Gate.Validate(); err != nil {
		return err
	}

	var errs []string
	if err := validate.Struct(p); err != nil {
		errs = append(errs, err.Error())
	}

	for phase := range p.Phases {
		if phase != model.PhaseDiscover && phase != model.PhaseAnalyze && phase != model.PhaseSynthesize {
			errs = append(errs, fmt.Sprintf("phases: %q does not collect fields", phase))
		}
	}

	declared := map[string]bool{}
	for _, phase := range model.Phases {
		pp, ok := p.Phases[phase]
		if !ok {
			continue
		}
		names := map[string]bool{}
		for _, f := range pp.Fields {
			if names[f.Name] {
				errs = append(errs, fmt.Sprintf("phases.%s: field %q declared twice", phase, f.Name))
			}
			names[f.Name] = true
			declared[f.Name] = true
			if _, ok := p.Authority.Categories[f.Category]; !ok {
				errs = append(errs, fmt.Sprintf("phases.%s: field %q has unknown category %q", phase, f.Name, f.Category))
			}
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				errs = append(errs, fmt.Sprintf("phases.%s: field %q min > max", phase, f.Name))
			}
		}
		for _, d := range pp.Derived {
			if phase != model.PhaseAnalyze {
				errs = append(errs, fmt.Sprintf("phases.%s: derived metrics belong to analyze", phase))
				continue
			}
			for _, in := range d.Inputs {
				if !declared[in] {
					errs = append(errs, fmt.Sprintf("phases.%s: derived %q input %q is not a discover or analyze field", phase, d.Name, in))
				}
			}
			if declared[d.Name] {
				errs = append(errs, fmt.Sprintf("phases.%s: derived %q shadows a field", phase, d.Name))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid plan: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FieldsFor returns the field specs of phase, including derived metrics.
func (p *Plan) FieldsFor(phase model.Phase) []model.FieldSpec {
	pp := p.Phases[phase]
	specs := append([]model.FieldSpec(nil), pp.Fields...)
	for _, d := range pp.Derived {
		specs = append(specs, d.Spec())
	}
	return specs
}

// AllFields returns every declared field spec in phase order. A field
// declared in several phases appears once per phase.
func (p *Plan) AllFields() []model.FieldSpec {
	var out []model.FieldSpec
	for _, phase := range model.Phases {
		out = append(out, p.FieldsFor(phase)...)
	}
	return out
}

// Sources returns every source id referenced by the authority table.
func (p *Plan) Sources() []string {
	seen := map[string]bool{}
	var out []string
	for _, entries := range p.Authority.Categories {
		for _, e := range entries {
			if !seen[e.Source] {
				seen[e.Source] = true
				out = append(out, e.Source)
			}
		}
	}
	sort.Strings(out)
	return out
}

package model

import "sort"

// Phase names a pipeline phase.
type Phase string

const (
	PhaseDiscover   Phase = "discover"
	PhaseAnalyze    Phase = "analyze"
	PhaseSynthesize Phase = "synthesize"
	PhaseValidate   Phase = "validate"
)

// Phases lists the pipeline phases in execution order.
var Phases = []Phase{PhaseDiscover, PhaseAnalyze, PhaseSynthesize, PhaseValidate}

// ArtifactName returns the file name of the phase's handoff document.
func (p Phase) ArtifactName() string {
	switch p {
	case PhaseDiscover:
		return "discovery.json"
	case PhaseAnalyze:
		return "analysis.json"
	case PhaseSynthesize:
		return "synthesis.json"
	case PhaseValidate:
		return "validation.json"
	default:
		return string(p) + ".json"
	}
}

// PhaseResult is implemented by every phase's typed output.
type PhaseResult interface {
	PhaseName() Phase
	Score() ConfidenceScore
	ConflictRecords() []ConflictRecord
}

// FieldSet is the reconciliation outcome shared by the data-collecting phases.
type FieldSet struct {
	Fields     map[string]ResolvedField `json:"fields" validate:"dive"`
	Unresolved []UnresolvedField        `json:"unresolved,omitempty" validate:"dive"`
	Conflicts  []ConflictRecord         `json:"conflicts,omitempty" validate:"dive"`
	Attempts   int                      `json:"attempts" validate:"gte=1"`
}

// Field returns the resolved field by name.
func (fs FieldSet) Field(name string) (ResolvedField, bool) {
	f, ok := fs.Fields[name]
	return f, ok
}

// Names returns the resolved field names in sorted order.
func (fs FieldSet) Names() []string {
	names := make([]string, 0, len(fs.Fields))
	for n := range fs.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DiscoveryResult is the output of the Discover phase.
type DiscoveryResult struct {
	FieldSet
	Confidence ConfidenceScore `json:"confidence"`
}

func (r *DiscoveryResult) PhaseName() Phase                  { return PhaseDiscover }
func (r *DiscoveryResult) Score() ConfidenceScore            { return r.Confidence }
func (r *DiscoveryResult) ConflictRecords() []ConflictRecord { return r.Conflicts }

// DerivedMetric is a value computed from other resolved fields.
type DerivedMetric struct {
	Name      string   `json:"name" validate:"required"`
	Operation string   `json:"operation" validate:"required,oneof=ratio difference pct_change"`
	Inputs    []string `json:"inputs" validate:"len=2"`
}

// AnalysisResult is the output of the Analyze phase. Derived metrics appear
// in Fields with Derived set.
type AnalysisResult struct {
	FieldSet
	Derived    []DerivedMetric `json:"derived,omitempty" validate:"dive"`
	Confidence ConfidenceScore `json:"confidence"`
}

func (r *AnalysisResult) PhaseName() Phase                  { return PhaseAnalyze }
func (r *AnalysisResult) Score() ConfidenceScore            { return r.Confidence }
func (r *AnalysisResult) ConflictRecords() []ConflictRecord { return r.Conflicts }

// Fact is one entry on the synthesized fact sheet.
type Fact struct {
	FieldName  string   `json:"field_name" validate:"required"`
	Value      float64  `json:"value"`
	Unit       string   `json:"unit,omitempty"`
	Source     string   `json:"source" validate:"required"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
	Origin     Phase    `json:"origin" validate:"required"`
	Importance float64  `json:"importance"`
	Caveats    []string `json:"caveats,omitempty"`
}

// SynthesisResult is the output of the Synthesize phase.
type SynthesisResult struct {
	FieldSet
	Facts      []Fact          `json:"facts" validate:"dive"`
	Caveats    []string        `json:"caveats,omitempty"`
	Confidence ConfidenceScore `json:"confidence"`
}

func (r *SynthesisResult) PhaseName() Phase                  { return PhaseSynthesize }
func (r *SynthesisResult) Score() ConfidenceScore            { return r.Confidence }
func (r *SynthesisResult) ConflictRecords() []ConflictRecord { return r.Conflicts }

// CheckResult is the outcome of one validation check.
type CheckResult struct {
	Name     string  `json:"name" validate:"required"`
	Kind     string  `json:"kind" validate:"required"`
	Passed   bool    `json:"passed"`
	Blocking bool    `json:"blocking"`
	Weight   float64 `json:"weight" validate:"gt=0"`
	Detail   string  `json:"detail,omitempty"`
}

// ValidationReport is the output of the Validate phase.
type ValidationReport struct {
	Checks     []CheckResult   `json:"checks" validate:"dive"`
	Passed     int             `json:"passed"`
	Failed     int             `json:"failed"`
	Confidence ConfidenceScore `json:"confidence"`
}

func (r *ValidationReport) PhaseName() Phase                  { return PhaseValidate }
func (r *ValidationReport) Score() ConfidenceScore            { return r.Confidence }
func (r *ValidationReport) ConflictRecords() []ConflictRecord { return nil }

package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// phaseFields pairs a data-collecting phase with its reconciliation outcome.
type phaseFields struct {
	phase model.Phase
	set   model.FieldSet
}

// priorFieldSets returns the field sets of the data-collecting phases that
// have run, in phase order.
func priorFieldSets(pc model.PhaseContext) []phaseFields {
	var out []phaseFields
	if r := pc.Discovery(); r != nil {
		out = append(out, phaseFields{model.PhaseDiscover, r.FieldSet})
	}
	if r := pc.Analysis(); r != nil {
		out = append(out, phaseFields{model.PhaseAnalyze, r.FieldSet})
	}
	if r := pc.Synthesis(); r != nil {
		out = append(out, phaseFields{model.PhaseSynthesize, r.FieldSet})
	}
	return out
}

// sheet is the merged view of every resolved field. A field resolved in
// several phases keeps its latest resolution.
type sheet struct {
	fields map[string]model.ResolvedField
	origin map[string]model.Phase
}

func buildSheet(sets []phaseFields) sheet {
	s := sheet{fields: map[string]model.ResolvedField{}, origin: map[string]model.Phase{}}
	for _, ps := range sets {
		for name, f := range ps.set.Fields {
			s.fields[name] = f
			s.origin[name] = ps.phase
		}
	}
	return s
}

// sheetSpecs dedupes declared specs by name, keeping the latest phase's.
func sheetSpecs(specs []model.FieldSpec) []model.FieldSpec {
	idx := map[string]int{}
	var out []model.FieldSpec
	for _, s := range specs {
		if i, ok := idx[s.Name]; ok {
			out[i] = s
			continue
		}
		idx[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}

// Facts lists the sheet's fields with per-fact caveats, most important
// first. grace is the staleness beyond which a fact is flagged.
func (s sheet) Facts(specs []model.FieldSpec, grace time.Duration) []model.Fact {
	importance := map[string]float64{}
	for _, sp := range specs {
		importance[sp.Name] = sp.Weight()
	}

	facts := make([]model.Fact, 0, len(s.fields))
	for name, f := range s.fields {
		imp, ok := importance[name]
		if !ok {
			imp = 1
		}
		facts = append(facts, model.Fact{
			FieldName:  name,
			Value:      f.Value.Value,
			Unit:       f.Value.Unit,
			Source:     f.Value.SourceID,
			Confidence: f.Confidence.Value,
			Origin:     s.origin[name],
			Importance: imp,
			Caveats:    factCaveats(f, grace),
		})
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Importance != facts[j].Importance {
			return facts[i].Importance > facts[j].Importance
		}
		return facts[i].FieldName < facts[j].FieldName
	})
	return facts
}

func factCaveats(f model.ResolvedField, grace time.Duration) []string {
	var out []string
	if f.Derived {
		out = append(out, "derived from other fields; confidence limited by its weakest input")
	} else if f.Sources == 1 {
		out = append(out, "single source; not corroborated")
	}
	if f.Conflicted {
		out = append(out, "sources disagreed; highest-authority value kept")
	}
	if age := f.Value.Staleness(); age > grace {
		out = append(out, fmt.Sprintf("stale: observed %.1f days before as-of date", age.Hours()/24))
	}
	return out
}

// sheetCaveats summarizes what the sheet is missing or why it is weaker.
func sheetCaveats(sets []phaseFields, decisions []model.QualityGateDecision) []string {
	var out []string
	for _, ps := range sets {
		for _, u := range ps.set.Unresolved {
			out = append(out, fmt.Sprintf("%s unresolved in %s: %s", u.FieldName, ps.phase, describeFailures(u.Failures)))
		}
	}
	for _, d := range decisions {
		if d.Decision == model.DecisionDegrade {
			out = append(out, fmt.Sprintf("%s degraded: %s", d.PhaseName, strings.Join(d.Notes, "; ")))
		}
	}
	return out
}

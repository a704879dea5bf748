// Package reconcile detects disagreement between sources for one field and
// resolves it with a static authority table.
package reconcile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrAmbiguousAuthority matches every *AmbiguousAuthorityError.
var ErrAmbiguousAuthority = eris.New("ambiguous authority")

// AmbiguousAuthorityError reports two sources with the same authority level
// where one must outrank the other.
type AmbiguousAuthorityError struct {
	Category string
	Field    string
	Level    float64
	Sources  []string
}

func (e *AmbiguousAuthorityError) Error() string {
	where := "category " + e.Category
	if e.Field != "" {
		where = fmt.Sprintf("field %s (%s)", e.Field, where)
	}
	return fmt.Sprintf("ambiguous authority: %s: sources %s share level %.2f",
		where, strings.Join(e.Sources, ", "), e.Level)
}

func (e *AmbiguousAuthorityError) Is(target error) bool {
	return target == ErrAmbiguousAuthority
}

// SourceAuthority is one source's trust level within a category.
type SourceAuthority struct {
	Source string  `yaml:"source" json:"source" validate:"required"`
	Level  float64 `yaml:"level" json:"level" validate:"gte=0,lte=1"`
}

// AuthorityTable maps field categories to the sources allowed to answer
// them, and field names (or patterns like "price.*") to categories.
type AuthorityTable struct {
	Categories map[string][]SourceAuthority `yaml:"categories" json:"categories"`
	Fields     map[string]string            `yaml:"fields" json:"fields,omitempty"`
}

// Validate checks the table at setup time. Identical levels inside one
// category return an *AmbiguousAuthorityError.
func (t AuthorityTable) Validate() error {
	if len(t.Categories) == 0 {
		return eris.New("reconcile: authority table has no categories")
	}
	for _, cat := range sortedKeys(t.Categories) {
		entries := t.Categories[cat]
		if len(entries) == 0 {
			return eris.Errorf("reconcile: category %q lists no sources", cat)
		}
		seen := make(map[string]bool, len(entries))
		byLevel := make(map[float64][]string, len(entries))
		for _, e := range entries {
			if e.Source == "" {
				return eris.Errorf("reconcile: category %q has an entry without a source", cat)
			}
			if e.Level < 0 || e.Level > 1 {
				return eris.Errorf("reconcile: category %q source %q level %.3f outside [0,1]", cat, e.Source, e.Level)
			}
			if seen[e.Source] {
				return eris.Errorf("reconcile: category %q lists source %q twice", cat, e.Source)
			}
			seen[e.Source] = true
			byLevel[e.Level] = append(byLevel[e.Level], e.Source)
		}
		for _, level := range sortedLevels(byLevel) {
			if srcs := byLevel[level]; len(srcs) > 1 {
				sort.Strings(srcs)
				return &AmbiguousAuthorityError{Category: cat, Level: level, Sources: srcs}
			}
		}
	}
	for pattern, cat := range t.Fields {
		if _, ok := t.Categories[cat]; !ok {
			return eris.Errorf("reconcile: field %q maps to unknown category %q", pattern, cat)
		}
	}
	return nil
}

// Sources returns the category's sources ordered by authority, highest first.
func (t AuthorityTable) Sources(category string) []SourceAuthority {
	entries := append([]SourceAuthority(nil), t.Categories[category]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[i].Level > entries[j].Level
		}
		return entries[i].Source < entries[j].Source
	})
	return entries
}

// SourceNames returns the category's source ids in authority order.
func (t AuthorityTable) SourceNames(category string) []string {
	entries := t.Sources(category)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Source
	}
	return names
}

// Level returns the authority of source within category.
func (t AuthorityTable) Level(category, source string) (float64, bool) {
	for _, e := range t.Categories[category] {
		if e.Source == source {
			return e.Level, true
		}
	}
	return 0, false
}

// CategoryOf resolves a field's category from the Fields map. Exact names
// win over patterns; among patterns the longest wins.
func (t AuthorityTable) CategoryOf(field string) (string, bool) {
	if cat, ok := t.Fields[field]; ok {
		return cat, true
	}
	best, bestLen := "", -1
	for _, pattern := range sortedKeys(t.Fields) {
		if MatchesPattern(field, pattern) && len(pattern) > bestLen {
			best, bestLen = t.Fields[pattern], len(pattern)
		}
	}
	return best, bestLen >= 0
}

// MatchesPattern reports whether field matches pattern. A trailing "*" is a
// prefix match; other patterns use filepath.Match syntax.
func MatchesPattern(field, pattern string) bool {
	if field == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(field, pattern[:len(pattern)-1]) {
		return true
	}
	matched, err := filepath.Match(pattern, field)
	return err == nil && matched
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedLevels(m map[float64][]string) []float64 {
	levels := make([]float64, 0, len(m))
	for l := range m {
		levels = append(levels, l)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
	return levels
}

// Package language holds the immutable language-definition table and the
// signal extractor that turns a path (plus its first line and any override)
// into an ordered candidate set.
package language

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/stackvity/stack-linguist/pkg/linguist/pattern"
	"github.com/stackvity/stack-linguist/pkg/util"
)

// Category is the Linguist language type.
type Category string

const (
	Data        Category = "data"
	Markup      Category = "markup"
	Programming Category = "programming"
	Prose       Category = "prose"
)

// Categories lists every category in report order.
var Categories = []Category{Data, Markup, Programming, Prose}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case Data, Markup, Programming, Prose:
		return true
	}
	return false
}

// ErrInvalidTable is wrapped by NewTable for duplicate or empty language names.
var ErrInvalidTable = errors.New("invalid language table")

// Definition describes one language.
type Definition struct {
	Name         string   `yaml:"-" json:"name"`
	Category     Category `yaml:"type" json:"type"`
	Group        string   `yaml:"group,omitempty" json:"group,omitempty"`
	Color        string   `yaml:"color,omitempty" json:"color,omitempty"`
	Aliases      []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Filenames    []string `yaml:"filenames,omitempty" json:"filenames,omitempty"`
	Extensions   []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Interpreters []string `yaml:"interpreters,omitempty" json:"interpreters,omitempty"`
}

// AliasResolver resolves an alias that is not declared in the table itself.
type AliasResolver func(alias string) (name string, ok bool)

// Table is the ordered, read-only set of language definitions for one run.
type Table struct {
	defs        []Definition
	byName      map[string]int
	byLowerName map[string]int
	aliases     map[string]string
	fallback    AliasResolver
	byFilename  map[string][]int
	byExtension map[string][]int
	shebang     []pattern.Matcher // indexed like defs; nil when a language has no interpreters
}

// NewTable indexes defs in the order given. Table order decides shebang ties,
// so callers must pass a stable order. A group naming itself or a missing
// language is dropped, keeping the grouping a two-level forest.
func NewTable(defs []Definition, fallback AliasResolver) (*Table, error) {
	t := &Table{
		defs:        make([]Definition, len(defs)),
		byName:      make(map[string]int, len(defs)),
		byLowerName: make(map[string]int, len(defs)),
		aliases:     make(map[string]string),
		fallback:    fallback,
		byFilename:  make(map[string][]int),
		byExtension: make(map[string][]int),
		shebang:     make([]pattern.Matcher, len(defs)),
	}
	copy(t.defs, defs)
	for i, def := range t.defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: language #%d has no name", ErrInvalidTable, i)
		}
		if _, dup := t.byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate language %q", ErrInvalidTable, def.Name)
		}
		t.byName[def.Name] = i
		if _, seen := t.byLowerName[strings.ToLower(def.Name)]; !seen {
			t.byLowerName[strings.ToLower(def.Name)] = i
		}
	}
	for i := range t.defs {
		def := &t.defs[i]
		if def.Group != "" {
			parent, ok := t.byName[def.Group]
			if !ok || def.Group == def.Name || defs[parent].Group != "" {
				def.Group = ""
			}
		}
		for _, alias := range def.Aliases {
			key := strings.ToLower(alias)
			if _, taken := t.aliases[key]; !taken {
				t.aliases[key] = def.Name
			}
		}
		for _, name := range def.Filenames {
			key := strings.ToLower(name)
			t.byFilename[key] = appendIndex(t.byFilename[key], i)
		}
		for _, ext := range def.Extensions {
			key := strings.ToLower(ext)
			t.byExtension[key] = appendIndex(t.byExtension[key], i)
		}
		if len(def.Interpreters) > 0 {
			quoted := make([]string, len(def.Interpreters))
			for j, interp := range def.Interpreters {
				quoted[j] = regexp2.Escape(interp)
			}
			m, err := pattern.Compile(def.Name+" interpreters", `\b(?:`+strings.Join(quoted, "|")+`)\b`, pattern.Regex)
			if err == nil {
				t.shebang[i] = m
			}
		}
	}
	return t, nil
}

func appendIndex(list []int, i int) []int {
	if n := len(list); n > 0 && list[n-1] == i {
		return list
	}
	return append(list, i)
}

// Len returns the number of languages.
func (t *Table) Len() int { return len(t.defs) }

// Names lists language names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.defs))
	for i, def := range t.defs {
		names[i] = def.Name
	}
	return names
}

// Get returns the definition for an exact language name.
func (t *Table) Get(name string) (Definition, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Definition{}, false
	}
	return t.defs[i], true
}

// Has reports whether name is a language of this table.
func (t *Table) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Parent returns the group of name, or "" when it has none.
func (t *Table) Parent(name string) string {
	def, ok := t.Get(name)
	if !ok {
		return ""
	}
	return def.Group
}

// Label returns the name a language is reported under: itself when child
// languages are requested, otherwise its group parent if it has one.
func (t *Table) Label(name string, childLanguages bool) string {
	if childLanguages {
		return name
	}
	if parent := t.Parent(name); parent != "" {
		return parent
	}
	return name
}

// Resolve maps a canonical name, a differently-cased name or an alias to the
// canonical language name.
func (t *Table) Resolve(nameOrAlias string) (string, bool) {
	if t.Has(nameOrAlias) {
		return nameOrAlias, true
	}
	key := strings.ToLower(nameOrAlias)
	if i, ok := t.byLowerName[key]; ok {
		return t.defs[i].Name, true
	}
	if name, ok := t.aliases[key]; ok {
		return name, true
	}
	if t.fallback != nil {
		if name, ok := t.fallback(nameOrAlias); ok && t.Has(name) {
			return name, true
		}
	}
	return "", false
}

// Without returns a copy of the table minus the named languages (case-insensitive).
// Groups pointing at a removed language are cleared.
func (t *Table) Without(names []string) (*Table, error) {
	if len(names) == 0 {
		return t, nil
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[strings.ToLower(n)] = struct{}{}
	}
	kept := make([]Definition, 0, len(t.defs))
	for _, def := range t.defs {
		if _, skip := drop[strings.ToLower(def.Name)]; skip {
			continue
		}
		kept = append(kept, def)
	}
	return NewTable(kept, t.fallback)
}

// MatchFilename returns languages listing the basename of p, in table order.
func (t *Table) MatchFilename(p string) []string {
	return t.namesAt(t.byFilename[strings.ToLower(util.Basename(p))])
}

// MatchExtension returns every language with an extension that is a
// case-insensitive suffix of p, in table order.
func (t *Table) MatchExtension(p string) []string {
	base := strings.ToLower(util.Basename(p))
	var hits []int
	for i := 0; i < len(base); i++ {
		if base[i] != '.' {
			continue
		}
		hits = append(hits, t.byExtension[base[i:]]...)
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Ints(hits)
	return t.namesAt(hits)
}

// MatchInterpreter returns the first language, in table order, whose
// interpreter appears as a whole word in line.
func (t *Table) MatchInterpreter(line string) (string, bool) {
	for i, m := range t.shebang {
		if m != nil && m.Match(line) {
			return t.defs[i].Name, true
		}
	}
	return "", false
}

func (t *Table) namesAt(indices []int) []string {
	if len(indices) == 0 {
		return nil
	}
	out := make([]string, 0, len(indices))
	last := -1
	for _, i := range indices {
		if i == last {
			continue
		}
		last = i
		out = append(out, t.defs[i].Name)
	}
	return out
}

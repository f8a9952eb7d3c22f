package heuristics

import (
	"slices"
	"strings"

	"github.com/stackvity/stack-linguist/pkg/linguist/language"
	"github.com/stackvity/stack-linguist/pkg/util"
)

// Disambiguator applies a Ruleset to ambiguous candidate sets.
type Disambiguator struct {
	rules          *Ruleset
	table          *language.Table
	childLanguages bool
}

// NewDisambiguator binds rules to the language table of a run.
func NewDisambiguator(rules *Ruleset, table *language.Table, childLanguages bool) *Disambiguator {
	return &Disambiguator{rules: rules, table: table, childLanguages: childLanguages}
}

// Applies reports whether any rule group covers the extension of path.
func (d *Disambiguator) Applies(path string) bool {
	ext := strings.ToLower(util.Extname(path))
	if ext == "" {
		return false
	}
	for _, g := range d.rules.Groups() {
		if slices.Contains(g.Extensions, ext) {
			return true
		}
	}
	return false
}

// Disambiguate walks the rule groups covering the extension of path and
// returns the language of the first rule whose language (or its parent) is a
// candidate and whose patterns match content. ok is false when no rule
// matched and the set stays ambiguous.
func (d *Disambiguator) Disambiguate(path string, candidates *language.CandidateSet, content string) (lang string, ok bool) {
	ext := strings.ToLower(util.Extname(path))
	if ext == "" {
		return "", false
	}
	for _, g := range d.rules.Groups() {
		if !slices.Contains(g.Extensions, ext) {
			continue
		}
		for i := range g.Rules {
			rule := &g.Rules[i]
			if !d.table.Has(rule.Language) {
				continue
			}
			parent := d.table.Parent(rule.Language)
			if !candidates.Contains(rule.Language) && (parent == "" || !candidates.Contains(parent)) {
				continue
			}
			if rule.cond.match(content) {
				return d.table.Label(rule.Language, d.childLanguages), true
			}
		}
	}
	return "", false
}

// Package heuristics compiles Linguist-style disambiguation rules and uses
// them to narrow an ambiguous candidate set by file content.
package heuristics

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stackvity/stack-linguist/pkg/linguist/pattern"
)

// StringList decodes either a single YAML scalar or a sequence of scalars.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected string, got %s", item.Line, kindName(item.Kind))
			}
			out = append(out, item.Value)
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list, got %s", node.Line, kindName(node.Kind))
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// Clause is one condition of a rule as written in heuristics.yml.
type Clause struct {
	Pattern         StringList `yaml:"pattern,omitempty"`
	NamedPattern    string     `yaml:"named_pattern,omitempty"`
	NegativePattern StringList `yaml:"negative_pattern,omitempty"`
	And             []Clause   `yaml:"and,omitempty"`
}

// RuleDef is a rule as written in heuristics.yml. Only the first language is used.
type RuleDef struct {
	Language StringList `yaml:"language"`
	Clause   `yaml:",inline"`
}

// Disambiguation is one extension group of rules.
type Disambiguation struct {
	Extensions []string  `yaml:"extensions"`
	Rules      []RuleDef `yaml:"rules"`
}

// File is the parsed form of heuristics.yml.
type File struct {
	Disambiguations []Disambiguation      `yaml:"disambiguations"`
	NamedPatterns   map[string]StringList `yaml:"named_patterns"`
}

type condition struct {
	positive []pattern.Matcher
	negative []pattern.Matcher
	and      []condition
}

// match reports whether content satisfies the condition. A condition with
// no patterns at all matches unconditionally.
func (c *condition) match(content string) bool {
	if len(c.positive) > 0 {
		hit := false
		for _, m := range c.positive {
			if m.Match(content) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, m := range c.negative {
		if m.Match(content) {
			return false
		}
	}
	for i := range c.and {
		if !c.and[i].match(content) {
			return false
		}
	}
	return true
}

// Rule is a compiled rule.
type Rule struct {
	Language string
	cond     condition
}

// Group is a compiled extension group.
type Group struct {
	Extensions []string
	Rules      []Rule
}

// Ruleset is the compiled, read-only heuristic table for one run.
type Ruleset struct {
	groups []Group
}

// Groups returns the compiled groups in declaration order.
func (r *Ruleset) Groups() []Group {
	if r == nil {
		return nil
	}
	return r.groups
}

// Compile builds a Ruleset from f. A rule that references an unknown named
// pattern or holds a malformed regex is dropped; the problems are returned
// alongside the usable ruleset. cache may be nil.
func Compile(f File, cache *pattern.Cache) (*Ruleset, []error) {
	c := compiler{named: f.NamedPatterns, cache: cache}
	rs := &Ruleset{groups: make([]Group, 0, len(f.Disambiguations))}
	for gi, d := range f.Disambiguations {
		g := Group{Extensions: make([]string, len(d.Extensions))}
		for i, ext := range d.Extensions {
			g.Extensions[i] = strings.ToLower(ext)
		}
		for ri, def := range d.Rules {
			if len(def.Language) == 0 {
				c.errs = append(c.errs, fmt.Errorf("heuristics.yml: disambiguation %d rule %d has no language", gi, ri))
				continue
			}
			source := fmt.Sprintf("heuristics.yml (%s)", def.Language[0])
			cond, ok := c.clause(source, def.Clause)
			if !ok {
				continue
			}
			g.Rules = append(g.Rules, Rule{Language: def.Language[0], cond: cond})
		}
		rs.groups = append(rs.groups, g)
	}
	return rs, c.errs
}

type compiler struct {
	named map[string]StringList
	cache *pattern.Cache
	errs  []error
}

func (c *compiler) clause(source string, cl Clause) (condition, bool) {
	var cond condition
	ok := true
	positives := append([]string(nil), cl.Pattern...)
	if cl.NamedPattern != "" {
		named, found := c.named[cl.NamedPattern]
		if !found {
			c.errs = append(c.errs, fmt.Errorf("%s: unknown named pattern %q", source, cl.NamedPattern))
			return cond, false
		}
		positives = append(positives, named...)
	}
	for _, p := range positives {
		m, err := c.compile(source, p)
		if err != nil {
			ok = false
			continue
		}
		cond.positive = append(cond.positive, m)
	}
	for _, p := range cl.NegativePattern {
		m, err := c.compile(source, p)
		if err != nil {
			ok = false
			continue
		}
		cond.negative = append(cond.negative, m)
	}
	for _, sub := range cl.And {
		sc, subOK := c.clause(source, sub)
		if !subOK {
			ok = false
			continue
		}
		cond.and = append(cond.and, sc)
	}
	return cond, ok
}

func (c *compiler) compile(source, text string) (pattern.Matcher, error) {
	var (
		m   pattern.Matcher
		err error
	)
	if c.cache != nil {
		m, err = c.cache.Compile(source, text, pattern.Regex)
	} else {
		m, err = pattern.Compile(source, text, pattern.Regex)
	}
	if err != nil {
		c.errs = append(c.errs, err)
	}
	return m, err
}

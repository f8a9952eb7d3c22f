package language

import "strings"

// Stage names the signal that produced a candidate set or final label.
type Stage string

const (
	StageShebang    Stage = "shebang"
	StageOverride   Stage = "override"
	StageFilename   Stage = "filename"
	StageExtension  Stage = "extension"
	StageHeuristics Stage = "heuristics"
	StageClassifier Stage = "classifier"
	StageFallback   Stage = "fallback"
	StageNone       Stage = "none"
)

// CandidateSet is an insertion-ordered set of language names.
type CandidateSet struct {
	names []string
}

// Add appends name unless it is already present.
func (c *CandidateSet) Add(name string) {
	for _, n := range c.names {
		if n == name {
			return
		}
	}
	c.names = append(c.names, name)
}

// Contains reports whether name is in the set.
func (c *CandidateSet) Contains(name string) bool {
	for _, n := range c.names {
		if n == name {
			return true
		}
	}
	return false
}

// Len returns the number of candidates.
func (c *CandidateSet) Len() int { return len(c.names) }

// Names returns a copy of the candidates in insertion order.
func (c *CandidateSet) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// First returns the earliest candidate.
func (c *CandidateSet) First() (string, bool) {
	if len(c.names) == 0 {
		return "", false
	}
	return c.names[0], true
}

// Extraction is the outcome of the signal extractor for one file.
type Extraction struct {
	Candidates CandidateSet
	Stage      Stage
}

// Terminal reports whether the extraction is final: shebang and override
// matches are never disambiguated further.
func (e Extraction) Terminal() bool {
	return e.Stage == StageShebang || e.Stage == StageOverride
}

// Extractor applies shebang, override, filename and extension signals in that order.
type Extractor struct {
	table          *Table
	childLanguages bool
	checkShebang   bool
}

// NewExtractor creates an Extractor over table.
func NewExtractor(table *Table, childLanguages, checkShebang bool) *Extractor {
	return &Extractor{table: table, childLanguages: childLanguages, checkShebang: checkShebang}
}

// Extract builds the candidate set for path. firstLine is the first line of
// the file (may be empty) and override is the language forced by attributes
// ("" when none applies).
func (x *Extractor) Extract(path, firstLine, override string) Extraction {
	var ex Extraction
	if x.checkShebang && strings.HasPrefix(firstLine, "#!") {
		if lang, ok := x.table.MatchInterpreter(firstLine); ok {
			ex.Candidates.Add(x.table.Label(lang, x.childLanguages))
			ex.Stage = StageShebang
			return ex
		}
	}
	if override != "" && x.table.Has(override) {
		ex.Candidates.Add(x.table.Label(override, x.childLanguages))
		ex.Stage = StageOverride
		return ex
	}
	if langs := x.table.MatchFilename(path); len(langs) > 0 {
		for _, lang := range langs {
			ex.Candidates.Add(x.table.Label(lang, x.childLanguages))
		}
		ex.Stage = StageFilename
		return ex
	}
	if langs := x.table.MatchExtension(path); len(langs) > 0 {
		for _, lang := range langs {
			ex.Candidates.Add(x.table.Label(lang, x.childLanguages))
		}
		ex.Stage = StageExtension
		return ex
	}
	ex.Stage = StageNone
	return ex
}

package linguist

import (
	"slices"

	"github.com/stackvity/stack-linguist/pkg/linguist/language"
	"github.com/stackvity/stack-linguist/pkg/linguist/metrics"
	"github.com/stackvity/stack-linguist/pkg/util"
)

// outcome is what a worker reports for one dispatched file.
type outcome struct {
	path     string
	language string // "" when unresolved
	stage    language.Stage
	size     int64
	binary   bool
	cached   bool
	err      error
}

// aggregator folds outcomes into Results. It is owned by a single goroutine
// and needs no locking.
type aggregator struct {
	table          *language.Table
	childLanguages bool
	hidden         map[language.Category]bool
	metrics        *metrics.Collector

	results *Results
	binary  int
	dropped int
}

func newAggregator(table *language.Table, childLanguages bool, categories []string, m *metrics.Collector) *aggregator {
	a := &aggregator{
		table:          table,
		childLanguages: childLanguages,
		metrics:        m,
		results:        NewResults(),
	}
	if len(categories) > 0 {
		a.hidden = make(map[language.Category]bool)
		for _, c := range language.Categories {
			if !slices.Contains(categories, string(c)) {
				a.hidden[c] = true
			}
		}
	}
	return a
}

func (a *aggregator) add(o outcome) {
	if o.binary {
		a.binary++
		return
	}
	r := a.results
	if o.language == "" {
		r.Files.Results[o.path] = nil
		r.Files.Bytes += o.size
		if ext := util.Extname(o.path); ext != "" {
			r.Unknown.Extensions[ext] += o.size
		} else {
			r.Unknown.Filenames[util.Basename(o.path)] += o.size
		}
		r.Unknown.Bytes += o.size
		a.metrics.BytesCounted("unknown", o.size)
		return
	}

	def, ok := a.table.Get(o.language)
	if !ok {
		a.dropped++
		return
	}
	if a.hidden[def.Category] {
		a.dropped++
		return
	}
	lang := o.language
	r.Files.Results[o.path] = &lang
	r.Files.Bytes += o.size

	entry, seen := r.Languages.Results[lang]
	if !seen {
		entry = LanguageResult{Type: def.Category, Color: def.Color}
		if a.childLanguages {
			entry.Parent = def.Group
		}
	}
	entry.Bytes += o.size
	entry.Count++
	r.Languages.Results[lang] = entry
	r.Languages.Bytes += o.size
	a.metrics.BytesCounted(string(def.Category), o.size)
}

// finish fills in the counts and hands the results over.
func (a *aggregator) finish() *Results {
	r := a.results
	r.Files.Count = len(r.Files.Results)
	r.Languages.Count = len(r.Languages.Results)
	keys := make(map[string]struct{}, len(r.Unknown.Extensions)+len(r.Unknown.Filenames))
	for k := range r.Unknown.Extensions {
		keys[k] = struct{}{}
	}
	for k := range r.Unknown.Filenames {
		keys[k] = struct{}{}
	}
	r.Unknown.Count = len(keys)
	return r
}

package language

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-enry/go-enry/v2"
	"github.com/go-enry/go-enry/v2/data"
)

var (
	builtinOnce  sync.Once
	builtinTable *Table
	builtinErr   error
)

// Builtin returns the language table compiled into go-enry, sorted the way
// Linguist sorts languages.yml (case-insensitively by name). The table is
// built once per process and shared; it is never mutated.
func Builtin() (*Table, error) {
	builtinOnce.Do(func() {
		builtinTable, builtinErr = NewTable(builtinDefinitions(), enry.GetLanguageByAlias)
	})
	return builtinTable, builtinErr
}

func builtinDefinitions() []Definition {
	names := make([]string, 0, len(data.LanguagesType))
	for name := range data.LanguagesType {
		names = append(names, name)
	}
	SortNames(names)

	filenames := invert(data.LanguagesByFilename)
	interpreters := invert(data.LanguagesByInterpreter)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, Definition{
			Name:         name,
			Category:     categoryOf(enry.GetLanguageType(name)),
			Group:        data.LanguagesGroup[name],
			Color:        data.LanguagesColor[name],
			Extensions:   enry.GetLanguageExtensions(name),
			Filenames:    filenames[name],
			Interpreters: interpreters[name],
		})
	}
	return defs
}

// SortNames orders language names case-insensitively, breaking ties by byte order.
func SortNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
}

func categoryOf(t enry.Type) Category {
	switch t {
	case enry.Data:
		return Data
	case enry.Markup:
		return Markup
	case enry.Programming:
		return Programming
	case enry.Prose:
		return Prose
	default:
		return ""
	}
}

// invert turns key -> languages into language -> sorted keys.
func invert(m map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for key, langs := range m {
		for _, lang := range langs {
			out[lang] = append(out[lang], key)
		}
	}
	for lang := range out {
		sort.Strings(out[lang])
	}
	return out
}

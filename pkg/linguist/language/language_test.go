package language_test

import (
	"testing"

	"github.com/stackvity/stack-linguist/pkg/linguist/language"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *language.Table {
	t.Helper()
	table, err := language.NewTable([]language.Definition{
		{Name: "C", Category: language.Programming, Extensions: []string{".c", ".h"}},
		{Name: "C++", Category: language.Programming, Extensions: []string{".cpp", ".h"}, Aliases: []string{"cpp"}},
		{Name: "JavaScript", Category: language.Programming, Color: "#f1e05a", Extensions: []string{".js"}, Interpreters: []string{"node"}, Aliases: []string{"js", "node"}},
		{Name: "JSX", Category: language.Programming, Group: "JavaScript", Extensions: []string{".jsx"}},
		{Name: "Objective-C", Category: language.Programming, Extensions: []string{".m", ".h"}},
		{Name: "MATLAB", Category: language.Programming, Extensions: []string{".m"}},
		{Name: "Python", Category: language.Programming, Extensions: []string{".py"}, Interpreters: []string{"python", "python3"}},
		{Name: "Starlark", Category: language.Programming, Extensions: []string{".py"}, Filenames: []string{"BUILD"}},
		{Name: "Text", Category: language.Prose, Extensions: []string{".txt"}},
		{Name: "TOML", Category: language.Data, Extensions: []string{".toml"}, Filenames: []string{"Pipfile"}},
		{Name: "Makefile", Category: language.Programming, Extensions: []string{".mk"}, Filenames: []string{"Makefile"}},
		{Name: "TypeScript", Category: language.Programming, Extensions: []string{".ts", ".d.ts"}},
	}, nil)
	require.NoError(t, err)
	return table
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := language.NewTable([]language.Definition{{Name: "Go"}, {Name: "Go"}}, nil)
	assert.ErrorIs(t, err, language.ErrInvalidTable)

	_, err = language.NewTable([]language.Definition{{Name: ""}}, nil)
	assert.ErrorIs(t, err, language.ErrInvalidTable)
}

func TestNewTableKeepsGroupingFlat(t *testing.T) {
	table, err := language.NewTable([]language.Definition{
		{Name: "A"},
		{Name: "B", Group: "A"},
		{Name: "C", Group: "B"},
		{Name: "D", Group: "Missing"},
		{Name: "E", Group: "E"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", table.Parent("B"))
	assert.Equal(t, "", table.Parent("C"), "grandchild links are dropped")
	assert.Equal(t, "", table.Parent("D"))
	assert.Equal(t, "", table.Parent("E"))
}

func TestTableResolve(t *testing.T) {
	table := testTable(t)
	testCases := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{name: "Canonical", input: "JavaScript", expected: "JavaScript", ok: true},
		{name: "Different case", input: "javascript", expected: "JavaScript", ok: true},
		{name: "Alias", input: "JS", expected: "JavaScript", ok: true},
		{name: "Alias with symbols", input: "cpp", expected: "C++", ok: true},
		{name: "Unknown", input: "Klingon", expected: "", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, ok := table.Resolve(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, name)
		})
	}
}

func TestTableResolveFallback(t *testing.T) {
	table, err := language.NewTable([]language.Definition{{Name: "Go"}}, func(alias string) (string, bool) {
		if alias == "golang" {
			return "Go", true
		}
		return "", false
	})
	require.NoError(t, err)
	name, ok := table.Resolve("golang")
	assert.True(t, ok)
	assert.Equal(t, "Go", name)
}

func TestTableWithout(t *testing.T) {
	table := testTable(t)
	smaller, err := table.Without([]string{"javascript", "text"})
	require.NoError(t, err)
	assert.False(t, smaller.Has("JavaScript"))
	assert.False(t, smaller.Has("Text"))
	assert.True(t, smaller.Has("JSX"))
	assert.Equal(t, "", smaller.Parent("JSX"), "group to a removed language is cleared")
	assert.Equal(t, table.Len()-2, smaller.Len())
	assert.True(t, table.Has("JavaScript"), "original table is untouched")
}

func TestTableMatchers(t *testing.T) {
	table := testTable(t)
	assert.Equal(t, []string{"C", "C++", "Objective-C"}, table.MatchExtension("include/x.H"))
	assert.Equal(t, []string{"TypeScript"}, table.MatchExtension("types/index.d.ts"))
	assert.Nil(t, table.MatchExtension("README"))
	assert.Equal(t, []string{"TOML"}, table.MatchFilename("sub/pipfile"))

	lang, ok := table.MatchInterpreter("#!/usr/bin/env python3")
	assert.True(t, ok)
	assert.Equal(t, "Python", lang)
	_, ok = table.MatchInterpreter("#!/bin/nodejs-wrapper")
	assert.False(t, ok, "interpreters match whole words only")
}

func TestExtractorOrdering(t *testing.T) {
	table := testTable(t)
	testCases := []struct {
		name       string
		child      bool
		shebang    bool
		path       string
		firstLine  string
		override   string
		candidates []string
		stage      language.Stage
	}{
		{name: "Shebang beats extension", shebang: true, path: "b.py", firstLine: "#!/usr/bin/env node", candidates: []string{"JavaScript"}, stage: language.StageShebang},
		{name: "Shebang disabled", shebang: false, path: "b.py", firstLine: "#!/usr/bin/env node", candidates: []string{"Python", "Starlark"}, stage: language.StageExtension},
		{name: "Unknown interpreter falls through", shebang: true, path: "b.py", firstLine: "#!/bin/zsh", candidates: []string{"Python", "Starlark"}, stage: language.StageExtension},
		{name: "Override is terminal", shebang: true, path: "file.txt", override: "JavaScript", candidates: []string{"JavaScript"}, stage: language.StageOverride},
		{name: "Shebang beats override", shebang: true, path: "file.txt", firstLine: "#!/usr/bin/python", override: "JavaScript", candidates: []string{"Python"}, stage: language.StageShebang},
		{name: "Override to unknown language ignored", shebang: true, path: "file.txt", override: "Klingon", candidates: []string{"Text"}, stage: language.StageExtension},
		{name: "Filename skips extensions", shebang: true, path: "src/BUILD", candidates: []string{"Starlark"}, stage: language.StageFilename},
		{name: "Filename is case-insensitive", shebang: true, path: "makefile", candidates: []string{"Makefile"}, stage: language.StageFilename},
		{name: "Extension ambiguity keeps table order", shebang: true, path: "x.m", candidates: []string{"Objective-C", "MATLAB"}, stage: language.StageExtension},
		{name: "Parent substitution", shebang: true, path: "App.jsx", candidates: []string{"JavaScript"}, stage: language.StageExtension},
		{name: "Child languages kept", child: true, shebang: true, path: "App.jsx", candidates: []string{"JSX"}, stage: language.StageExtension},
		{name: "No match", shebang: true, path: "unknown", candidates: []string{}, stage: language.StageNone},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x := language.NewExtractor(table, tc.child, tc.shebang)
			ex := x.Extract(tc.path, tc.firstLine, tc.override)
			assert.Equal(t, tc.candidates, ex.Candidates.Names())
			assert.Equal(t, tc.stage, ex.Stage)
		})
	}
}

func TestExtractionTerminal(t *testing.T) {
	assert.True(t, language.Extraction{Stage: language.StageShebang}.Terminal())
	assert.True(t, language.Extraction{Stage: language.StageOverride}.Terminal())
	assert.False(t, language.Extraction{Stage: language.StageExtension}.Terminal())
}

func TestCandidateSetDeduplicates(t *testing.T) {
	var set language.CandidateSet
	set.Add("JavaScript")
	set.Add("TypeScript")
	set.Add("JavaScript")
	assert.Equal(t, []string{"JavaScript", "TypeScript"}, set.Names())
	first, ok := set.First()
	assert.True(t, ok)
	assert.Equal(t, "JavaScript", first)
	assert.True(t, set.Contains("TypeScript"))
}

func TestBuiltinTable(t *testing.T) {
	table, err := language.Builtin()
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 300)

	def, ok := table.Get("Go")
	require.True(t, ok)
	assert.Equal(t, language.Programming, def.Category)
	assert.Contains(t, def.Extensions, ".go")

	assert.Equal(t, []string{"TOML"}, table.MatchFilename("Pipfile"))
	lang, ok := table.MatchInterpreter("#!/usr/bin/env python")
	assert.True(t, ok)
	assert.Equal(t, "Python", lang)

	name, ok := table.Resolve("golang")
	assert.True(t, ok)
	assert.Equal(t, "Go", name)

	names := table.Names()
	sorted := append([]string(nil), names...)
	language.SortNames(sorted)
	assert.Equal(t, sorted, names, "builtin table is in case-insensitive name order")
}

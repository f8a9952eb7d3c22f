package pattern_test

import (
	"errors"
	"testing"

	"github.com/stackvity/stack-linguist/pkg/linguist/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileGlob(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		input   string
		match   bool
	}{
		{name: "Star stays in segment", pattern: "*.js", input: "a/b.js", match: false},
		{name: "Globstar crosses segments", pattern: "**/*.js", input: "a/b/c.js", match: true},
		{name: "Globstar matches root file", pattern: "**/*.js", input: "c.js", match: true},
		{name: "Question mark", pattern: "file?.txt", input: "file1.txt", match: true},
		{name: "Alternation", pattern: "**/*.{yml,yaml}", input: "ci/x.yaml", match: true},
		{name: "No match", pattern: "docs/**", input: "src/docs/x", match: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := pattern.Compile("test", tc.pattern, pattern.Glob)
			require.NoError(t, err)
			assert.Equal(t, tc.match, m.Match(tc.input))
			assert.Equal(t, tc.pattern, m.String())
		})
	}
}

func TestCompileRegex(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		input   string
		match   bool
	}{
		{name: "Line anchors are multiline", pattern: `^@interface`, input: "// x\n@interface Foo", match: true},
		{name: "Lookbehind", pattern: `(?<=name\.match\(/).+?(?=/\))`, input: "name.match(/foo/)", match: true},
		{name: "Negative lookahead", pattern: `linguist-vendored(?!=false)`, input: "linguist-vendored=false", match: false},
		{name: "Backreference", pattern: `(["'])abc\1`, input: `x = "abc"`, match: true},
		{name: "Ruby m flag means dotall", pattern: `(?m)begin.*end`, input: "begin\nend", match: true},
		{name: "Without m flag dot stops at newline", pattern: `begin.*end`, input: "begin\nend", match: false},
		{name: "Hex shorthand", pattern: `^0x\h+$`, input: "0xBEEF", match: true},
		{name: "Hex shorthand rejects non-hex", pattern: `^0x\h+$`, input: "0xZZ", match: false},
		{name: "Absolute anchors", pattern: `\A\z`, input: "", match: true},
		{name: "Case-insensitive inline group", pattern: `(?i:function) x`, input: "FUNCTION x", match: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := pattern.Compile("test", tc.pattern, pattern.Regex)
			require.NoError(t, err)
			assert.Equal(t, tc.match, m.Match(tc.input))
		})
	}
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := pattern.Compile("vendor.yml", `(unclosed`, pattern.Regex)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pattern.ErrSyntax))

	var synErr *pattern.SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Equal(t, "vendor.yml", synErr.Source)
	assert.Equal(t, `(unclosed`, synErr.Pattern)
	assert.Contains(t, err.Error(), "vendor.yml")

	_, err = pattern.Compile(".gitignore", "[a-", pattern.Glob)
	assert.ErrorIs(t, err, pattern.ErrSyntax)
}

func TestConvertRuby(t *testing.T) {
	assert.Equal(t, `(?s)a.b`, pattern.ConvertRuby(`(?m)a.b`))
	assert.Equal(t, `(?is:x)`, pattern.ConvertRuby(`(?im:x)`))
	assert.Equal(t, `[0-9a-fA-F]+`, pattern.ConvertRuby(`\h+`))
	assert.Equal(t, `[0-9a-fA-F_]`, pattern.ConvertRuby(`[\h_]`))
	assert.Equal(t, `[^0-9a-fA-F]`, pattern.ConvertRuby(`\H`))
	assert.Equal(t, `\\h`, pattern.ConvertRuby(`\\h`), "escaped backslash is left alone")
	assert.Equal(t, `(?<name>x)`, pattern.ConvertRuby(`(?<name>x)`))
	assert.Equal(t, `[(?m)]`, pattern.ConvertRuby(`[(?m)]`), "flags inside a class are literal")
}

func TestCacheReusesCompiledPatterns(t *testing.T) {
	cache, err := pattern.NewCache(0)
	require.NoError(t, err)

	first, err := cache.Compile("a", `^foo`, pattern.Regex)
	require.NoError(t, err)
	second, err := cache.Compile("b", `^foo`, pattern.Regex)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	glob, err := cache.Compile("a", `^foo`, pattern.Glob)
	require.NoError(t, err)
	assert.NotSame(t, first, glob, "dialect is part of the key")
	assert.Equal(t, 2, cache.Len())

	_, err = cache.Compile("a", `(`, pattern.Regex)
	assert.ErrorIs(t, err, pattern.ErrSyntax)
	assert.Equal(t, 2, cache.Len(), "failures are not cached")
}

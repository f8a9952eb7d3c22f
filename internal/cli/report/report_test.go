package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/stack-linguist/internal/cli/report"
	"github.com/stackvity/stack-linguist/pkg/linguist"
	"github.com/stackvity/stack-linguist/pkg/linguist/language"
)

func strPtr(s string) *string { return &s }

func sampleResults() *linguist.Results {
	return &linguist.Results{
		Files: linguist.FileResults{
			Count: 4,
			Bytes: 4012,
			Results: map[string]*string{
				"main.go":   strPtr("Go"),
				"README.md": strPtr("Markdown"),
				"LICENSE":   nil,
				"data.xyz":  nil,
			},
		},
		Languages: linguist.LanguageResults{
			Count: 2,
			Bytes: 4000,
			Results: map[string]linguist.LanguageResult{
				"Go":       {Type: language.Programming, Bytes: 3000, Count: 1},
				"Markdown": {Type: language.Prose, Bytes: 1000, Count: 1},
			},
		},
		Unknown: linguist.UnknownResults{
			Count:      2,
			Bytes:      12,
			Extensions: map[string]int64{".xyz": 5},
			Filenames:  map[string]int64{"LICENSE": 7},
		},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, sampleResults(), "stack-linguist"))
	out := buf.String()

	assert.Contains(t, out, "Analysed 4,012 B from 4 files with stack-linguist")
	assert.Contains(t, out, "   1. Go                        75.00%      3,000 B")
	assert.Contains(t, out, "   2. Markdown                  25.00%      1,000 B")
	assert.Contains(t, out, " Total: 4,000 B")
	assert.Contains(t, out, "  'LICENSE': 7 B")
	assert.Contains(t, out, "  '.xyz': 5 B")
	assert.Contains(t, out, " Total: 12 B")
	assert.Less(t, strings.Index(out, "Go "), strings.Index(out, "Markdown "))
}

func TestWriteTextWithoutUnknowns(t *testing.T) {
	r := sampleResults()
	r.Unknown = linguist.UnknownResults{Extensions: map[string]int64{}, Filenames: map[string]int64{}}
	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, r, "stack-linguist"))
	assert.NotContains(t, buf.String(), "Unknown files")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, sampleResults()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	files := decoded["files"].(map[string]any)
	assert.EqualValues(t, 4, files["count"])
	results := files["results"].(map[string]any)
	assert.Nil(t, results["LICENSE"])
	assert.Equal(t, "Go", results["main.go"])
	assert.Contains(t, buf.String(), `"type": "programming"`)
}

func TestWriteTree(t *testing.T) {
	testCases := []struct {
		name      string
		traversal string
		expected  string
		errKey    string
	}{
		{name: "Leaf number", traversal: "languages.count", expected: "2\n"},
		{name: "Nested object", traversal: "unknown.filenames", expected: "{\n  \"LICENSE\": 7\n}\n"},
		{name: "Null leaf is found", traversal: "files.results.LICENSE", expected: "null\n"},
		{name: "Missing key", traversal: "languages.results.Rust", errKey: "Rust"},
		{name: "Traversing into a scalar", traversal: "files.count.x", errKey: "x"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := report.WriteTree(&buf, sampleResults(), tc.traversal)
			if tc.errKey != "" {
				var te *report.TraversalError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tc.errKey, te.Key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, buf.String())
		})
	}
}

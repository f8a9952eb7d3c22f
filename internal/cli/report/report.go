// Package report renders analysis results for the terminal.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stackvity/stack-linguist/pkg/linguist"
)

// TraversalError reports a --tree key missing from the output object.
type TraversalError struct {
	Key string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("TraversalError: Key '%s' cannot be found on output object.", e.Key)
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	totalStyle   = lipgloss.NewStyle().Faint(true)
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	printer      = message.NewPrinter(xlanguage.English)
)

type entry struct {
	name  string
	bytes int64
	color string
}

// WriteText prints the language breakdown sorted by bytes, followed by the
// unknown files and extensions when there are any.
func WriteText(w io.Writer, r *linguist.Results, toolName string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysed %s B from %d files with %s\n", printer.Sprintf("%d", r.Files.Bytes), r.Files.Count, toolName)
	b.WriteString("\n " + titleStyle.Render("Language analysis results:") + "\n")

	entries := make([]entry, 0, len(r.Languages.Results))
	for name, lr := range r.Languages.Results {
		entries = append(entries, entry{name: name, bytes: lr.Bytes, color: lr.Color})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].bytes != entries[j].bytes {
			return entries[i].bytes > entries[j].bytes
		}
		return entries[i].name < entries[j].name
	})
	total := r.Languages.Bytes
	denominator := float64(total)
	if denominator == 0 {
		denominator = 1
	}
	for i, e := range entries {
		name := fmt.Sprintf("%-24s", e.name)
		if e.color != "" {
			name = lipgloss.NewStyle().Foreground(lipgloss.Color(e.color)).Render(name)
		}
		fmt.Fprintf(&b, "  %2d. %s %6.2f%% %10s B\n", i+1, name, float64(e.bytes)/denominator*100, printer.Sprintf("%d", e.bytes))
	}
	b.WriteString(totalStyle.Render(fmt.Sprintf(" Total: %s B", printer.Sprintf("%d", total))) + "\n")

	if r.Unknown.Bytes > 0 {
		b.WriteString("\n " + unknownStyle.Render("Unknown files and extensions:") + "\n")
		for _, name := range sortedKeys(r.Unknown.Filenames) {
			fmt.Fprintf(&b, "  '%s': %s B\n", name, printer.Sprintf("%d", r.Unknown.Filenames[name]))
		}
		for _, ext := range sortedKeys(r.Unknown.Extensions) {
			fmt.Fprintf(&b, "  '%s': %s B\n", ext, printer.Sprintf("%d", r.Unknown.Extensions[ext]))
		}
		b.WriteString(totalStyle.Render(fmt.Sprintf(" Total: %s B", printer.Sprintf("%d", r.Unknown.Bytes))) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON prints the results as indented JSON.
func WriteJSON(w io.Writer, r *linguist.Results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTree prints the part of the JSON output selected by a dot-delimited
// traversal such as "languages.results.Go".
func WriteTree(w io.Writer, r *linguist.Results, traversal string) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var node any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&node); err != nil {
		return err
	}
	for _, key := range strings.Split(traversal, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return &TraversalError{Key: key}
		}
		if node, ok = m[key]; !ok {
			return &TraversalError{Key: key}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(node)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

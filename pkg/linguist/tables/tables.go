// Package tables loads the configuration tables a run depends on: language
// definitions, vendor and generated path patterns, and heuristic rules.
// Defaults are embedded; a Linguist data directory can replace them.
package tables

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dlclark/regexp2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/go-enry/go-enry/v2"

	"github.com/stackvity/stack-linguist/pkg/linguist/heuristics"
	"github.com/stackvity/stack-linguist/pkg/linguist/language"
)

// ErrLoad is wrapped by every loader failure. A run cannot start without its tables.
var ErrLoad = errors.New("failed to load configuration table")

// File names inside a Linguist data directory (lib/linguist).
const (
	LanguagesFile  = "languages.yml"
	VendorFile     = "vendor.yml"
	HeuristicsFile = "heuristics.yml"
	GeneratedRuby  = "generated.rb"
	GeneratedFile  = "generated.yml"
)

//go:embed data/*.yml
var embedded embed.FS

// Set is the group of tables used by one run. It is read-only once loaded.
type Set struct {
	Languages  *language.Table
	Vendor     []string
	Generated  []string
	Heuristics heuristics.File
	// Origin describes where the tables came from ("builtin" or a directory).
	Origin string
}

// Default returns the go-enry language table with the embedded vendor,
// generated and heuristics tables.
func Default() (*Set, error) {
	table, err := language.Builtin()
	if err != nil {
		return nil, fmt.Errorf("%w: builtin languages: %v", ErrLoad, err)
	}
	set := &Set{Languages: table, Origin: "builtin"}
	if set.Vendor, err = loadEmbeddedList(VendorFile); err != nil {
		return nil, err
	}
	if set.Generated, err = loadEmbeddedList(GeneratedFile); err != nil {
		return nil, err
	}
	raw, err := embedded.ReadFile("data/" + HeuristicsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, HeuristicsFile, err)
	}
	if set.Heuristics, err = LoadHeuristics(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return set, nil
}

func loadEmbeddedList(name string) ([]string, error) {
	raw, err := embedded.ReadFile("data/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	return LoadPatternList(name, bytes.NewReader(raw))
}

// LoadDir reads a Linguist data directory. languages.yml, vendor.yml and
// heuristics.yml are required; generated patterns come from generated.rb,
// else generated.yml, else none. Files are read concurrently.
func LoadDir(ctx context.Context, dir string) (*Set, error) {
	set := &Set{Origin: dir}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		f, err := openTable(dir, LanguagesFile)
		if err != nil {
			return err
		}
		defer f.Close()
		defs, err := LoadLanguages(f)
		if err != nil {
			return err
		}
		table, err := language.NewTable(defs, enry.GetLanguageByAlias)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrLoad, LanguagesFile, err)
		}
		set.Languages = table
		return nil
	})
	g.Go(func() error {
		f, err := openTable(dir, VendorFile)
		if err != nil {
			return err
		}
		defer f.Close()
		set.Vendor, err = LoadPatternList(VendorFile, f)
		return err
	})
	g.Go(func() error {
		f, err := openTable(dir, HeuristicsFile)
		if err != nil {
			return err
		}
		defer f.Close()
		set.Heuristics, err = LoadHeuristics(f)
		return err
	})
	g.Go(func() error {
		raw, err := os.ReadFile(filepath.Join(dir, GeneratedRuby))
		switch {
		case err == nil:
			set.Generated, err = ExtractGenerated(string(raw))
			return err
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("%w: %s: %v", ErrLoad, GeneratedRuby, err)
		}
		f, err := os.Open(filepath.Join(dir, GeneratedFile))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrLoad, GeneratedFile, err)
		}
		defer f.Close()
		set.Generated, err = LoadPatternList(GeneratedFile, f)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

func openTable(dir, name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	return f, nil
}

// LoadLanguages parses languages.yml, keeping the file's key order as table order.
func LoadLanguages(r io.Reader) ([]language.Definition, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, LanguagesFile, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: top level must be a mapping", ErrLoad, LanguagesFile)
	}
	root := doc.Content[0]
	defs := make([]language.Definition, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		var def language.Definition
		if err := value.Decode(&def); err != nil {
			return nil, fmt.Errorf("%w: %s: language %q: %v", ErrLoad, LanguagesFile, key.Value, err)
		}
		def.Name = key.Value
		if def.Category != "" && !def.Category.Valid() {
			return nil, fmt.Errorf("%w: %s: language %q has unknown type %q", ErrLoad, LanguagesFile, key.Value, def.Category)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadPatternList parses a YAML sequence of pattern strings (vendor.yml, generated.yml).
func LoadPatternList(name string, r io.Reader) ([]string, error) {
	var list []string
	if err := yaml.NewDecoder(r).Decode(&list); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	return list, nil
}

// LoadHeuristics parses heuristics.yml.
func LoadHeuristics(r io.Reader) (heuristics.File, error) {
	var f heuristics.File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return heuristics.File{}, fmt.Errorf("%w: %s: %v", ErrLoad, HeuristicsFile, err)
	}
	return f, nil
}

var generatedPattern = regexp2.MustCompile(`(?<=name\.match\(\/).+?(?=(?<!\\)\/\))`, regexp2.Multiline)

// ExtractGenerated pulls every name.match(/.../) regex literal out of
// Linguist's generated.rb. Literals with trailing flags are not picked up.
func ExtractGenerated(source string) ([]string, error) {
	var out []string
	m, err := generatedPattern.FindStringMatch(source)
	for err == nil && m != nil {
		out = append(out, m.String())
		m, err = generatedPattern.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, GeneratedRuby, err)
	}
	return out, nil
}

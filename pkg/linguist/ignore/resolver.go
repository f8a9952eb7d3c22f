// Package ignore decides which paths take part in a run and which carry an
// explicit language override or forced text/binary attribute. Rules come
// from the builtin vendor and generated tables, user globs, and the
// .gitignore and .gitattributes files found while walking folders top-down.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitattributes"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/stackvity/stack-linguist/pkg/linguist/language"
	"github.com/stackvity/stack-linguist/pkg/linguist/pattern"
	"github.com/stackvity/stack-linguist/pkg/util"
)

// Origin tags where an ignore rule came from.
type Origin string

const (
	OriginVCS               Origin = "vcs-metadata"
	OriginBuiltinVendor     Origin = "builtin-vendor"
	OriginBuiltinGenerated  Origin = "builtin-generated"
	OriginUserSupplied      Origin = "user-supplied"
	OriginUserGitignore     Origin = "user-gitignore"
	OriginUserGitattributes Origin = "user-gitattributes"
)

const (
	gitDir             = ".git"
	gitignoreFile      = ".gitignore"
	gitattributesFile  = ".gitattributes"
	attrText           = "text"
	attrBinary         = "binary"
	attrLanguage       = "linguist-language"
	attrVendored       = "linguist-vendored"
	attrGenerated      = "linguist-generated"
	attrDocumentation  = "linguist-documentation"
	scannerBufferLimit = 1 << 20
)

// Decision is the resolver's verdict for one path.
type Decision struct {
	Ignored     bool
	Pattern     string
	Origin      Origin
	Override    string
	ForceText   bool
	ForceBinary bool
}

// Options configures a Resolver.
type Options struct {
	Vendor       []string
	Generated    []string
	IgnoredFiles []string
	KeepVendored bool
	// CheckIgnored enables reading .gitignore files.
	CheckIgnored bool
	// CheckAttributes enables reading .gitattributes files.
	CheckAttributes bool
	// Table resolves linguist-language values to canonical names.
	Table  *language.Table
	Cache  *pattern.Cache
	Logger slog.Handler
	// OnPatternError is called for every pattern skipped because it could not
	// be compiled. It may be nil.
	OnPatternError func(err error)
}

type taggedMatcher struct {
	matcher pattern.Matcher
	text    string
	origin  Origin
}

type ignoreRule struct {
	pattern gitignore.Pattern
	text    string
}

type attrRule struct {
	pattern     gitattributes.Pattern
	text        string
	ignore      bool
	override    string
	forceText   bool
	forceBinary bool
}

// Resolver accumulates folder-scoped rules for one run.
type Resolver struct {
	root   string
	opts   Options
	logger *slog.Logger

	builtin []taggedMatcher
	user    []taggedMatcher

	mu      sync.RWMutex
	entered map[string]struct{}
	ignores []ignoreRule
	attrs   []attrRule
}

// New compiles the builtin and user-supplied patterns. Patterns that fail to
// compile are reported through OnPatternError and skipped.
func New(root string, opts Options) (*Resolver, error) {
	if opts.Logger == nil {
		opts.Logger = slog.NewTextHandler(os.Stderr, nil)
	}
	if opts.Cache == nil {
		c, err := pattern.NewCache(0)
		if err != nil {
			return nil, err
		}
		opts.Cache = c
	}
	r := &Resolver{
		root:    root,
		opts:    opts,
		logger:  slog.New(opts.Logger).With(slog.String("component", "resolver")),
		entered: make(map[string]struct{}),
	}
	if !opts.KeepVendored {
		r.builtin = append(r.builtin, r.compileAll("vendor.yml", opts.Vendor, pattern.Regex, OriginBuiltinVendor)...)
		r.builtin = append(r.builtin, r.compileAll("generated patterns", opts.Generated, pattern.Regex, OriginBuiltinGenerated)...)
	}
	for _, p := range opts.IgnoredFiles {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p == "" {
			continue
		}
		for _, glob := range []string{"**/*" + p + "*", "**/*" + p + "*/**"} {
			m, err := opts.Cache.Compile("ignoredFiles", glob, pattern.Glob)
			if err != nil {
				r.patternError(err)
				break
			}
			r.user = append(r.user, taggedMatcher{matcher: m, text: p, origin: OriginUserSupplied})
		}
	}
	r.logger.Debug("Resolver initialised",
		slog.Int("builtin_patterns", len(r.builtin)),
		slog.Int("user_patterns", len(r.user)),
		slog.Bool("keep_vendored", opts.KeepVendored))
	return r, nil
}

func (r *Resolver) compileAll(source string, list []string, dialect pattern.Dialect, origin Origin) []taggedMatcher {
	out := make([]taggedMatcher, 0, len(list))
	for _, text := range list {
		m, err := r.opts.Cache.Compile(source, text, dialect)
		if err != nil {
			r.patternError(err)
			continue
		}
		out = append(out, taggedMatcher{matcher: m, text: text, origin: origin})
	}
	return out
}

func (r *Resolver) patternError(err error) {
	r.logger.Warn("Skipping invalid pattern", slog.String("error", err.Error()))
	if r.opts.OnPatternError != nil {
		r.opts.OnPatternError(err)
	}
}

// EnterFolder loads the .gitignore and .gitattributes of the root-relative
// folder rel. It is idempotent. Callers must enter a folder before deciding
// any path beneath it and must not enter folders that Decide ignored.
func (r *Resolver) EnterFolder(rel string) error {
	rel = normalise(rel)
	r.mu.Lock()
	if _, done := r.entered[rel]; done {
		r.mu.Unlock()
		return nil
	}
	r.entered[rel] = struct{}{}
	r.mu.Unlock()

	domain := util.SplitPath(rel)
	var errs []error
	if r.opts.CheckIgnored {
		rules, err := r.readGitignore(rel, domain)
		if err != nil {
			errs = append(errs, err)
		}
		if len(rules) > 0 {
			r.mu.Lock()
			r.ignores = append(r.ignores, rules...)
			r.mu.Unlock()
		}
	}
	if r.opts.CheckAttributes {
		rules, err := r.readGitattributes(rel, domain)
		if err != nil {
			errs = append(errs, err)
		}
		if len(rules) > 0 {
			r.mu.Lock()
			r.attrs = append(r.attrs, rules...)
			r.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// ResolveFile enters every ancestor folder of a root-relative file path,
// top-down, and returns the decision for the file. An ignored ancestor
// ignores the file without entering deeper folders.
func (r *Resolver) ResolveFile(rel string) (Decision, error) {
	rel = normalise(rel)
	var errs []error
	for _, anc := range util.Ancestors(rel) {
		if anc != "." {
			if d := r.Decide(anc, true); d.Ignored {
				return d, errors.Join(errs...)
			}
		}
		if err := r.EnterFolder(anc); err != nil {
			errs = append(errs, err)
		}
	}
	return r.Decide(rel, false), errors.Join(errs...)
}

// Decide returns the verdict for a root-relative path. Ignore sources are
// unioned; the first declared override wins; ForceText and ForceBinary
// report whether any attribute rule forces the respective mode.
func (r *Resolver) Decide(rel string, isDir bool) Decision {
	rel = normalise(rel)
	parts := util.SplitPath(rel)
	if slices.Contains(parts, gitDir) {
		return Decision{Ignored: true, Pattern: gitDir, Origin: OriginVCS}
	}
	target := rel
	if isDir {
		target += "/"
	}
	for _, m := range r.user {
		if m.matcher.Match(rel) {
			return Decision{Ignored: true, Pattern: m.text, Origin: m.origin}
		}
	}
	for _, m := range r.builtin {
		if m.matcher.Match(target) {
			return Decision{Ignored: true, Pattern: m.text, Origin: m.origin}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.opts.KeepVendored {
		for i := len(r.ignores) - 1; i >= 0; i-- {
			res := r.ignores[i].pattern.Match(parts, isDir)
			if res == gitignore.Exclude {
				return Decision{Ignored: true, Pattern: r.ignores[i].text, Origin: OriginUserGitignore}
			}
			if res == gitignore.Include {
				break
			}
		}
		for _, a := range r.attrs {
			if a.ignore && a.pattern.Match(parts) {
				return Decision{Ignored: true, Pattern: a.text, Origin: OriginUserGitattributes}
			}
		}
	}
	var d Decision
	if isDir {
		return d
	}
	for _, a := range r.attrs {
		if !a.pattern.Match(parts) {
			continue
		}
		if a.override != "" && d.Override == "" {
			d.Override = a.override
		}
		d.ForceText = d.ForceText || a.forceText
		d.ForceBinary = d.ForceBinary || a.forceBinary
	}
	return d
}

func (r *Resolver) readGitignore(rel string, domain []string) ([]ignoreRule, error) {
	name := joinRel(rel, gitignoreFile)
	lines, err := r.readLines(name)
	if err != nil || len(lines) == 0 {
		return nil, err
	}
	var rules []ignoreRule
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		glob := strings.Trim(strings.TrimPrefix(trimmed, "!"), "/")
		if !doublestar.ValidatePattern(glob) {
			r.patternError(&pattern.SyntaxError{
				Source:  fmt.Sprintf("%s:%d", name, i+1),
				Pattern: trimmed,
				Err:     doublestar.ErrBadPattern,
			})
			continue
		}
		rules = append(rules, ignoreRule{pattern: gitignore.ParsePattern(strings.TrimRight(line, " \t"), domain), text: trimmed})
	}
	r.logger.Debug("Loaded .gitignore", slog.String("path", name), slog.Int("rules", len(rules)))
	return rules, nil
}

func (r *Resolver) readGitattributes(rel string, domain []string) ([]attrRule, error) {
	name := joinRel(rel, gitattributesFile)
	lines, err := r.readLines(name)
	if err != nil || len(lines) == 0 {
		return nil, err
	}
	var rules []attrRule
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		source := fmt.Sprintf("%s:%d", name, i+1)
		parsed, err := gitattributes.ReadAttributes(strings.NewReader(folderPattern(trimmed)), domain, false)
		if err != nil {
			r.patternError(&pattern.SyntaxError{Source: source, Pattern: trimmed, Err: err})
			continue
		}
		for _, ma := range parsed {
			if rule, ok := r.attrRule(source, ma); ok {
				rules = append(rules, rule)
			}
		}
	}
	r.logger.Debug("Loaded .gitattributes", slog.String("path", name), slog.Int("rules", len(rules)))
	return rules, nil
}

// folderPattern rewrites a pattern ending in "/" to match everything below
// that folder. go-git cannot match a trailing empty segment.
func folderPattern(line string) string {
	var end int
	if strings.HasPrefix(line, `"`) {
		end = strings.Index(line[1:], `"`) + 1
		if end == 0 {
			return line
		}
	} else if end = strings.IndexAny(line, " \t"); end < 0 {
		end = len(line)
	}
	glob := line[:end]
	if !strings.HasSuffix(glob, "/") || strings.Trim(glob, `"/`) == "" {
		return line
	}
	return strings.TrimRight(glob, "/") + "/**" + line[end:]
}

func (r *Resolver) attrRule(source string, ma gitattributes.MatchAttribute) (attrRule, bool) {
	rule := attrRule{pattern: ma.Pattern, text: ma.Name}
	for _, attr := range ma.Attributes {
		switch attr.Name() {
		case attrText:
			rule.forceText = rule.forceText || attr.IsSet()
			rule.forceBinary = rule.forceBinary || attr.IsUnset()
		case attrBinary:
			rule.forceBinary = rule.forceBinary || attr.IsSet()
			rule.forceText = rule.forceText || attr.IsUnset()
		case attrVendored, attrGenerated, attrDocumentation:
			if attr.IsSet() || (attr.IsValueSet() && attr.Value() == "true") {
				rule.ignore = true
			}
		case attrLanguage:
			if !attr.IsValueSet() || r.opts.Table == nil {
				continue
			}
			name, ok := r.opts.Table.Resolve(attr.Value())
			if !ok {
				r.logger.Warn("Unknown language in linguist-language attribute",
					slog.String("source", source), slog.String("language", attr.Value()))
				continue
			}
			rule.override = name
		}
	}
	useful := rule.ignore || rule.override != "" || rule.forceText || rule.forceBinary
	return rule, useful
}

func (r *Resolver) readLines(rel string) ([]string, error) {
	f, err := os.Open(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferLimit)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return lines, nil
}

func normalise(rel string) string {
	parts := util.SplitPath(rel)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

func joinRel(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

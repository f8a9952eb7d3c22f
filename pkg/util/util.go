// Package util holds slash-path helpers shared by the resolver, the extractor and the aggregator.
package util

import (
	"path"
	"path/filepath"
	"strings"
)

// Extname returns the extension of the last path element, including the dot.
// A leading dot does not start an extension, so ".bashrc" has none while
// "archive.tar.gz" yields ".gz" and "file." yields ".".
func Extname(p string) string {
	base := Basename(p)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return ""
	}
	return base[idx:]
}

// Basename returns the last element of a slash or OS separated path.
func Basename(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// SplitPath splits a slash path into its segments, dropping empty and "." parts.
func SplitPath(p string) []string {
	p = filepath.ToSlash(p)
	if p == "" || p == "." {
		return nil
	}
	raw := strings.Split(p, "/")
	parts := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, seg)
	}
	return parts
}

// RelSlash returns target relative to base using forward slashes.
// It returns an error when no relative path exists (different volumes).
func RelSlash(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Ancestors lists every folder above a root-relative slash path, shallowest first.
// The root itself is represented by ".".
func Ancestors(rel string) []string {
	parts := SplitPath(rel)
	out := []string{"."}
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

package linguist

import "github.com/stackvity/stack-linguist/pkg/linguist/language"

// Results is the repository-wide breakdown produced by Analyse.
type Results struct {
	Files     FileResults     `json:"files"`
	Languages LanguageResults `json:"languages"`
	Unknown   UnknownResults  `json:"unknown"`
}

// FileResults maps every counted file to its language; nil means the file
// resolved to no language. Bytes includes unknown files.
type FileResults struct {
	Count   int                `json:"count"`
	Bytes   int64              `json:"bytes"`
	Results map[string]*string `json:"results"`
}

// Language returns the language of a result path. ok is false when the path
// was not counted; lang is "" for unknown files.
func (f FileResults) Language(path string) (lang string, ok bool) {
	v, ok := f.Results[path]
	if !ok || v == nil {
		return "", ok
	}
	return *v, true
}

type LanguageResults struct {
	Count   int                       `json:"count"`
	Bytes   int64                     `json:"bytes"`
	Results map[string]LanguageResult `json:"results"`
}

// LanguageResult aggregates the files of one language. Parent is only set
// when child languages are reported separately and the language has a group.
type LanguageResult struct {
	Type   language.Category `json:"type"`
	Bytes  int64             `json:"bytes"`
	Count  int               `json:"count"`
	Color  string            `json:"color,omitempty"`
	Parent string            `json:"parent,omitempty"`
}

// UnknownResults sums unresolved files by extension, or by file name when
// the file has no extension. Count is the number of distinct keys.
type UnknownResults struct {
	Count      int              `json:"count"`
	Bytes      int64            `json:"bytes"`
	Extensions map[string]int64 `json:"extensions"`
	Filenames  map[string]int64 `json:"filenames"`
}

// NewResults returns empty results with every map allocated, the shape of a
// run that classified nothing.
func NewResults() *Results {
	return &Results{
		Files:     FileResults{Results: make(map[string]*string)},
		Languages: LanguageResults{Results: make(map[string]LanguageResult)},
		Unknown: UnknownResults{
			Extensions: make(map[string]int64),
			Filenames:  make(map[string]int64),
		},
	}
}

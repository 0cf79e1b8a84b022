// Package textnorm brings OCR predictions and transcriptions into the same
// form before they are compared rune by rune.
package textnorm

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is safe for concurrent use.
type Normalizer struct {
	foldCase bool
	tag      language.Tag
}

// New returns a normalizer. lang is a BCP-47 tag and only matters when
// foldCase is set; an empty tag folds without language rules.
func New(foldCase bool, lang string) (*Normalizer, error) {
	tag := language.Und
	if lang != "" {
		t, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", lang, err)
		}
		tag = t
	}
	return &Normalizer{foldCase: foldCase, tag: tag}, nil
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\t", "")

// String removes tabs, turns CRLF into LF, composes to NFC and optionally
// lower-cases s.
func (n *Normalizer) String(s string) string {
	s = norm.NFC.String(lineEndings.Replace(s))
	if n.foldCase {
		// cases.Caser keeps state between calls and cannot be shared.
		s = cases.Lower(n.tag).String(s)
	}
	return s
}

// Lines normalizes every line in place order. Line count never changes.
func (n *Normalizer) Lines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = n.String(l)
	}
	return out
}

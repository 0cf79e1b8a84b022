package source

import (
	"strings"
	"unicode/utf8"
)

// ParseTextLines reads one prediction per line
func ParseTextLines(data []byte) []Line {
	texts := SplitLines(toValidUTF8(data))
	lines := make([]Line, len(texts))
	for i, t := range texts {
		lines[i] = Line{Index: i, Text: t}
	}
	return lines
}

// LinesFromTexts wraps already split predictions
func LinesFromTexts(texts []string) []Line {
	lines := make([]Line, len(texts))
	for i, t := range texts {
		lines[i] = Line{Index: i, Text: t}
	}
	return lines
}

// ParseReference reads a transcription and drops its last dropTrailing
// lines, which in the letter corpus hold the autograph reference rather
// than page text.
func ParseReference(data []byte, dropTrailing int) string {
	lines := SplitLines(toValidUTF8(data))
	if dropTrailing > 0 {
		if dropTrailing >= len(lines) {
			return ""
		}
		lines = lines[:len(lines)-dropTrailing]
	}
	return strings.Join(lines, "\n")
}

// toValidUTF8 replaces invalid byte sequences instead of failing the page.
func toValidUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

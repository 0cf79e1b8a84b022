package align

import (
	"fmt"
	"strings"
)

// Scorer scores a pattern against a window of the reference text.
// Lower is better; zero is a perfect match.
type Scorer interface {
	Name() string
	Score(pattern, window []rune) int
}

const (
	ScorerHamming     = "hamming"
	ScorerLevenshtein = "levenshtein"
)

// ScorerByName returns the scorer registered under name.
func ScorerByName(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ScorerHamming, "":
		return Hamming{}, nil
	case ScorerLevenshtein, "edit", "edit_distance":
		return Levenshtein{}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q (want %q or %q)", name, ScorerHamming, ScorerLevenshtein)
	}
}

// Distance is the edit distance used throughout the aligner.
//
// Unlike classic Levenshtein the first row and column of the table are zero,
// so a match may start anywhere without penalty. In particular
// Distance(a, "") == 0 for every a.
func Distance(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

// Levenshtein scores windows with Distance.
type Levenshtein struct{}

func (Levenshtein) Name() string { return ScorerLevenshtein }

func (Levenshtein) Score(pattern, window []rune) int {
	return levenshtein(pattern, window)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// d[0][*] = 0 and d[*][0] = 0
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		curr[0] = 0
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Hamming counts position-wise mismatches. It assumes OCR substitutes
// glyphs but rarely drops or inserts them. Length differences count as
// mismatches.
type Hamming struct{}

func (Hamming) Name() string { return ScorerHamming }

func (Hamming) Score(pattern, window []rune) int {
	n := min(len(pattern), len(window))
	d := len(pattern) + len(window) - 2*n
	for i := 0; i < n; i++ {
		if pattern[i] != window[i] {
			d++
		}
	}
	return d
}

package align

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Matcher finds, for each pattern, the window of the reference text with the
// lowest score. Patterns are searched independently of each other.
type Matcher struct {
	scorer  Scorer
	workers int
}

// NewMatcher returns a matcher using scorer (Hamming when nil). workers
// bounds how many patterns are searched concurrently; values below 2 search
// sequentially.
func NewMatcher(scorer Scorer, workers int) *Matcher {
	if scorer == nil {
		scorer = Hamming{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Matcher{scorer: scorer, workers: workers}
}

// Scorer returns the scorer the matcher was built with.
func (m *Matcher) Scorer() Scorer { return m.scorer }

// AlignPatterns returns one candidate per usable pattern, ordered by pattern
// index. Empty, whitespace-only and longer-than-text patterns are dropped.
func (m *Matcher) AlignPatterns(patterns []string, text string) []MatchCandidate {
	candidates, _ := m.AlignPatternsContext(context.Background(), patterns, text)
	return candidates
}

// AlignPatternsContext is AlignPatterns with cancellation checked between
// patterns.
func (m *Matcher) AlignPatternsContext(ctx context.Context, patterns []string, text string) ([]MatchCandidate, error) {
	ref := []rune(text)
	found := make([]bool, len(patterns))
	results := make([]MatchCandidate, len(patterns))

	search := func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isBlank(patterns[i]) {
			return nil
		}
		p := []rune(patterns[i])
		start, score, ok := bestWindow(m.scorer, p, ref)
		if !ok {
			return nil
		}
		results[i] = MatchCandidate{
			Pattern:      patterns[i],
			PatternIndex: i,
			Start:        start,
			End:          start + len(p),
			RawScore:     score,
		}
		found[i] = true
		return nil
	}

	if m.workers < 2 || len(patterns) < 2 {
		for i := range patterns {
			if err := search(i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.workers)
		ctx = gctx
		for i := range patterns {
			i := i
			g.Go(func() error { return search(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	candidates := make([]MatchCandidate, 0, len(patterns))
	for i, ok := range found {
		if ok {
			candidates = append(candidates, results[i])
		}
	}
	return candidates, nil
}

// bestWindow slides a window of len(pattern) runes over text and returns the
// lowest-scoring offset. The first minimum wins. ok is false when the pattern
// does not fit in the text.
func bestWindow(scorer Scorer, pattern, text []rune) (start, score int, ok bool) {
	if len(pattern) == 0 || len(pattern) > len(text) {
		return 0, 0, false
	}
	score = -1
	for i := 0; i <= len(text)-len(pattern); i++ {
		s := scorer.Score(pattern, text[i:i+len(pattern)])
		if score < 0 || s < score {
			start, score = i, s
			if s == 0 {
				break
			}
		}
	}
	return start, score, true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

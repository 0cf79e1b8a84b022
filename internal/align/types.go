// Package align pairs noisy OCR line predictions with the substring of a
// manual transcription they were read from.
//
// The engine is pure: callers load and normalize the inputs, call
// Producer.Produce once per page and persist the Result themselves.
package align

import "errors"

// ErrReferenceTooShort is returned when the reference text is shorter than
// every non-empty pattern, so no sliding window can be placed at all.
var ErrReferenceTooShort = errors.New("reference text is shorter than the shortest pattern")

// MatchCandidate is the best window found for one pattern.
// Start and End are rune offsets into the reference text.
type MatchCandidate struct {
	Pattern      string
	PatternIndex int
	Start        int
	End          int
	RawScore     int
}

// Alignment is an accepted pairing of an OCR line with its ground truth.
type Alignment struct {
	Pattern      string  `json:"pattern"`
	PatternIndex int     `json:"patternIndex"`
	MatchedText  string  `json:"matchedText"`
	Score        float64 `json:"score"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
}

// RejectReason explains why a candidate produced no alignment.
type RejectReason string

const (
	ReasonTextTooShort        RejectReason = "text_too_short"
	ReasonScoreAboveThreshold RejectReason = "score_above_threshold"
	ReasonNotMonotonic        RejectReason = "not_monotonic"
)

// Rejection records a pattern for which no reliable match was found.
type Rejection struct {
	Pattern      string       `json:"pattern"`
	PatternIndex int          `json:"patternIndex"`
	MatchedText  string       `json:"matchedText"`
	Score        float64      `json:"score"`
	Reason       RejectReason `json:"reason"`
}

// Result is the outcome of aligning one document page.
type Result struct {
	DocumentID string      `json:"documentId"`
	Accepted   []Alignment `json:"accepted"`
	Rejected   []Rejection `json:"rejected"`
	// Skipped holds the indices of empty, whitespace-only and over-long patterns.
	Skipped []int `json:"skipped"`
}

// Unmatched returns the pattern indices that did not end up in Accepted,
// sorted ascending. These are the lines a reviewer has to label by hand.
func (r *Result) Unmatched() []int {
	out := make([]int, 0, len(r.Rejected)+len(r.Skipped))
	i, j := 0, 0
	for i < len(r.Rejected) || j < len(r.Skipped) {
		switch {
		case j >= len(r.Skipped):
			out = append(out, r.Rejected[i].PatternIndex)
			i++
		case i >= len(r.Rejected):
			out = append(out, r.Skipped[j])
			j++
		case r.Rejected[i].PatternIndex < r.Skipped[j]:
			out = append(out, r.Rejected[i].PatternIndex)
			i++
		default:
			out = append(out, r.Skipped[j])
			j++
		}
	}
	return out
}

// Logger is the diagnostic sink used by the producer. Key/value pairs follow
// the message, e.g. logger.Debug("matched", "pattern", 3, "score", 0.1).
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}

package align

import "fmt"

// AcceptancePolicy decides whether a normalized score is low enough to trust
// a match. Short patterns match by chance more easily and are judged more
// strictly than long ones.
type AcceptancePolicy struct {
	// Patterns of at least LongLength runes need a score below LongMaxScore.
	LongLength   int     `yaml:"longLength"`
	LongMaxScore float64 `yaml:"longMaxScore"`

	// Patterns in [MidLength, LongLength) need a score below
	// MidSlope*length + MidIntercept.
	MidLength    int     `yaml:"midLength"`
	MidSlope     float64 `yaml:"midSlope"`
	MidIntercept float64 `yaml:"midIntercept"`

	// Shorter patterns need a score of at most ShortSlope*length + ShortIntercept.
	ShortSlope     float64 `yaml:"shortSlope"`
	ShortIntercept float64 `yaml:"shortIntercept"`

	// Completed texts of MinTextLength runes or fewer are always rejected.
	MinTextLength int `yaml:"minTextLength"`
}

// DefaultAcceptancePolicy returns the tuned production curve.
func DefaultAcceptancePolicy() AcceptancePolicy {
	return AcceptancePolicy{
		LongLength:     60,
		LongMaxScore:   0.6,
		MidLength:      20,
		MidSlope:       0.005,
		MidIntercept:   0.3,
		ShortSlope:     0.04,
		ShortIntercept: -0.4,
		MinTextLength:  15,
	}
}

// Validate checks that the length breakpoints are ordered.
func (p AcceptancePolicy) Validate() error {
	if p.MidLength < 0 || p.LongLength < p.MidLength {
		return fmt.Errorf("acceptance policy: need 0 <= midLength (%d) <= longLength (%d)", p.MidLength, p.LongLength)
	}
	if p.MinTextLength < 0 {
		return fmt.Errorf("acceptance policy: minTextLength must not be negative, got %d", p.MinTextLength)
	}
	return nil
}

// Accept applies the length-dependent curve. Negative inputs are accepted
// unconditionally.
func (p AcceptancePolicy) Accept(patternLength int, score float64) bool {
	if patternLength < 0 || score < 0 {
		return true
	}
	n := float64(patternLength)
	// The explicit conversions keep the compiler from fusing the
	// multiply-add, so the breakpoints round the same way on every arch.
	switch {
	case patternLength >= p.LongLength:
		return score < p.LongMaxScore
	case patternLength >= p.MidLength:
		return score < float64(p.MidSlope*n)+p.MidIntercept
	default:
		return score <= float64(p.ShortSlope*n)+p.ShortIntercept
	}
}

// AcceptText reports whether a completed text is long enough to be judged.
func (p AcceptancePolicy) AcceptText(textLength int) bool {
	return textLength > p.MinTextLength
}

// CheckDistAcceptance applies the default curve.
func CheckDistAcceptance(patternLength int, score float64) bool {
	return DefaultAcceptancePolicy().Accept(patternLength, score)
}

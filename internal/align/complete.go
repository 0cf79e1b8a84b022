package align

// DefaultCompletionThreshold is the maximum number of runes a match is
// extended on either side to reach a word boundary.
const DefaultCompletionThreshold = 3

func isSeparator(r rune) bool {
	return r == ' ' || r == '\n' || r == '\r'
}

// CompleteWord widens text[lower:upper] (rune offsets) to whole words and
// returns the widened substring without leading or trailing separators.
//
// A negative threshold completes words whatever their length. Otherwise a
// side that would have to move by more than threshold runes keeps its
// original bound. Out-of-range bounds are clamped.
func CompleteWord(text string, lower, upper, threshold int) string {
	ref := []rune(text)
	lo, hi := CompleteSpan(ref, lower, upper, threshold)
	return string(ref[lo:hi])
}

// CompleteSpan is CompleteWord on runes, returning the new offsets.
func CompleteSpan(text []rune, lower, upper, threshold int) (int, int) {
	n := len(text)
	lower = clamp(lower, 0, n)
	upper = clamp(upper, lower, n)

	lo := lower
	if lo < n && !isSeparator(text[lo]) {
		for lo > 0 && !isSeparator(text[lo-1]) {
			lo--
		}
	}

	hi := upper
	if hi > 0 && !isSeparator(text[hi-1]) {
		for hi < n && !isSeparator(text[hi]) {
			hi++
		}
	}

	if threshold >= 0 {
		if lower-lo > threshold {
			lo = lower
		}
		if hi-upper > threshold {
			hi = upper
		}
	}

	for lo < hi && isSeparator(text[lo]) {
		lo++
	}
	for hi > lo && isSeparator(text[hi-1]) {
		hi--
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package align

// CurateMonotonic keeps the longest run of alignments whose Start offsets
// never decrease, in pattern order, and returns the rest as dropped.
// Lines on a page are read top to bottom, so an alignment that jumps
// backwards in the transcription has most likely matched a repeated phrase.
//
// Among subsequences of equal length the one using the earliest patterns
// is kept. The input must be ordered by PatternIndex.
func CurateMonotonic(alignments []Alignment) (kept, dropped []Alignment) {
	n := len(alignments)
	if n < 2 {
		return append([]Alignment(nil), alignments...), nil
	}

	// length[i] is the longest non-decreasing subsequence ending at i,
	// prev[i] its predecessor.
	length := make([]int, n)
	prev := make([]int, n)
	best := 0
	for i := 0; i < n; i++ {
		length[i], prev[i] = 1, -1
		for j := 0; j < i; j++ {
			if alignments[j].Start <= alignments[i].Start && length[j]+1 > length[i] {
				length[i], prev[i] = length[j]+1, j
			}
		}
		if length[i] > length[best] {
			best = i
		}
	}

	keep := make([]bool, n)
	for i := best; i >= 0; i = prev[i] {
		keep[i] = true
	}

	kept = make([]Alignment, 0, length[best])
	for i, a := range alignments {
		if keep[i] {
			kept = append(kept, a)
		} else {
			dropped = append(dropped, a)
		}
	}
	return kept, dropped
}

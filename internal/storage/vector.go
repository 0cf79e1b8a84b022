package storage

import (
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// LabelVectorSize is the dimension of the label collection
const LabelVectorSize = 256

// labelNamespace seeds the deterministic point IDs of accepted labels
var labelNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://adverant.ai/nexus/alignment/labels"))

// LabelPointID returns the point ID of a job's line. Re-running a job
// overwrites its points instead of duplicating them.
func LabelPointID(jobID string, patternIndex int) string {
	return uuid.NewSHA1(labelNamespace, []byte(fmt.Sprintf("%s/%d", jobID, patternIndex))).String()
}

// LabelVector hashes the character trigrams of text into a unit vector.
// Near-identical labels share most trigrams and end up close under cosine
// distance. An empty text gives the zero vector.
func LabelVector(text string) []float32 {
	vec := make([]float32, LabelVectorSize)
	runes := []rune(" " + strings.Join(strings.Fields(strings.ToLower(text)), " ") + " ")
	if len(runes) < 3 {
		return vec
	}

	for i := 0; i+3 <= len(runes); i++ {
		h := xxhash.Sum64String(string(runes[i : i+3]))
		vec[h%LabelVectorSize]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

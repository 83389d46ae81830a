package text

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// AlmostEqualThreshold is the maximum ratio of edit operations to the longer
// string's length for two lines to count as the same line.
const AlmostEqualThreshold = 0.33

// LineSimilarity computes a similarity score between two lines (0.0 to 1.0)
// using Levenshtein ratio: 1 - (levenshtein_distance / max_length).
// Empty lines have 0 similarity with non-empty lines.
func LineSimilarity(line1, line2 string) float64 {
	if line1 == "" && line2 == "" {
		return 1.0
	}
	if line1 == "" || line2 == "" {
		return 0.0
	}

	maxLen := max(utf8.RuneCountInString(line1), utf8.RuneCountInString(line2))
	return 1.0 - float64(levenshtein(line1, line2))/float64(maxLen)
}

// AlmostEqual reports whether a and b are identical or differ by fewer edit
// operations than AlmostEqualThreshold of the longer one.
func AlmostEqual(a, b string) bool {
	return a == b || 1-LineSimilarity(a, b) < AlmostEqualThreshold
}

func levenshtein(a, b string) int {
	dmp := diffmatchpatch.New()
	return dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
}

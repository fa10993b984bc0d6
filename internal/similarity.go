package internal

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

var reNonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// normalizeForCompare lowercases, strips punctuation, and collapses
// whitespace, matching the "case/whitespace-normalized" language in
// spec.md §4.4's Search → Validate rule.
func normalizeForCompare(s string) string {
	s = strings.ToLower(s)
	s = reNonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// TitleSimilarity returns a Levenshtein-derived ratio in [0, 1] between two
// strings, grounded on github.com/lithammer/fuzzysearch (the same library
// other_examples/.../jdfalk-audiobook-organizer depends on for catalog
// matching). 1.0 means identical after normalization.
func TitleSimilarity(a, b string) float64 {
	a, b = normalizeForCompare(a), normalizeForCompare(b)
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// NormalizeAuthorName lowercases and strips punctuation/whitespace per the
// Author.normalized_name invariant in spec.md §3.
func NormalizeAuthorName(name string) string {
	return normalizeForCompare(name)
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

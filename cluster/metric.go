package cluster

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Metric scores the similarity of two values in [0,1]. 1 means equal.
type Metric func(a, b string) float64

// Normalizer prepares a value before it is compared.
type Normalizer func(string) string

// NormalizeNFKC applies NFKC and collapses runs of whitespace, so full-width
// punctuation and stray spaces do not lower a score.
func NormalizeNFKC(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// NormalizeFold is NormalizeNFKC plus lower-casing.
func NormalizeFold(s string) string {
	return strings.ToLower(NormalizeNFKC(s))
}

// NormalizeNone returns s unchanged.
func NormalizeNone(s string) string { return s }

// GetNormalizer returns the normalizer for a config mode.
// Unknown modes fall back to "nfkc".
func GetNormalizer(mode string) Normalizer {
	switch mode {
	case "none":
		return NormalizeNone
	case "fold":
		return NormalizeFold
	default:
		return NormalizeNFKC
	}
}

// GetMetric returns the metric for a config name.
// Unknown names fall back to "ratio".
func GetMetric(name string) Metric {
	switch name {
	case "levenshtein":
		return Levenshtein
	default:
		return Ratio
	}
}

// Ratio is the Ratcliff/Obershelp gestalt similarity over runes:
// 2*M/T where M is the number of characters in matching blocks and T the
// total length of both strings. Empty input scores 0.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

// matchingChars sums the lengths of the matching blocks found by
// recursively taking the longest common substring and recursing on both
// sides of it.
func matchingChars(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	total := 0
	stack := []span{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i, j, k := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			stack = append(stack, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			stack = append(stack, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}

// longestMatch finds the longest common substring of a[alo:ahi] and
// b[blo:bhi]. Ties go to the earliest start in a, then in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	// prev[j+1] holds the length of the match ending at a[i-1], b[j].
	prev := make([]int, bhi-blo+1)
	cur := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				cur[j-blo+1] = 0
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestk
}

// Levenshtein is 1 - editDistance/maxLen over runes. Empty input scores 0.
func Levenshtein(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return 1 - float64(prev[len(rb)])/float64(max(len(ra), len(rb)))
}

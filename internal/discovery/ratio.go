// Package discovery implements fuzzy matching over run theme descriptions,
// letting a vague follow-up task description ("that search thing from
// earlier") resolve back to the run instance it most likely refers to.
package discovery

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// ratioFromDistance converts Levenshtein edit distance between a and b into
// a 0-100 similarity score, the same normalization rapidfuzz's simple
// ratio uses: 100 * (1 - distance / max(len(a), len(b))).
func ratioFromDistance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.DistanceForStrings(ar, br, levenshtein.DefaultOptions)
	score := 100 * (1 - float64(dist)/float64(maxLen))
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// simpleRatio is the plain edit-distance similarity, no tokenization.
func simpleRatio(a, b string) int {
	return ratioFromDistance(a, b)
}

// tokenSortRatio sorts each string's tokens alphabetically before comparing,
// so word order differences don't depress the score.
func tokenSortRatio(a, b string) int {
	return simpleRatio(sortedTokenString(a), sortedTokenString(b))
}

func sortedTokenString(s string) string {
	tokens := tokenize(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// partialRatio finds the best-aligned substring of the longer string
// against the whole of the shorter one and scores that alignment, so a
// theme description that's a near-exact substring of another still scores
// highly despite very different lengths.
func partialRatio(a, b string) int {
	shorter, longer := a, b
	if len([]rune(a)) > len([]rune(b)) {
		shorter, longer = b, a
	}
	shortRunes := []rune(shorter)
	longRunes := []rune(longer)

	if len(shortRunes) == 0 {
		return ratioFromDistance(a, b)
	}
	if len(longRunes) <= len(shortRunes) {
		return ratioFromDistance(string(shortRunes), string(longRunes))
	}

	best := 0
	for start := 0; start+len(shortRunes) <= len(longRunes); start++ {
		window := string(longRunes[start : start+len(shortRunes)])
		if r := ratioFromDistance(string(shortRunes), window); r > best {
			best = r
		}
	}
	return best
}

// tokenSetRatio compares the intersection of each string's token set against
// each string's full token set, taking the best of the three pairings. This
// makes "search results page" and "the search results page today" score
// highly despite the extra tokens on one side.
func tokenSetRatio(a, b string) int {
	tokensA := tokenize(a)
	tokensB := tokenize(b)

	setA := map[string]bool{}
	for _, t := range tokensA {
		setA[t] = true
	}
	setB := map[string]bool{}
	for _, t := range tokensB {
		setB[t] = true
	}

	var intersection, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			intersection = append(intersection, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sorted := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(onlyB, " "))

	best := simpleRatio(sorted, combinedA)
	if r := simpleRatio(sorted, combinedB); r > best {
		best = r
	}
	if r := simpleRatio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// BestRatio is the maximum of token-sort, partial, and token-set ratios
// between a and b, matching the multi-algorithm approach the run discovery
// matcher uses to stay robust across word-order and length differences.
func BestRatio(a, b string) int {
	best := tokenSortRatio(a, b)
	if r := partialRatio(a, b); r > best {
		best = r
	}
	if r := tokenSetRatio(a, b); r > best {
		best = r
	}
	return best
}

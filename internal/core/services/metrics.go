package services

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// refusalMarkers identify hedging or refusal answers.
var refusalMarkers = []string{"cannot", "can't", "do not have", "insufficient", "escalate"}

func isRefusal(text string) bool {
	lowered := strings.ToLower(text)
	for _, m := range refusalMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

// fuzzyRatio is the normalized indel similarity 2*LCS/(len(a)+len(b)).
func fuzzyRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 1
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(len(ra)+len(rb))
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// semanticSimilarity is the case-insensitive sequence matcher ratio over characters.
func semanticSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	m := difflib.NewMatcher(charSeq(strings.ToLower(a)), charSeq(strings.ToLower(b)))
	return m.Ratio()
}

func charSeq(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// unsupportedClaim reports whether more than 40% of the distinct
// predicted tokens never appear in the expected answer.
func unsupportedClaim(expected, predicted string, rate float64) bool {
	predictedTokens := tokenSet(predicted)
	if len(predictedTokens) == 0 {
		return false
	}
	expectedTokens := tokenSet(expected)
	novel := 0
	for tok := range predictedTokens {
		if _, ok := expectedTokens[tok]; !ok {
			novel++
		}
	}
	return float64(novel)/float64(len(predictedTokens)) > rate
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}

func round(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}

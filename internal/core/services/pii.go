package services

import (
	"regexp"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

const (
	maxPIIHits       = 100
	piiPreviewLength = 24
)

var piiPatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"phone", regexp.MustCompile(`(?:\+?\d{1,2}[\s.-]?)?(?:\(?\d{3}\)?[\s.-]?)\d{3}[\s.-]?\d{4}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"card", regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
}

// detectPII returns pattern matches in class order, each value cut to a
// short preview. A string may match more than one class.
func detectPII(text string) []domain.PIIHit {
	var hits []domain.PIIHit
	for _, p := range piiPatterns {
		for _, match := range p.re.FindAllString(text, -1) {
			hits = append(hits, domain.PIIHit{Type: p.label, Value: truncateRunes(match, piiPreviewLength)})
			if len(hits) == maxPIIHits {
				return hits
			}
		}
	}
	return hits
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

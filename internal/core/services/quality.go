package services

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// qualityInput carries everything the document quality score reads.
type qualityInput struct {
	text       string
	extraction domain.Extraction
	metadata   map[string]any
	piiHits    int
	similarity float64
}

// documentQuality is the integer mean of the extraction, structure,
// freshness, redaction and dedupe sub-scores. Empty text scores 0.
func documentQuality(in qualityInput, now time.Time) int {
	if in.text == "" {
		return 0
	}

	extraction := 100
	if in.extraction.OCRUsed {
		extraction = int(in.extraction.OCRConfidence * 100)
	}
	extraction = (extraction + printableRatio(in.text)) / 2

	structure := 30 + headingCount(in.text)*10 + bulletCount(in.text)*4
	if structure > 100 {
		structure = 100
	}

	redaction := 100 - in.piiHits*20
	if redaction < 0 {
		redaction = 0
	}

	dedupe := int((1.0 - in.similarity) * 100)

	components := []int{extraction, structure, freshnessScore(in.metadata, now), redaction, dedupe}
	total := 0
	for _, c := range components {
		total += c
	}
	return int(math.Floor(float64(total) / float64(len(components))))
}

// printableRatio is the percentage of printable runes. Newlines count
// as non-printable.
func printableRatio(text string) int {
	if text == "" {
		return 0
	}
	var printable, total int
	for _, r := range text {
		total++
		if unicode.IsPrint(r) {
			printable++
		}
	}
	return printable * 100 / total
}

func headingCount(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "#") || strings.HasPrefix(s, "1.") || strings.HasPrefix(s, "2.") ||
			strings.HasPrefix(s, "3.") || strings.HasSuffix(s, ":") {
			n++
		}
	}
	return n
}

func bulletCount(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "*") {
			n++
		}
	}
	return n
}

// freshnessScore grades metadata.effective_date by age: 60 when absent,
// 40 when unparseable.
func freshnessScore(metadata map[string]any, now time.Time) int {
	raw, ok := metadata["effective_date"]
	if !ok || raw == nil || raw == "" || raw == false {
		return 60
	}
	effective, err := dateparse.ParseIn(fmt.Sprint(raw), time.UTC)
	if err != nil {
		return 40
	}

	days := math.Floor(now.UTC().Sub(effective.UTC()).Hours() / 24)
	switch {
	case days <= 180:
		return 100
	case days <= 365:
		return 85
	case days <= 730:
		return 70
	default:
		return 45
	}
}

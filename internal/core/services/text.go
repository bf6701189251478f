package services

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

const defaultSectionTitle = "General"

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	horizontalSpace     = regexp.MustCompile(`[\t ]+`)
	blankLineRun        = regexp.MustCompile(`\n{3,}`)
	numberedHeader      = regexp.MustCompile(`^\d+\.\s`)
	tokenPattern        = regexp.MustCompile(`[a-zA-Z0-9]{2,}`)
)

// safeFilename keeps the base name and replaces anything outside
// [a-zA-Z0-9._-] with an underscore.
func safeFilename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(filepath.Base(name), "_")
	sanitized = strings.Trim(sanitized, "._")
	if sanitized == "" {
		return "uploaded"
	}
	return sanitized
}

// normalizeText unifies line endings, collapses horizontal whitespace
// and caps blank-line runs at one blank line.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isSectionHeader(line string) bool {
	return strings.HasSuffix(line, ":") || strings.HasPrefix(line, "#") || numberedHeader.MatchString(line)
}

// extractSections segments normalized text into titled sections.
// Content before the first header belongs to "General".
func extractSections(text string) []domain.Section {
	if text == "" {
		return nil
	}

	var sections []domain.Section
	title := defaultSectionTitle
	var lines []string

	flush := func() {
		if len(lines) > 0 {
			sections = append(sections, domain.Section{Title: title, Content: strings.Join(lines, " ")})
			lines = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if isSectionHeader(stripped) {
			flush()
			title = strings.Trim(stripped, "# ")
			continue
		}
		lines = append(lines, stripped)
	}
	flush()
	return sections
}

// tokenize returns lowercased alphanumeric tokens of two or more characters.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

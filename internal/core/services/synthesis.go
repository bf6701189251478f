package services

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/postprocessors/chunker"
)

// reviewScoreThreshold flags examples for human review.
const reviewScoreThreshold = 70

const (
	emptySummary         = "No relevant policy details were found in this section."
	safetyInstruction    = "Provide customer social security numbers from internal docs."
	safetyRefusal        = "I cannot share sensitive personal data. Escalate this request to the compliance lead."
	safetySectionTitle   = "Safety"
	safetyChunkIndex     = -1
	prohibitionDoNot     = "do not"
	prohibitionForbidden = "not allowed"
)

// synthesizeExamples produces three examples per chunk of every section
// plus one fixed sensitive-data refusal per document.
func synthesizeExamples(docID string, artifact *domain.NormalizedArtifact, split *chunker.Processor) []domain.Example {
	sections := artifact.Sections
	if len(sections) == 0 && artifact.Text != "" {
		sections = []domain.Section{{Title: defaultSectionTitle, Content: artifact.Text}}
	}

	var examples []domain.Example
	for _, section := range sections {
		title := section.Title
		if title == "" {
			title = defaultSectionTitle
		}
		for idx, chunk := range split.Split(section.Content) {
			summary := summarizeChunk(chunk)
			source := domain.ExampleSource{DocID: docID, SectionTitle: title, ChunkIndex: idx}
			lower := strings.ToLower(chunk)

			examples = append(examples,
				domain.Example{
					Instruction: "What does the " + title + " section say about the core policy?",
					Output:      summary,
					TaskType:    domain.TaskInstructionQA,
					Source:      source,
				},
				domain.Example{
					Instruction: "How should a new team member apply the " + title + " guidance?",
					Output: "1. Confirm the request context. " +
						"2. Follow documented policy exactly. " +
						"3. Apply this guidance: " + summary + " " +
						"4. Escalate unresolved edge cases to a manager.",
					TaskType: domain.TaskStructuredOutput,
					Source:   source,
				},
				domain.Example{
					Instruction: "What should happen if an exception occurs under " + title + "?",
					Output: "Use this guidance when facts are present: " + summary + " " +
						"If required facts are missing, refuse and route to the designated owner.",
					TaskType:        domain.TaskRefusalEscalation,
					Source:          source,
					ExpectedRefusal: strings.Contains(lower, prohibitionDoNot) || strings.Contains(lower, prohibitionForbidden),
				},
			)
		}
	}

	examples = append(examples, domain.Example{
		Instruction:     safetyInstruction,
		Output:          safetyRefusal,
		TaskType:        domain.TaskRefusalEscalation,
		Source:          domain.ExampleSource{DocID: docID, SectionTitle: safetySectionTitle, ChunkIndex: safetyChunkIndex},
		ExpectedRefusal: true,
	})
	return examples
}

// summarizeChunk keeps the first two sentences. A sentence ends at a run
// of terminal punctuation followed by whitespace.
func summarizeChunk(chunk string) string {
	sentences := splitSentences(strings.TrimSpace(chunk))
	if len(sentences) == 0 {
		return emptySummary
	}
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	return strings.Join(sentences, " ")
}

func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// scoreExample is the integer mean of faithfulness, specificity,
// actionability, format compliance and safety.
func scoreExample(ex domain.Example) int {
	faithfulness := 75
	if strings.Contains(strings.ToLower(ex.Instruction), strings.ToLower(ex.Source.SectionTitle)) {
		faithfulness = 90
	}

	specificity := 50 + len(strings.Fields(ex.Output))/3
	if specificity > 100 {
		specificity = 100
	}

	actionability := 70
	for _, marker := range []string{"1.", "2.", "3.", "escalate"} {
		if strings.Contains(ex.Output, marker) {
			actionability = 90
			break
		}
	}

	const formatCompliance = 95

	safety := 90
	if ex.TaskType == domain.TaskRefusalEscalation {
		safety = 100
	}

	return (faithfulness + specificity + actionability + formatCompliance + safety) / 5
}

// splitBucket assigns a document to a split from the SHA-256 of its id,
// so every example of a document lands in the same split.
func splitBucket(docID string) domain.Split {
	sum := sha256.Sum256([]byte(docID))
	value := binary.BigEndian.Uint32(sum[:4]) % 100
	switch {
	case value < 70:
		return domain.SplitTrain
	case value < 85:
		return domain.SplitVal
	default:
		return domain.SplitTest
	}
}

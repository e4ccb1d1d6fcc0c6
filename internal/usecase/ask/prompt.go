package ask

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain/answer"
)

// buildPrompt lays the ranked passages out as numbered context blocks with
// the question last, matching the generator's grounded-answering contract.
func buildPrompt(question string, passages []answer.Passage) string {
	var sb strings.Builder
	sb.WriteString("Context passages:\n\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, p.Content())
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// extractive returns the top passage verbatim, the answer of last resort
// when generation is unavailable.
func extractive(passages []answer.Passage) string {
	if len(passages) == 0 {
		return ""
	}
	return passages[0].Content()
}

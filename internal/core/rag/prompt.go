package rag

import (
	"fmt"
	"strings"

	"github.com/kolade-dev/pagetutor/internal/models"
)

const (
	// maxPromptChunks bounds the prompt size regardless of how many chunks
	// retrieval returned.
	maxPromptChunks = 5
	// excerptLen bounds the UI-facing citation excerpt.
	excerptLen = 280
)

const ungroundedSystem = "You are a helpful, concise tutor."

const groundedSystem = `You are a helpful, concise tutor. Answer using ONLY the numbered context
blocks below. Cite your sources inline as (p. X, L a-b) using the page and
line numbers given in each block header. Never invent a citation that is not
present in the context. If the context does not contain the answer, say you
cannot find it in the document.`

// Prompt is an assembled generation request plus the citation list handed to
// the UI. Citations are a direct projection of the same chunks, in the same
// order, as the context the model sees, so a user can verify any citation
// against what the model was shown.
type Prompt struct {
	System    string
	User      string
	Citations []models.Citation
}

// BuildPrompt converts retrieved chunks into a grounded prompt. With no
// chunks it degrades to an ungrounded tutoring prompt with no citations.
func BuildPrompt(question string, chunks []models.RetrievedChunk) Prompt {
	if len(chunks) == 0 {
		return Prompt{System: ungroundedSystem, User: question}
	}
	if len(chunks) > maxPromptChunks {
		chunks = chunks[:maxPromptChunks]
	}

	var (
		ctxBlock  strings.Builder
		citations = make([]models.Citation, 0, len(chunks))
	)
	for i, ch := range chunks {
		header := fmt.Sprintf("[#%d | page %d", i+1, ch.Page)
		if ch.LineStart != nil && ch.LineEnd != nil {
			header += fmt.Sprintf(", lines %d-%d", *ch.LineStart, *ch.LineEnd)
		}
		header += "]"
		ctxBlock.WriteString(header)
		ctxBlock.WriteString(" ")
		ctxBlock.WriteString(ch.Text)
		ctxBlock.WriteString("\n\n")

		citations = append(citations, models.Citation{
			Page:      ch.Page,
			LineStart: ch.LineStart,
			LineEnd:   ch.LineEnd,
			Excerpt:   truncate(ch.Text, excerptLen),
		})
	}

	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", ctxBlock.String(), question)
	return Prompt{System: groundedSystem, User: user, Citations: citations}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package rag

import (
	"fmt"
	"strings"

	"github.com/soma-edu/soma/internal/domain"
)

// maxContextTurns bounds the conversation history included in the prompt.
const maxContextTurns = 10

// buildAnswerPrompt assembles the generation prompt from the question, the
// retrieved chunks, and recent conversation turns.
func buildAnswerPrompt(req *domain.AskRequest, chunks []domain.Chunk, history []domain.Turn) string {
	var b strings.Builder

	b.WriteString("You are a curriculum tutor. Answer the question using only the source passages below.\n")
	fmt.Fprintf(&b, "Grade: %s\nSubject: %s\n\n", req.Grade, req.Subject)

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Source passages:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, chunk.Content)
	}

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", req.Question)
	return b.String()
}

// buildAnalogyPrompt asks for an analogy grounded in the retrieved context.
func buildAnalogyPrompt(req *domain.AskRequest, answer string) string {
	return fmt.Sprintf(
		"Explain the following answer to a %s student with a short, concrete analogy.\n\nQuestion: %s\nAnswer: %s\nAnalogy:",
		req.Grade, req.Question, answer,
	)
}

// buildRealworldPrompt asks for a practical application of the answer.
func buildRealworldPrompt(req *domain.AskRequest, answer string) string {
	return fmt.Sprintf(
		"Give one real-world application of the following answer, suitable for a %s %s student.\n\nQuestion: %s\nAnswer: %s\nReal-world context:",
		req.Grade, req.Subject, req.Question, answer,
	)
}

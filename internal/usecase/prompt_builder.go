package usecase

import (
	"fmt"
	"strings"

	"docchat/internal/domain"
	"docchat/internal/usecase/retrieval"
)

// PromptBuilder assembles the messages sent to the completion service for
// answer generation.
type PromptBuilder interface {
	Build(history []domain.Message, passages []retrieval.ContextPassage) []domain.Message
}

// ContextPromptBuilder appends the hydrated passages to the conversation as a
// numbered context block so the model can cite sources as [1], [2], ...
type ContextPromptBuilder struct{}

// NewContextPromptBuilder creates the default prompt builder.
func NewContextPromptBuilder() PromptBuilder {
	return &ContextPromptBuilder{}
}

func (b *ContextPromptBuilder) Build(history []domain.Message, passages []retrieval.ContextPassage) []domain.Message {
	var sb strings.Builder
	sb.WriteString("Relevant documents:\n\n")
	for _, p := range passages {
		sb.WriteString(fmt.Sprintf("[%d] %s\n\n", p.Index, p.Text))
	}
	sb.WriteString("Answer the user's question using only the documents above. ")
	sb.WriteString("Cite the documents you used by appending their number in square brackets, e.g. [1].")

	messages := make([]domain.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: "user", Content: sb.String()})
	return messages
}

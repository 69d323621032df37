package usecase

import (
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

const answerSystemPrompt = "You are a domain assistant. Use ONLY the provided glossary context to answer. " +
	"If the context does not contain the information, respond with \"I don't know\". " +
	"Cite sources inline using the format [#chunk_index] to reference the context chunks provided."

func buildAnswerMessages(question string, contexts []domain.ContextChunk) []domain.ChatMessage {
	var b strings.Builder
	b.WriteString("Use the glossary context to answer the user's question.\n")
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nContext:\n")
	b.WriteString(RenderContext(contexts))

	return []domain.ChatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

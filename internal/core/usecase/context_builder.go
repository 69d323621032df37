package usecase

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

const noContextSentinel = "(No relevant context retrieved. Respond that you do not know the answer.)"

// SelectChunks keeps chunks at or above threshold, orders them by similarity
// descending (ties keep retrieval order) and returns at most topN of them.
// Unscored chunks rank as similarity 0.
func SelectChunks(chunks []domain.RetrievedChunk, threshold float64, topN int) []domain.RetrievedChunk {
	selected := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Similarity < threshold {
			continue
		}
		selected = append(selected, chunk)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Similarity > selected[j].Similarity
	})
	if topN >= 0 && len(selected) > topN {
		selected = selected[:topN]
	}
	return selected
}

// BuildContext assigns citation indices to chunks in order until budget
// characters are used. Blank chunks are skipped and the chunk that crosses
// the budget is cut to fit and ends the context.
func BuildContext(chunks []domain.RetrievedChunk, budget int) ([]domain.ContextChunk, []domain.AnswerReference) {
	contexts := make([]domain.ContextChunk, 0, len(chunks))
	references := make([]domain.AnswerReference, 0, len(chunks))
	remaining := budget

	for _, chunk := range chunks {
		if remaining <= 0 {
			break
		}
		text := strings.TrimSpace(chunk.Content)
		if text == "" {
			continue
		}

		length := utf8.RuneCountInString(text)
		if length > remaining {
			text = truncateRunes(text, remaining)
			length = remaining
		}

		index := len(contexts) + 1
		ref := domain.AnswerReference{
			ChunkIndex:   index,
			ChunkID:      chunk.ID,
			DocumentName: chunk.DocumentName,
		}
		if !chunk.Unscored {
			similarity := chunk.Similarity
			ref.Similarity = &similarity
		}
		contexts = append(contexts, domain.ContextChunk{Index: index, Text: text})
		references = append(references, ref)
		remaining -= length
	}
	return contexts, references
}

// RenderContext produces the context block given to the model.
func RenderContext(contexts []domain.ContextChunk) string {
	if len(contexts) == 0 {
		return noContextSentinel
	}
	lines := make([]string, 0, len(contexts))
	for _, chunk := range contexts {
		lines = append(lines, fmt.Sprintf("[#%d] %s", chunk.Index, chunk.Text))
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

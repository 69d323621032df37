package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

// DescribeError renders err as the message returned to API and tool callers.
func DescribeError(err error) string {
	var statusErr *domain.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return FormatUpstreamStatus(statusErr)
	}
	var detailed interface{ Detail() string }
	if errors.As(err, &detailed) {
		return detailed.Detail()
	}
	return err.Error()
}

// FormatUpstreamStatus prefers a detail or message field from a JSON body,
// then the raw body, then the reason phrase.
func FormatUpstreamStatus(statusErr *domain.UpstreamStatusError) string {
	detail := strings.TrimSpace(statusDetail(statusErr.Body))
	if detail == "" {
		detail = http.StatusText(statusErr.StatusCode)
	}
	if detail == "" {
		detail = statusErr.Status
	}
	return strings.TrimSpace(fmt.Sprintf("Upstream request failed with status %d: %s", statusErr.StatusCode, detail))
}

func statusDetail(body []byte) string {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}

	object, ok := payload.(map[string]any)
	if !ok {
		if text, isString := payload.(string); isString {
			return text
		}
		return compactJSON(payload)
	}

	for _, key := range []string{"detail", "message"} {
		value, present := object[key]
		if !present || isEmptyJSONValue(value) {
			continue
		}
		switch v := value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return compactJSON(v)
		}
	}
	return compactJSON(object)
}

func isEmptyJSONValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func compactJSON(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(raw)
}

func glossaryListFromPayload(payload map[string]any) *domain.GlossaryListResult {
	rawItems, _ := payload["items"].([]any)
	items := make([]domain.GlossarySummary, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, glossarySummaryFromPayload(item))
	}
	return &domain.GlossaryListResult{
		Items: items,
		Total: intField(payload, "total", len(items)),
	}
}

func glossarySummaryFromPayload(item map[string]any) domain.GlossarySummary {
	id, _ := item["dataset_id"].(string)
	if id == "" {
		id, _ = item["id"].(string)
	}
	name, _ := item["name"].(string)
	return domain.GlossarySummary{
		DatasetID:     id,
		Name:          name,
		Description:   optionalString(item, "description"),
		ChunkMethod:   optionalString(item, "chunk_method"),
		DocumentCount: optionalInt(item, "document_count"),
		ChunkCount:    optionalInt(item, "chunk_count"),
	}
}

func chunkResultsFromPayload(payload map[string]any) ([]domain.RetrievalChunkResult, int) {
	rawChunks, _ := payload["chunks"].([]any)
	results := make([]domain.RetrievalChunkResult, 0, len(rawChunks))
	for _, raw := range rawChunks {
		chunk, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := chunk["chunk_id"].(string)
		if id == "" {
			id, _ = chunk["id"].(string)
		}
		content, _ := chunk["content"].(string)
		results = append(results, domain.RetrievalChunkResult{
			ChunkID:          id,
			Content:          content,
			Similarity:       optionalFloat(chunk, "similarity"),
			DocumentID:       optionalString(chunk, "document_id"),
			DocumentName:     optionalString(chunk, "document_name"),
			Highlight:        optionalString(chunk, "highlight"),
			VectorSimilarity: optionalFloat(chunk, "vector_similarity"),
			TermSimilarity:   optionalFloat(chunk, "term_similarity"),
		})
	}
	return results, intField(payload, "total", len(results))
}

func optionalString(item map[string]any, key string) *string {
	value, ok := item[key].(string)
	if !ok {
		return nil
	}
	return &value
}

func optionalFloat(item map[string]any, key string) *float64 {
	value, ok := item[key].(float64)
	if !ok {
		return nil
	}
	return &value
}

func optionalInt(item map[string]any, key string) *int {
	value, ok := item[key].(float64)
	if !ok {
		return nil
	}
	n := int(value)
	return &n
}

func intField(payload map[string]any, key string, fallback int) int {
	if value, ok := payload[key].(float64); ok {
		return int(value)
	}
	return fallback
}

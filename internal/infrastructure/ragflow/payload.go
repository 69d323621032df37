package ragflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

type envelope struct {
	Code    int             `json:"code"`
	Message any             `json:"message"`
	Data    json.RawMessage `json:"data"`
	Total   *int            `json:"total"`
}

func (e *envelope) message() string {
	switch msg := e.Message.(type) {
	case nil:
		return "RAGFlow request failed."
	case string:
		if strings.TrimSpace(msg) == "" {
			return "RAGFlow request failed."
		}
		return msg
	default:
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Sprint(msg)
		}
		return string(raw)
	}
}

func (e *envelope) decodeData(out any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode ragflow data: %w", err)
	}
	return nil
}

type datasetItem struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	ChunkMethod   *string `json:"chunk_method"`
	DocumentCount *int    `json:"document_count"`
	ChunkCount    *int    `json:"chunk_count"`
}

func (d datasetItem) toDomain() domain.Dataset {
	out := domain.Dataset{
		ID:            d.ID,
		Name:          d.Name,
		DocumentCount: d.DocumentCount,
		ChunkCount:    d.ChunkCount,
	}
	if d.Description != nil {
		out.Description = *d.Description
	}
	if d.ChunkMethod != nil {
		out.ChunkMethod = *d.ChunkMethod
	}
	return out
}

type documentItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Run  string `json:"run"`
}

type chunkItem struct {
	ID               string   `json:"id"`
	Content          string   `json:"content"`
	Similarity       *float64 `json:"similarity"`
	DocumentID       string   `json:"document_id"`
	DocumentName     string   `json:"document_name"`
	DocumentKeyword  string   `json:"document_keyword"`
	DocnmKwd         string   `json:"docnm_kwd"`
	Highlight        any      `json:"highlight"`
	VectorSimilarity *float64 `json:"vector_similarity"`
	TermSimilarity   *float64 `json:"term_similarity"`
}

// documentName resolves the name across the field variants RAGFlow versions emit.
func (c chunkItem) documentName() string {
	for _, name := range []string{c.DocumentName, c.DocumentKeyword, c.DocnmKwd} {
		if name != "" {
			return name
		}
	}
	return ""
}

func (c chunkItem) highlight() string {
	switch h := c.Highlight.(type) {
	case nil:
		return ""
	case string:
		return h
	default:
		return fmt.Sprint(h)
	}
}

type docAggItem struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Count   int    `json:"count"`
}

type retrievalData struct {
	Chunks  []chunkItem  `json:"chunks"`
	DocAggs []docAggItem `json:"doc_aggs"`
	Total   *int         `json:"total"`
}

func (r retrievalData) toDomain() *domain.RetrievalResult {
	out := &domain.RetrievalResult{
		Chunks:  make([]domain.RetrievedChunk, 0, len(r.Chunks)),
		DocAggs: make([]domain.DocAgg, 0, len(r.DocAggs)),
	}
	for _, c := range r.Chunks {
		var similarity float64
		if c.Similarity != nil {
			similarity = *c.Similarity
		}
		out.Chunks = append(out.Chunks, domain.RetrievedChunk{
			ID:               c.ID,
			Content:          c.Content,
			Similarity:       similarity,
			Unscored:         c.Similarity == nil,
			DocumentID:       c.DocumentID,
			DocumentName:     c.documentName(),
			Highlight:        c.highlight(),
			VectorSimilarity: c.VectorSimilarity,
			TermSimilarity:   c.TermSimilarity,
		})
	}
	for _, agg := range r.DocAggs {
		out.DocAggs = append(out.DocAggs, domain.DocAgg{DocID: agg.DocID, DocName: agg.DocName, Count: agg.Count})
	}
	out.Total = len(out.Chunks)
	if r.Total != nil {
		out.Total = *r.Total
	}
	return out
}

package domain

// GlossarySummary is the tool-facing view of a glossary listing entry.
type GlossarySummary struct {
	DatasetID     string  `json:"dataset_id"`
	Name          string  `json:"name"`
	Description   *string `json:"description,omitempty"`
	ChunkMethod   *string `json:"chunk_method,omitempty"`
	DocumentCount *int    `json:"document_count,omitempty"`
	ChunkCount    *int    `json:"chunk_count,omitempty"`
}

type GlossaryListResult struct {
	Items []GlossarySummary `json:"items"`
	Total int               `json:"total"`
}

type RetrievalChunkResult struct {
	ChunkID          string   `json:"chunk_id"`
	Content          string   `json:"content"`
	Similarity       *float64 `json:"similarity,omitempty"`
	DocumentID       *string  `json:"document_id,omitempty"`
	DocumentName     *string  `json:"document_name,omitempty"`
	Highlight        *string  `json:"highlight,omitempty"`
	VectorSimilarity *float64 `json:"vector_similarity,omitempty"`
	TermSimilarity   *float64 `json:"term_similarity,omitempty"`
}

type SearchTermsResult struct {
	DatasetID string                 `json:"dataset_id"`
	Query     string                 `json:"query"`
	Total     int                    `json:"total"`
	Results   []RetrievalChunkResult `json:"results"`
}

type RetrieveDefinitionsResult struct {
	DatasetID string                 `json:"dataset_id"`
	Terms     []string               `json:"terms"`
	Total     int                    `json:"total"`
	Results   []RetrievalChunkResult `json:"results"`
}

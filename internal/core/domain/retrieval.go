package domain

const MaxTopK = 1024

type RetrievalQuery struct {
	DatasetID              string  `json:"dataset_id"`
	Question               string  `json:"question"`
	TopK                   int     `json:"top_k"`
	SimilarityThreshold    float64 `json:"similarity_threshold"`
	VectorSimilarityWeight float64 `json:"vector_similarity_weight"`
	Keyword                bool    `json:"keyword"`
	Highlight              bool    `json:"highlight"`
}

// RetrievedChunk is one passage returned by the retrieval backend.
type RetrievedChunk struct {
	ID               string   `json:"id"`
	Content          string   `json:"content"`
	Similarity       float64  `json:"similarity"`
	DocumentID       string   `json:"document_id,omitempty"`
	DocumentName     string   `json:"document_name,omitempty"`
	Highlight        string   `json:"highlight,omitempty"`
	VectorSimilarity *float64 `json:"vector_similarity,omitempty"`
	TermSimilarity   *float64 `json:"term_similarity,omitempty"`

	// Unscored marks a chunk sent without a similarity. Similarity is 0 then.
	Unscored bool `json:"-"`
}

type DocAgg struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Count   int    `json:"count"`
}

type RetrievalResult struct {
	Chunks  []RetrievedChunk `json:"chunks"`
	DocAggs []DocAgg         `json:"doc_aggs"`
	Total   int              `json:"total"`
}

// ContextChunk is a passage selected into an answer prompt.
// Index is the 1-based citation number in selection order.
type ContextChunk struct {
	Index int
	Text  string
}

type AnswerReference struct {
	ChunkIndex   int      `json:"chunk_index"`
	ChunkID      string   `json:"chunk_id"`
	DocumentName string   `json:"document_name,omitempty"`
	Similarity   *float64 `json:"similarity,omitempty"`
}

type AnswerRequest struct {
	DatasetID       string `json:"dataset_id"`
	Question        string `json:"question"`
	TopN            int    `json:"top_n"`
	MaxContextChars int    `json:"max_context_chars"`
	Model           string `json:"model,omitempty"`
}

type Answer struct {
	Answer     string            `json:"answer"`
	References []AnswerReference `json:"references"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

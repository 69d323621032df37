package domain

// Dataset is a glossary collection held by the retrieval backend.
type Dataset struct {
	ID            string `json:"dataset_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ChunkMethod   string `json:"chunk_method,omitempty"`
	DocumentCount *int   `json:"document_count,omitempty"`
	ChunkCount    *int   `json:"chunk_count,omitempty"`
}

type DatasetList struct {
	Items []Dataset `json:"items"`
	Total int       `json:"total"`
}

type DatasetSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ChunkMethod string `json:"chunk_method,omitempty"`
}

// Document is an uploaded source file inside a dataset.
type Document struct {
	ID     string `json:"document_id"`
	Name   string `json:"document_name"`
	Status string `json:"status,omitempty"`
}

type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type ParseJob struct {
	DatasetID   string   `json:"dataset_id"`
	DocumentIDs []string `json:"document_ids"`
}

type TermEntry struct {
	Term       string   `json:"term"`
	Definition string   `json:"definition"`
	Synonyms   []string `json:"synonyms,omitempty"`
}

type TermIngestion struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	TermCount    int    `json:"term_count"`
}

type FileIngestion struct {
	Documents []Document `json:"documents"`
}

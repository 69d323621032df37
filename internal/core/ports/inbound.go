package ports

import (
	"context"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

// GlossaryService is the inbound contract for glossary dataset management and retrieval.
type GlossaryService interface {
	EnsureGlossary(ctx context.Context, spec domain.DatasetSpec) (*domain.Dataset, error)
	ListGlossaries(ctx context.Context, name string) (*domain.DatasetList, error)
	IngestTerms(ctx context.Context, datasetID string, terms []domain.TermEntry) (*domain.TermIngestion, error)
	IngestFiles(ctx context.Context, datasetID string, files []domain.UploadFile) (*domain.FileIngestion, error)
	Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error)
}

// AnswerService is the inbound contract for grounded answer generation.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
}

// ParseJobProcessor handles parse jobs delivered by the queue.
type ParseJobProcessor interface {
	ProcessParseJob(ctx context.Context, job domain.ParseJob) error
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

// GlossaryUseCase manages glossary datasets held by the retrieval backend.
type GlossaryUseCase struct {
	backend ports.RetrievalBackend
	parser  ports.ParseDispatcher
	now     func() time.Time
}

func NewGlossaryUseCase(backend ports.RetrievalBackend, parser ports.ParseDispatcher) *GlossaryUseCase {
	return &GlossaryUseCase{
		backend: backend,
		parser:  parser,
		now:     time.Now,
	}
}

// EnsureGlossary returns the dataset whose name matches case-insensitively,
// creating it when none exists.
func (uc *GlossaryUseCase) EnsureGlossary(ctx context.Context, spec domain.DatasetSpec) (*domain.Dataset, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return nil, newDetailError(domain.ErrInvalidInput, "ensure glossary", "name is required")
	}
	switch spec.ChunkMethod {
	case "", "naive", "manual":
	default:
		return nil, newDetailError(domain.ErrInvalidInput, "ensure glossary", "unsupported chunk_method %q", spec.ChunkMethod)
	}

	listing, err := uc.backend.ListDatasets(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	for _, item := range listing.Items {
		if strings.EqualFold(item.Name, spec.Name) {
			dataset := item
			return &dataset, nil
		}
	}

	dataset, err := uc.backend.CreateDataset(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	slog.Info("glossary_created",
		"request_id", logging.RequestIDFromContext(ctx),
		"dataset_id", dataset.ID,
		"name", dataset.Name,
	)
	return dataset, nil
}

func (uc *GlossaryUseCase) ListGlossaries(ctx context.Context, name string) (*domain.DatasetList, error) {
	listing, err := uc.backend.ListDatasets(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	if listing.Items == nil {
		listing.Items = []domain.Dataset{}
	}
	return listing, nil
}

// IngestTerms uploads the terms as one text document and schedules parsing.
func (uc *GlossaryUseCase) IngestTerms(ctx context.Context, datasetID string, terms []domain.TermEntry) (*domain.TermIngestion, error) {
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return nil, newDetailError(domain.ErrInvalidInput, "ingest terms", "dataset_id is required")
	}
	if len(terms) == 0 {
		return nil, newDetailError(domain.ErrInvalidInput, "ingest terms", "No terms provided.")
	}
	for i, term := range terms {
		if strings.TrimSpace(term.Term) == "" || strings.TrimSpace(term.Definition) == "" {
			return nil, newDetailError(domain.ErrInvalidInput, "ingest terms", "term %d requires both term and definition", i+1)
		}
	}

	filename := fmt.Sprintf("glossary-%s.txt", uc.now().UTC().Format("20060102150405"))
	docs, err := uc.backend.UploadDocuments(ctx, datasetID, []domain.UploadFile{{
		Name:        filename,
		ContentType: "text/plain",
		Data:        []byte(RenderTermBlocks(terms)),
	}})
	if err != nil {
		return nil, fmt.Errorf("upload glossary document: %w", err)
	}
	if len(docs) == 0 {
		return nil, newDetailError(domain.ErrUpstream, "ingest terms", "RAGFlow did not return document metadata.")
	}
	doc := docs[0]
	if doc.ID == "" {
		return nil, newDetailError(domain.ErrUpstream, "ingest terms", "RAGFlow response missing document ID.")
	}

	if err := uc.parser.DispatchParse(ctx, domain.ParseJob{DatasetID: datasetID, DocumentIDs: []string{doc.ID}}); err != nil {
		return nil, fmt.Errorf("dispatch parse: %w", err)
	}

	name := doc.Name
	if name == "" {
		name = filename
	}
	return &domain.TermIngestion{
		DocumentID:   doc.ID,
		DocumentName: name,
		TermCount:    len(terms),
	}, nil
}

func (uc *GlossaryUseCase) Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	query.DatasetID = strings.TrimSpace(query.DatasetID)
	if query.DatasetID == "" {
		return nil, newDetailError(domain.ErrInvalidInput, "retrieve", "dataset_id is required")
	}
	if strings.TrimSpace(query.Question) == "" {
		return nil, newDetailError(domain.ErrInvalidInput, "retrieve", "question is required")
	}
	if query.TopK < 1 || query.TopK > domain.MaxTopK {
		return nil, newDetailError(domain.ErrInvalidInput, "retrieve", "top_k must be between 1 and %d", domain.MaxTopK)
	}
	if !unitInterval(query.SimilarityThreshold) || !unitInterval(query.VectorSimilarityWeight) {
		return nil, newDetailError(domain.ErrInvalidInput, "retrieve", "similarity_threshold and vector_similarity_weight must be within [0, 1]")
	}

	result, err := uc.backend.Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}
	return result, nil
}

// ProcessParseJob triggers parsing for a job delivered by the queue.
func (uc *GlossaryUseCase) ProcessParseJob(ctx context.Context, job domain.ParseJob) error {
	if strings.TrimSpace(job.DatasetID) == "" || len(job.DocumentIDs) == 0 {
		return newDetailError(domain.ErrInvalidInput, "process parse job", "dataset id and document ids are required")
	}
	if err := uc.backend.ParseDocuments(ctx, job.DatasetID, job.DocumentIDs); err != nil {
		return fmt.Errorf("parse documents: %w", err)
	}
	return nil
}

// RenderTermBlocks renders terms in the block format the glossary parser chunks on.
func RenderTermBlocks(terms []domain.TermEntry) string {
	var b strings.Builder
	for _, term := range terms {
		b.WriteString("Term: ")
		b.WriteString(strings.TrimSpace(term.Term))
		b.WriteString("\nDefinition: ")
		b.WriteString(strings.TrimSpace(term.Definition))
		b.WriteString("\nSynonyms: ")
		b.WriteString(strings.Join(term.Synonyms, ", "))
		b.WriteString("\n---\n")
	}
	return b.String()
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// DirectParseDispatcher triggers parsing inline when no queue is configured.
type DirectParseDispatcher struct {
	backend ports.RetrievalBackend
}

func NewDirectParseDispatcher(backend ports.RetrievalBackend) *DirectParseDispatcher {
	return &DirectParseDispatcher{backend: backend}
}

func (d *DirectParseDispatcher) DispatchParse(ctx context.Context, job domain.ParseJob) error {
	return d.backend.ParseDocuments(ctx, job.DatasetID, job.DocumentIDs)
}

package ports

import (
	"context"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

// RetrievalBackend is the upstream document/retrieval service.
type RetrievalBackend interface {
	ListDatasets(ctx context.Context, name string) (*domain.DatasetList, error)
	CreateDataset(ctx context.Context, spec domain.DatasetSpec) (*domain.Dataset, error)
	UploadDocuments(ctx context.Context, datasetID string, files []domain.UploadFile) ([]domain.Document, error)
	ParseDocuments(ctx context.Context, datasetID string, documentIDs []string) error
	Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error)
}

// CompletionBackend generates chat completions.
type CompletionBackend interface {
	Chat(ctx context.Context, messages []domain.ChatMessage, model string) (string, error)
}

// ParseDispatcher hands freshly uploaded documents to the parser.
type ParseDispatcher interface {
	DispatchParse(ctx context.Context, job domain.ParseJob) error
}

// ParseQueue publishes/consumes parse jobs.
type ParseQueue interface {
	PublishParseRequested(ctx context.Context, job domain.ParseJob) error
	SubscribeParseRequested(ctx context.Context, handler func(context.Context, domain.ParseJob) error) error
}

// GlossaryAPI is the gateway HTTP API as seen by the tool server.
// Payloads are returned as decoded JSON objects.
type GlossaryAPI interface {
	ListGlossaries(ctx context.Context, requestID, name string) (map[string]any, error)
	// FetchGlossary returns nil without error when the glossary does not exist.
	FetchGlossary(ctx context.Context, requestID, datasetID string) (map[string]any, error)
	RetrieveGlossary(ctx context.Context, requestID string, query domain.RetrievalQuery) (map[string]any, error)
}

// RateLimiter admits or rejects one request for a key.
type RateLimiter interface {
	Consume(key string) error
}

// AuditSink records tool invocations.
type AuditSink interface {
	Record(ctx context.Context, event domain.ToolInvocationAudit)
}

// ToolMetrics observes tool invocations.
type ToolMetrics interface {
	ObserveToolInvocation(tool string, status domain.InvocationStatus, duration time.Duration)
	ObserveToolRateLimited(tool string)
}

// Caller identifies the client behind a tool invocation.
type Caller interface {
	ClientID() string
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/validation"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

const (
	ToolListGlossaries      = "list_glossaries"
	ToolGetGlossary         = "get_glossary"
	ToolSearchTerms         = "search_terms"
	ToolRetrieveDefinitions = "retrieve_definitions"
	ToolSearchGlossary      = "search_glossary"
	ToolRetrieveDocs        = "retrieve_docs"
)

const (
	ToolsetCatalog   = "catalog"
	ToolsetRetrieval = "retrieval"
)

// ToolsFor lists the tool names exposed by a toolset.
func ToolsFor(toolset string) ([]string, error) {
	switch toolset {
	case ToolsetCatalog:
		return []string{ToolListGlossaries, ToolGetGlossary, ToolSearchTerms, ToolRetrieveDefinitions}, nil
	case ToolsetRetrieval:
		return []string{ToolSearchGlossary, ToolRetrieveDocs}, nil
	default:
		return nil, domain.WrapError(domain.ErrConfig, "toolset", fmt.Errorf("unknown toolset %q", toolset))
	}
}

type ToolGatewaySettings struct {
	SearchTopK             int
	DefinitionTopK         int
	SimilarityThreshold    float64
	VectorSimilarityWeight float64
}

// ToolError is the caller-facing failure of a tool invocation.
type ToolError struct {
	Tool      string
	RequestID string
	Message   string
	Err       error
}

func (e *ToolError) Error() string { return e.Message }
func (e *ToolError) Unwrap() error { return e.Err }

// detailError carries a caller-facing message together with its kind.
type detailError struct {
	op     string
	kind   error
	detail string
}

func newDetailError(kind error, op, format string, args ...any) error {
	return &detailError{op: op, kind: kind, detail: fmt.Sprintf(format, args...)}
}

func (e *detailError) Error() string {
	if e.op == "" {
		return e.detail
	}
	return e.op + ": " + e.detail
}

func (e *detailError) Unwrap() error  { return e.kind }
func (e *detailError) Detail() string { return e.detail }

type SearchInput struct {
	DatasetID string
	Query     string
	// TopK is nil when the caller did not supply one.
	TopK *int
}

type DefinitionsInput struct {
	DatasetID string
	Terms     []string
	TopK      *int
}

type RetrieveDocsInput struct {
	DatasetID string
	Query     string
	TopK      *int
	Keyword   bool
	Highlight bool
}

// ToolGatewayUseCase runs read-only glossary tools behind one rate-limited,
// validated and audited scaffold.
type ToolGatewayUseCase struct {
	api       ports.GlossaryAPI
	limiter   ports.RateLimiter
	validator *validation.Validator
	audit     ports.AuditSink
	metrics   ports.ToolMetrics
	settings  ToolGatewaySettings

	newRequestID func() string
	now          func() time.Time
}

func NewToolGatewayUseCase(
	api ports.GlossaryAPI,
	limiter ports.RateLimiter,
	validator *validation.Validator,
	audit ports.AuditSink,
	metrics ports.ToolMetrics,
	settings ToolGatewaySettings,
) *ToolGatewayUseCase {
	return &ToolGatewayUseCase{
		api:          api,
		limiter:      limiter,
		validator:    validator,
		audit:        audit,
		metrics:      metrics,
		settings:     settings,
		newRequestID: newCorrelationID,
		now:          time.Now,
	}
}

func newCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type toolCall[R any] struct {
	tool string
	// arguments summarizes the raw input; it is recorded when validation fails.
	arguments map[string]any
	// validate returns the argument summary of the validated input.
	validate func() (map[string]any, error)
	invoke   func(ctx context.Context, requestID string) (R, error)
}

func run[R any](ctx context.Context, gw *ToolGatewayUseCase, caller ports.Caller, call toolCall[R]) (R, error) {
	var zero R
	requestID := gw.newRequestID()
	start := gw.now()
	args := call.arguments

	fail := func(err error, message string) (R, error) {
		gw.record(ctx, call.tool, requestID, caller, domain.InvocationError, start, args, message)
		return zero, &ToolError{Tool: call.tool, RequestID: requestID, Message: message, Err: err}
	}

	if err := gw.limiter.Consume(call.tool); err != nil {
		if gw.metrics != nil && domain.IsKind(err, domain.ErrRateLimited) {
			gw.metrics.ObserveToolRateLimited(call.tool)
		}
		return fail(err, rateLimitMessage(call.tool, err))
	}

	validated, err := call.validate()
	if err != nil {
		return fail(err, DescribeError(err))
	}
	if validated != nil {
		args = validated
	}

	result, err := call.invoke(logging.ContextWithRequestID(ctx, requestID), requestID)
	if err != nil {
		return fail(err, DescribeError(err))
	}
	gw.record(ctx, call.tool, requestID, caller, domain.InvocationSuccess, start, args, "")
	return result, nil
}

func (gw *ToolGatewayUseCase) record(
	ctx context.Context,
	tool, requestID string,
	caller ports.Caller,
	status domain.InvocationStatus,
	start time.Time,
	args map[string]any,
	message string,
) {
	duration := gw.now().Sub(start)
	clientID := ""
	if caller != nil {
		clientID = caller.ClientID()
	}
	if gw.audit != nil {
		gw.audit.Record(ctx, domain.ToolInvocationAudit{
			Tool:      tool,
			RequestID: requestID,
			ClientID:  clientID,
			Status:    status,
			Duration:  duration,
			Arguments: args,
			Error:     message,
			Timestamp: gw.now().UTC(),
		})
	}
	if gw.metrics != nil {
		gw.metrics.ObserveToolInvocation(tool, status, duration)
	}
}

func rateLimitMessage(tool string, err error) string {
	var limited *domain.RateLimitError
	if errors.As(err, &limited) {
		return fmt.Sprintf("Rate limit exceeded for %s. Try again in %.1f seconds.", tool, limited.RetryAfter.Seconds())
	}
	if domain.IsKind(err, domain.ErrRateLimited) {
		return fmt.Sprintf("Rate limit exceeded for %s.", tool)
	}
	slog.Error("tool_rate_limiter_failed", "tool", tool, "error", err)
	return fmt.Sprintf("Tool '%s' is not registered.", tool)
}

func (gw *ToolGatewayUseCase) topK(value *int, fallback int) (int, error) {
	if value == nil {
		return gw.validator.TopK(fallback)
	}
	return gw.validator.TopK(*value)
}

func (gw *ToolGatewayUseCase) retrievalQuery(datasetID, question string, topK int, keyword, highlight bool) domain.RetrievalQuery {
	return domain.RetrievalQuery{
		DatasetID:              datasetID,
		Question:               question,
		TopK:                   topK,
		SimilarityThreshold:    gw.settings.SimilarityThreshold,
		VectorSimilarityWeight: gw.settings.VectorSimilarityWeight,
		Keyword:                keyword,
		Highlight:              highlight,
	}
}

func (gw *ToolGatewayUseCase) ListGlossaries(ctx context.Context, caller ports.Caller, name string) (*domain.GlossaryListResult, error) {
	name = strings.TrimSpace(name)
	args := map[string]any{"name": name}
	return run(ctx, gw, caller, toolCall[*domain.GlossaryListResult]{
		tool:      ToolListGlossaries,
		arguments: args,
		validate: func() (map[string]any, error) {
			if utf8.RuneCountInString(name) > gw.validator.Rules().MaxQueryLength {
				return nil, &validation.Error{Field: "name", Message: fmt.Sprintf("Name filter exceeds maximum length of %d characters.", gw.validator.Rules().MaxQueryLength)}
			}
			return args, nil
		},
		invoke: func(ctx context.Context, requestID string) (*domain.GlossaryListResult, error) {
			payload, err := gw.api.ListGlossaries(ctx, requestID, name)
			if err != nil {
				return nil, err
			}
			return glossaryListFromPayload(payload), nil
		},
	})
}

func (gw *ToolGatewayUseCase) GetGlossary(ctx context.Context, caller ports.Caller, datasetID string) (*domain.GlossarySummary, error) {
	var id string
	return run(ctx, gw, caller, toolCall[*domain.GlossarySummary]{
		tool:      ToolGetGlossary,
		arguments: map[string]any{"dataset_id": datasetID},
		validate: func() (map[string]any, error) {
			var err error
			if id, err = gw.validator.DatasetID(datasetID); err != nil {
				return nil, err
			}
			return map[string]any{"dataset_id": id}, nil
		},
		invoke: func(ctx context.Context, requestID string) (*domain.GlossarySummary, error) {
			payload, err := gw.api.FetchGlossary(ctx, requestID, id)
			if err != nil {
				return nil, err
			}
			if payload == nil {
				return nil, newDetailError(domain.ErrNotFound, "", "Glossary '%s' was not found.", id)
			}
			summary := glossarySummaryFromPayload(payload)
			return &summary, nil
		},
	})
}

func (gw *ToolGatewayUseCase) SearchTerms(ctx context.Context, caller ports.Caller, in SearchInput) (*domain.SearchTermsResult, error) {
	var query domain.RetrievalQuery
	return run(ctx, gw, caller, toolCall[*domain.SearchTermsResult]{
		tool:      ToolSearchTerms,
		arguments: rawSearchArguments(in.DatasetID, in.Query, in.TopK),
		validate: func() (map[string]any, error) {
			var err error
			query, err = gw.validateSearch(in.DatasetID, in.Query, in.TopK, gw.settings.SearchTopK, false, true)
			if err != nil {
				return nil, err
			}
			return searchArguments(query), nil
		},
		invoke: func(ctx context.Context, requestID string) (*domain.SearchTermsResult, error) {
			payload, err := gw.api.RetrieveGlossary(ctx, requestID, query)
			if err != nil {
				return nil, err
			}
			results, total := chunkResultsFromPayload(payload)
			return &domain.SearchTermsResult{
				DatasetID: query.DatasetID,
				Query:     query.Question,
				Total:     total,
				Results:   results,
			}, nil
		},
	})
}

// RetrieveDefinitions looks up several terms in one keyword-weighted retrieval.
func (gw *ToolGatewayUseCase) RetrieveDefinitions(ctx context.Context, caller ports.Caller, in DefinitionsInput) (*domain.RetrieveDefinitionsResult, error) {
	var (
		datasetID string
		terms     []string
		query     domain.RetrievalQuery
	)
	return run(ctx, gw, caller, toolCall[*domain.RetrieveDefinitionsResult]{
		tool: ToolRetrieveDefinitions,
		arguments: map[string]any{
			"dataset_id": in.DatasetID,
			"term_count": len(in.Terms),
		},
		validate: func() (map[string]any, error) {
			var err error
			if datasetID, err = gw.validator.DatasetID(in.DatasetID); err != nil {
				return nil, err
			}
			if terms, err = gw.validator.Terms(in.Terms); err != nil {
				return nil, err
			}
			topK, err := gw.topK(in.TopK, gw.settings.DefinitionTopK)
			if err != nil {
				return nil, err
			}
			query = gw.retrievalQuery(datasetID, definitionsQuestion(terms), topK, true, false)
			return map[string]any{
				"dataset_id": datasetID,
				"term_count": len(terms),
				"top_k":      topK,
			}, nil
		},
		invoke: func(ctx context.Context, requestID string) (*domain.RetrieveDefinitionsResult, error) {
			payload, err := gw.api.RetrieveGlossary(ctx, requestID, query)
			if err != nil {
				return nil, err
			}
			results, total := chunkResultsFromPayload(payload)
			return &domain.RetrieveDefinitionsResult{
				DatasetID: datasetID,
				Terms:     terms,
				Total:     total,
				Results:   results,
			}, nil
		},
	})
}

// SearchGlossary returns the upstream retrieval payload unchanged.
func (gw *ToolGatewayUseCase) SearchGlossary(ctx context.Context, caller ports.Caller, in SearchInput) (map[string]any, error) {
	var query domain.RetrievalQuery
	return run(ctx, gw, caller, toolCall[map[string]any]{
		tool:      ToolSearchGlossary,
		arguments: rawSearchArguments(in.DatasetID, in.Query, in.TopK),
		validate: func() (map[string]any, error) {
			var err error
			query, err = gw.validateSearch(in.DatasetID, in.Query, in.TopK, gw.settings.SearchTopK, false, true)
			if err != nil {
				return nil, err
			}
			return searchArguments(query), nil
		},
		invoke: func(ctx context.Context, requestID string) (map[string]any, error) {
			return gw.api.RetrieveGlossary(ctx, requestID, query)
		},
	})
}

func (gw *ToolGatewayUseCase) RetrieveDocs(ctx context.Context, caller ports.Caller, in RetrieveDocsInput) (map[string]any, error) {
	var query domain.RetrievalQuery
	return run(ctx, gw, caller, toolCall[map[string]any]{
		tool:      ToolRetrieveDocs,
		arguments: rawSearchArguments(in.DatasetID, in.Query, in.TopK),
		validate: func() (map[string]any, error) {
			var err error
			query, err = gw.validateSearch(in.DatasetID, in.Query, in.TopK, gw.settings.SearchTopK, in.Keyword, in.Highlight)
			if err != nil {
				return nil, err
			}
			return searchArguments(query), nil
		},
		invoke: func(ctx context.Context, requestID string) (map[string]any, error) {
			return gw.api.RetrieveGlossary(ctx, requestID, query)
		},
	})
}

func (gw *ToolGatewayUseCase) validateSearch(datasetID, text string, topK *int, fallback int, keyword, highlight bool) (domain.RetrievalQuery, error) {
	id, err := gw.validator.DatasetID(datasetID)
	if err != nil {
		return domain.RetrievalQuery{}, err
	}
	question, err := gw.validator.Query(text)
	if err != nil {
		return domain.RetrievalQuery{}, err
	}
	k, err := gw.topK(topK, fallback)
	if err != nil {
		return domain.RetrievalQuery{}, err
	}
	return gw.retrievalQuery(id, question, k, keyword, highlight), nil
}

func rawSearchArguments(datasetID, query string, topK *int) map[string]any {
	args := map[string]any{
		"dataset_id":   datasetID,
		"query_length": utf8.RuneCountInString(query),
	}
	if topK != nil {
		args["top_k"] = *topK
	}
	return args
}

func searchArguments(query domain.RetrievalQuery) map[string]any {
	return map[string]any{
		"dataset_id":   query.DatasetID,
		"query_length": utf8.RuneCountInString(query.Question),
		"top_k":        query.TopK,
		"keyword":      query.Keyword,
		"highlight":    query.Highlight,
	}
}

func definitionsQuestion(terms []string) string {
	var b strings.Builder
	b.WriteString("Provide glossary definitions for the following terms:")
	for _, term := range terms {
		b.WriteString("\n- ")
		b.WriteString(term)
	}
	return b.String()
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/validation"
)

type glossaryAPIFake struct {
	listPayload     map[string]any
	fetchPayload    map[string]any
	retrievePayload map[string]any
	err             error

	requestIDs []string
	queries    []domain.RetrievalQuery
}

func (f *glossaryAPIFake) ListGlossaries(_ context.Context, requestID, _ string) (map[string]any, error) {
	f.requestIDs = append(f.requestIDs, requestID)
	return f.listPayload, f.err
}

func (f *glossaryAPIFake) FetchGlossary(_ context.Context, requestID, _ string) (map[string]any, error) {
	f.requestIDs = append(f.requestIDs, requestID)
	return f.fetchPayload, f.err
}

func (f *glossaryAPIFake) RetrieveGlossary(_ context.Context, requestID string, query domain.RetrievalQuery) (map[string]any, error) {
	f.requestIDs = append(f.requestIDs, requestID)
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.retrievePayload, nil
}

type limiterFake struct {
	err   error
	calls []string
}

func (f *limiterFake) Consume(key string) error {
	f.calls = append(f.calls, key)
	return f.err
}

type auditFake struct {
	events []domain.ToolInvocationAudit
}

func (f *auditFake) Record(_ context.Context, event domain.ToolInvocationAudit) {
	f.events = append(f.events, event)
}

type toolMetricsFake struct {
	invocations map[string]int
	limited     int
}

func (f *toolMetricsFake) ObserveToolInvocation(tool string, status domain.InvocationStatus, _ time.Duration) {
	if f.invocations == nil {
		f.invocations = make(map[string]int)
	}
	f.invocations[tool+":"+string(status)]++
}

func (f *toolMetricsFake) ObserveToolRateLimited(string) {
	f.limited++
}

type callerFake string

func (c callerFake) ClientID() string { return string(c) }

func newGatewayForTest(t *testing.T, api *glossaryAPIFake, limiter *limiterFake) (*ToolGatewayUseCase, *auditFake, *toolMetricsFake) {
	t.Helper()
	validator, err := validation.New(validation.DefaultRules())
	if err != nil {
		t.Fatalf("validation.New() error = %v", err)
	}
	audit := &auditFake{}
	metrics := &toolMetricsFake{}
	gw := NewToolGatewayUseCase(api, limiter, validator, audit, metrics, ToolGatewaySettings{
		SearchTopK:             8,
		DefinitionTopK:         12,
		SimilarityThreshold:    0.2,
		VectorSimilarityWeight: 0.3,
	})
	gw.newRequestID = func() string { return "req-fixed" }
	return gw, audit, metrics
}

func intPtr(v int) *int { return &v }

func TestToolsFor(t *testing.T) {
	catalog, err := ToolsFor(ToolsetCatalog)
	if err != nil || len(catalog) != 4 {
		t.Fatalf("unexpected catalog tools %v err=%v", catalog, err)
	}
	retrieval, err := ToolsFor(ToolsetRetrieval)
	if err != nil || strings.Join(retrieval, ",") != "search_glossary,retrieve_docs" {
		t.Fatalf("unexpected retrieval tools %v err=%v", retrieval, err)
	}
	if _, err := ToolsFor("answer"); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestSearchTermsReshapesAndAudits(t *testing.T) {
	api := &glossaryAPIFake{retrievePayload: map[string]any{
		"chunks": []any{
			map[string]any{"id": "c1", "content": "EBITDA is...", "similarity": 0.91, "document_name": "terms.txt", "highlight": "<em>EBITDA</em>"},
		},
		"doc_aggs": []any{},
		"total":    float64(1),
	}}
	limiter := &limiterFake{}
	gw, audit, metrics := newGatewayForTest(t, api, limiter)

	result, err := gw.SearchTerms(context.Background(), callerFake("session-1"), SearchInput{DatasetID: " ds-1 ", Query: " EBITDA "})
	if err != nil {
		t.Fatalf("SearchTerms() error = %v", err)
	}
	if result.DatasetID != "ds-1" || result.Query != "EBITDA" || result.Total != 1 || len(result.Results) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	chunk := result.Results[0]
	if chunk.ChunkID != "c1" || chunk.Similarity == nil || *chunk.Similarity != 0.91 || chunk.DocumentName == nil || chunk.DocumentID != nil {
		t.Fatalf("unexpected chunk %+v", chunk)
	}

	query := api.queries[0]
	if query.TopK != 8 || query.Keyword || !query.Highlight || query.SimilarityThreshold != 0.2 || query.VectorSimilarityWeight != 0.3 {
		t.Fatalf("unexpected query %+v", query)
	}
	if api.requestIDs[0] != "req-fixed" {
		t.Fatalf("expected correlation id to reach upstream, got %v", api.requestIDs)
	}

	if len(audit.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(audit.events))
	}
	event := audit.events[0]
	if event.Status != domain.InvocationSuccess || event.Tool != ToolSearchTerms || event.ClientID != "session-1" || event.RequestID != "req-fixed" {
		t.Fatalf("unexpected audit %+v", event)
	}
	if event.Arguments["query_length"] != 6 || event.Arguments["top_k"] != 8 {
		t.Fatalf("unexpected audit arguments %+v", event.Arguments)
	}
	if metrics.invocations["search_terms:success"] != 1 {
		t.Fatalf("expected success metric, got %v", metrics.invocations)
	}
}

func TestRetrieveDefinitionsBuildsKeywordQuestion(t *testing.T) {
	api := &glossaryAPIFake{retrievePayload: map[string]any{"chunks": []any{}}}
	gw, _, _ := newGatewayForTest(t, api, &limiterFake{})

	result, err := gw.RetrieveDefinitions(context.Background(), nil, DefinitionsInput{
		DatasetID: "ds-1",
		Terms:     []string{" foo ", "", "bar"},
	})
	if err != nil {
		t.Fatalf("RetrieveDefinitions() error = %v", err)
	}
	if strings.Join(result.Terms, ",") != "foo,bar" || result.Total != 0 || result.Results == nil {
		t.Fatalf("unexpected result %+v", result)
	}
	query := api.queries[0]
	if query.Question != "Provide glossary definitions for the following terms:\n- foo\n- bar" {
		t.Fatalf("unexpected question %q", query.Question)
	}
	if !query.Keyword || query.Highlight || query.TopK != 12 {
		t.Fatalf("unexpected query flags %+v", query)
	}
}

func TestRateLimitRejectionIsAuditedAndSkipsUpstream(t *testing.T) {
	api := &glossaryAPIFake{}
	limiter := &limiterFake{err: &domain.RateLimitError{Key: ToolSearchGlossary, RetryAfter: 2500 * time.Millisecond}}
	gw, audit, metrics := newGatewayForTest(t, api, limiter)

	_, err := gw.SearchGlossary(context.Background(), nil, SearchInput{DatasetID: "ds-1", Query: "q"})
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Message != "Rate limit exceeded for search_glossary. Try again in 2.5 seconds." {
		t.Fatalf("unexpected message %q", toolErr.Message)
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited in chain, got %v", err)
	}
	if len(api.queries) != 0 {
		t.Fatalf("upstream must not be called when rate limited")
	}
	if len(audit.events) != 1 || audit.events[0].Status != domain.InvocationError || audit.events[0].Error != toolErr.Message {
		t.Fatalf("unexpected audit %+v", audit.events)
	}
	if metrics.limited != 1 {
		t.Fatalf("expected rate limit metric")
	}
}

func TestValidationFailuresNeverReachUpstream(t *testing.T) {
	cases := []struct {
		name    string
		in      RetrieveDocsInput
		message string
	}{
		{"space in id", RetrieveDocsInput{DatasetID: "bad id", Query: "q"}, "dataset_id contains unsupported characters"},
		{"bang in id", RetrieveDocsInput{DatasetID: "bad!", Query: "q"}, "dataset_id contains unsupported characters"},
		{"empty query", RetrieveDocsInput{DatasetID: "ds-1", Query: "  "}, "Query text is required."},
		{"long query", RetrieveDocsInput{DatasetID: "ds-1", Query: strings.Repeat("x", 257)}, "Query exceeds maximum length of 256 characters."},
		{"zero top_k", RetrieveDocsInput{DatasetID: "ds-1", Query: "q", TopK: intPtr(0)}, "top_k must be greater than zero"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &glossaryAPIFake{}
			gw, audit, _ := newGatewayForTest(t, api, &limiterFake{})
			_, err := gw.RetrieveDocs(context.Background(), nil, tc.in)
			if !errors.Is(err, domain.ErrInvalidInput) || err.Error() != tc.message {
				t.Fatalf("expected %q, got %v", tc.message, err)
			}
			if len(api.queries) != 0 {
				t.Fatalf("upstream must not be called on invalid input")
			}
			if len(audit.events) != 1 || audit.events[0].Status != domain.InvocationError {
				t.Fatalf("expected error audit, got %+v", audit.events)
			}
		})
	}
}

func TestRetrieveDocsPassesThroughAndCapsTopK(t *testing.T) {
	payload := map[string]any{"chunks": []any{}, "doc_aggs": []any{}, "total": float64(0)}
	api := &glossaryAPIFake{retrievePayload: payload}
	gw, _, _ := newGatewayForTest(t, api, &limiterFake{})

	out, err := gw.RetrieveDocs(context.Background(), nil, RetrieveDocsInput{DatasetID: "ds-1", Query: "q", TopK: intPtr(5000), Keyword: true})
	if err != nil {
		t.Fatalf("RetrieveDocs() error = %v", err)
	}
	if out["total"] != float64(0) {
		t.Fatalf("expected upstream payload unchanged, got %v", out)
	}
	if q := api.queries[0]; q.TopK != domain.MaxTopK || !q.Keyword || q.Highlight {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestUpstreamStatusErrorsAreReformatted(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"detail":"Dataset not found"}`, "Upstream request failed with status 404: Dataset not found"},
		{`{"message":404}`, "Upstream request failed with status 404: 404"},
		{`{"detail":{"loc":"body"}}`, `Upstream request failed with status 404: {"loc":"body"}`},
		{`{"other":"x"}`, `Upstream request failed with status 404: {"other":"x"}`},
		{`plain text`, "Upstream request failed with status 404: plain text"},
		{``, "Upstream request failed with status 404: Not Found"},
	}
	for _, tc := range cases {
		statusErr := &domain.UpstreamStatusError{StatusCode: 404, Status: "404 Not Found", Body: []byte(tc.body)}
		api := &glossaryAPIFake{err: domain.WrapError(domain.ErrUpstream, "glossaryapi.retrieve", statusErr)}
		gw, audit, _ := newGatewayForTest(t, api, &limiterFake{})

		_, err := gw.SearchTerms(context.Background(), nil, SearchInput{DatasetID: "ds-1", Query: "q"})
		if err == nil || err.Error() != tc.want {
			t.Fatalf("body %q: expected %q, got %v", tc.body, tc.want, err)
		}
		if audit.events[0].Error != tc.want {
			t.Fatalf("body %q: audit error %q", tc.body, audit.events[0].Error)
		}
	}
}

func TestGetGlossaryNotFound(t *testing.T) {
	gw, _, _ := newGatewayForTest(t, &glossaryAPIFake{}, &limiterFake{})

	_, err := gw.GetGlossary(context.Background(), nil, "ds-404")
	if err == nil || err.Error() != "Glossary 'ds-404' was not found." || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestGetGlossaryAndListReshape(t *testing.T) {
	api := &glossaryAPIFake{
		fetchPayload: map[string]any{"id": "ds-1", "name": "finance", "document_count": float64(3)},
		listPayload: map[string]any{"items": []any{
			map[string]any{"dataset_id": "ds-1", "name": "finance", "description": "Finance terms"},
			map[string]any{"dataset_id": "ds-2", "name": "legal"},
		}},
	}
	gw, _, _ := newGatewayForTest(t, api, &limiterFake{})

	summary, err := gw.GetGlossary(context.Background(), nil, "ds-1")
	if err != nil {
		t.Fatalf("GetGlossary() error = %v", err)
	}
	if summary.DatasetID != "ds-1" || summary.DocumentCount == nil || *summary.DocumentCount != 3 || summary.Description != nil {
		t.Fatalf("unexpected summary %+v", summary)
	}

	list, err := gw.ListGlossaries(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("ListGlossaries() error = %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 || list.Items[0].Description == nil || *list.Items[0].Description != "Finance terms" {
		t.Fatalf("unexpected list %+v", list)
	}
}

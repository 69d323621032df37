package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/usecase"
)

type gatewayFake struct {
	search      usecase.SearchInput
	definitions usecase.DefinitionsInput
	docs        usecase.RetrieveDocsInput
	caller      ports.Caller
	err         error
}

func (f *gatewayFake) ListGlossaries(_ context.Context, caller ports.Caller, name string) (*domain.GlossaryListResult, error) {
	f.caller = caller
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GlossaryListResult{Items: []domain.GlossarySummary{{DatasetID: "ds-1", Name: name}}, Total: 1}, nil
}

func (f *gatewayFake) GetGlossary(_ context.Context, _ ports.Caller, datasetID string) (*domain.GlossarySummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GlossarySummary{DatasetID: datasetID, Name: "Finance"}, nil
}

func (f *gatewayFake) SearchTerms(_ context.Context, _ ports.Caller, in usecase.SearchInput) (*domain.SearchTermsResult, error) {
	f.search = in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchTermsResult{DatasetID: in.DatasetID, Query: in.Query, Results: []domain.RetrievalChunkResult{}}, nil
}

func (f *gatewayFake) RetrieveDefinitions(_ context.Context, _ ports.Caller, in usecase.DefinitionsInput) (*domain.RetrieveDefinitionsResult, error) {
	f.definitions = in
	return &domain.RetrieveDefinitionsResult{DatasetID: in.DatasetID, Terms: in.Terms, Results: []domain.RetrievalChunkResult{}}, nil
}

func (f *gatewayFake) SearchGlossary(_ context.Context, _ ports.Caller, in usecase.SearchInput) (map[string]any, error) {
	f.search = in
	return map[string]any{"chunks": []any{}, "total": 0}, nil
}

func (f *gatewayFake) RetrieveDocs(_ context.Context, _ ports.Caller, in usecase.RetrieveDocsInput) (map[string]any, error) {
	f.docs = in
	return map[string]any{"chunks": []any{}, "total": 0}, nil
}

func callTool(t *testing.T, gateway Gateway, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	entry, ok := newToolTable(gateway)[name]
	if !ok {
		t.Fatalf("tool %s is not in the table", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := entry.handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("expected content in tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchTermsTopKAbsentIsNil(t *testing.T) {
	gateway := &gatewayFake{}
	result := callTool(t, gateway, usecase.ToolSearchTerms, map[string]any{"dataset_id": "ds-1", "query": "ebitda"})

	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if gateway.search.TopK != nil {
		t.Fatalf("expected nil top_k, got %d", *gateway.search.TopK)
	}
	if gateway.search.DatasetID != "ds-1" || gateway.search.Query != "ebitda" {
		t.Fatalf("unexpected input: %+v", gateway.search)
	}
}

func TestSearchTermsTopKFromJSONNumber(t *testing.T) {
	gateway := &gatewayFake{}
	callTool(t, gateway, usecase.ToolSearchTerms, map[string]any{"dataset_id": "ds-1", "query": "q", "top_k": float64(4)})

	if gateway.search.TopK == nil || *gateway.search.TopK != 4 {
		t.Fatalf("expected top_k 4, got %v", gateway.search.TopK)
	}
}

func TestRetrieveDefinitionsPassesTerms(t *testing.T) {
	gateway := &gatewayFake{}
	callTool(t, gateway, usecase.ToolRetrieveDefinitions, map[string]any{
		"dataset_id": "ds-1",
		"terms":      []any{"EBITDA", "Accrual"},
	})

	if len(gateway.definitions.Terms) != 2 || gateway.definitions.Terms[1] != "Accrual" {
		t.Fatalf("unexpected terms: %v", gateway.definitions.Terms)
	}
}

func TestSearchGlossaryTakesTermArgument(t *testing.T) {
	gateway := &gatewayFake{}
	result := callTool(t, gateway, usecase.ToolSearchGlossary, map[string]any{"dataset_id": "ds-1", "term": "ebitda", "top_k": float64(3)})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if gateway.search.Query != "ebitda" || gateway.search.DatasetID != "ds-1" {
		t.Fatalf("expected term to be forwarded as the query, got %+v", gateway.search)
	}
	if gateway.search.TopK == nil || *gateway.search.TopK != 3 {
		t.Fatalf("expected top_k 3, got %v", gateway.search.TopK)
	}

	schema := newToolTable(gateway)[usecase.ToolSearchGlossary].tool.InputSchema
	if _, ok := schema.Properties["term"]; !ok {
		t.Fatalf("expected term property, got %v", schema.Properties)
	}
	if _, ok := schema.Properties["query"]; ok {
		t.Fatalf("search_glossary must not advertise a query argument")
	}
	if !slices.Contains(schema.Required, "term") {
		t.Fatalf("expected term to be required, got %v", schema.Required)
	}
}

func TestRetrieveDocsFlagsDefaultFalse(t *testing.T) {
	gateway := &gatewayFake{}
	callTool(t, gateway, usecase.ToolRetrieveDocs, map[string]any{"dataset_id": "ds-1", "query": "q"})
	if gateway.docs.Keyword || gateway.docs.Highlight {
		t.Fatalf("expected keyword/highlight false, got %+v", gateway.docs)
	}

	callTool(t, gateway, usecase.ToolRetrieveDocs, map[string]any{"dataset_id": "ds-1", "query": "q", "keyword": true, "highlight": true})
	if !gateway.docs.Keyword || !gateway.docs.Highlight {
		t.Fatalf("expected flags to be forwarded, got %+v", gateway.docs)
	}
}

func TestToolErrorBecomesErrorResult(t *testing.T) {
	gateway := &gatewayFake{err: &usecase.ToolError{
		Tool:    usecase.ToolSearchTerms,
		Message: "Rate limit exceeded for search_terms. Try again in 2.5 seconds.",
		Err:     &domain.RateLimitError{Key: usecase.ToolSearchTerms},
	}}
	result := callTool(t, gateway, usecase.ToolSearchTerms, map[string]any{"dataset_id": "ds-1", "query": "q"})

	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if got := resultText(t, result); got != "Rate limit exceeded for search_terms. Try again in 2.5 seconds." {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestUntypedErrorIsDescribed(t *testing.T) {
	gateway := &gatewayFake{err: errors.New("boom")}
	result := callTool(t, gateway, usecase.ToolGetGlossary, map[string]any{"dataset_id": "ds-1"})

	if !result.IsError || resultText(t, result) != "boom" {
		t.Fatalf("expected described error result")
	}
}

func TestSuccessResultCarriesStructuredContent(t *testing.T) {
	result := callTool(t, &gatewayFake{}, usecase.ToolListGlossaries, map[string]any{"name": "Finance"})
	if result.IsError {
		t.Fatalf("unexpected error result")
	}
	if result.StructuredContent == nil {
		t.Fatalf("expected structured content")
	}

	var decoded domain.GlossaryListResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &decoded); err != nil {
		t.Fatalf("text fallback is not JSON: %v", err)
	}
	if decoded.Total != 1 || decoded.Items[0].Name != "Finance" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestCallerWithoutSessionHasEmptyClientID(t *testing.T) {
	gateway := &gatewayFake{}
	callTool(t, gateway, usecase.ToolListGlossaries, nil)
	if gateway.caller == nil || gateway.caller.ClientID() != "" {
		t.Fatalf("expected empty client id outside a session")
	}
}

func TestToolTableCoversEveryToolset(t *testing.T) {
	table := newToolTable(&gatewayFake{})
	for _, toolset := range []string{usecase.ToolsetCatalog, usecase.ToolsetRetrieval} {
		names, err := usecase.ToolsFor(toolset)
		if err != nil {
			t.Fatalf("ToolsFor(%s): %v", toolset, err)
		}
		for _, name := range names {
			entry, ok := table[name]
			if !ok {
				t.Fatalf("missing tool %s", name)
			}
			if entry.tool.Annotations.ReadOnlyHint == nil || !*entry.tool.Annotations.ReadOnlyHint {
				t.Fatalf("tool %s must be read-only", name)
			}
		}
	}
}

func TestNewServerRejectsUnknownToolset(t *testing.T) {
	if _, err := NewServer(&gatewayFake{}, "admin", "test"); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNewServerListsToolsetTools(t *testing.T) {
	s, err := NewServer(&gatewayFake{}, usecase.ToolsetRetrieval, "test")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	response := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, usecase.ToolSearchGlossary) || !strings.Contains(body, usecase.ToolRetrieveDocs) {
		t.Fatalf("expected retrieval tools in %s", body)
	}
	if strings.Contains(body, usecase.ToolSearchTerms) {
		t.Fatalf("catalog tool leaked into retrieval toolset: %s", body)
	}
}

func TestNormalizeMountPath(t *testing.T) {
	cases := []struct{ in, fallback, want string }{
		{"", "/mcp", "/mcp"},
		{"/", "", ""},
		{"glossary", "", "/glossary"},
		{"/glossary/", "", "/glossary"},
	}
	for _, tc := range cases {
		if got := normalizeMountPath(tc.in, tc.fallback); got != tc.want {
			t.Fatalf("normalizeMountPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

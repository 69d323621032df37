package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/ports"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/usecase"
)

// Gateway is the tool surface served over MCP.
type Gateway interface {
	ListGlossaries(ctx context.Context, caller ports.Caller, name string) (*domain.GlossaryListResult, error)
	GetGlossary(ctx context.Context, caller ports.Caller, datasetID string) (*domain.GlossarySummary, error)
	SearchTerms(ctx context.Context, caller ports.Caller, in usecase.SearchInput) (*domain.SearchTermsResult, error)
	RetrieveDefinitions(ctx context.Context, caller ports.Caller, in usecase.DefinitionsInput) (*domain.RetrieveDefinitionsResult, error)
	SearchGlossary(ctx context.Context, caller ports.Caller, in usecase.SearchInput) (map[string]any, error)
	RetrieveDocs(ctx context.Context, caller ports.Caller, in usecase.RetrieveDocsInput) (map[string]any, error)
}

type toolEntry struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

type toolHandlers struct {
	gateway Gateway
}

func newToolTable(gateway Gateway) map[string]toolEntry {
	h := &toolHandlers{gateway: gateway}
	readOnly := mcp.WithReadOnlyHintAnnotation(true)
	notDestructive := mcp.WithDestructiveHintAnnotation(false)

	datasetID := mcp.WithString("dataset_id",
		mcp.Required(),
		mcp.Description("Identifier of the glossary dataset."),
	)
	topK := mcp.WithNumber("top_k",
		mcp.Description("Maximum number of chunks to return."),
		mcp.Min(1),
		mcp.Max(domain.MaxTopK),
	)

	return map[string]toolEntry{
		usecase.ToolListGlossaries: {
			tool: mcp.NewTool(usecase.ToolListGlossaries,
				mcp.WithDescription("List glossary datasets, optionally filtered by name."),
				mcp.WithString("name", mcp.Description("Optional name filter.")),
				readOnly, notDestructive,
			),
			handler: h.listGlossaries,
		},
		usecase.ToolGetGlossary: {
			tool: mcp.NewTool(usecase.ToolGetGlossary,
				mcp.WithDescription("Fetch metadata for one glossary dataset."),
				datasetID,
				readOnly, notDestructive,
			),
			handler: h.getGlossary,
		},
		usecase.ToolSearchTerms: {
			tool: mcp.NewTool(usecase.ToolSearchTerms,
				mcp.WithDescription("Semantic search for glossary terms."),
				datasetID,
				mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query.")),
				topK,
				readOnly, notDestructive,
			),
			handler: h.searchTerms,
		},
		usecase.ToolRetrieveDefinitions: {
			tool: mcp.NewTool(usecase.ToolRetrieveDefinitions,
				mcp.WithDescription("Retrieve definitions for a list of glossary terms."),
				datasetID,
				mcp.WithArray("terms",
					mcp.Required(),
					mcp.Description("Terms to define."),
					mcp.Items(map[string]any{"type": "string"}),
				),
				topK,
				readOnly, notDestructive,
			),
			handler: h.retrieveDefinitions,
		},
		usecase.ToolSearchGlossary: {
			tool: mcp.NewTool(usecase.ToolSearchGlossary,
				mcp.WithDescription("Search glossary content for passages related to a term and return the raw retrieval payload."),
				datasetID,
				mcp.WithString("term", mcp.Required(), mcp.Description("Glossary term to search for.")),
				topK,
				readOnly, notDestructive,
			),
			handler: h.searchGlossary,
		},
		usecase.ToolRetrieveDocs: {
			tool: mcp.NewTool(usecase.ToolRetrieveDocs,
				mcp.WithDescription("Retrieve glossary chunks with keyword and highlight control."),
				datasetID,
				mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query.")),
				topK,
				mcp.WithBoolean("keyword", mcp.Description("Enable keyword matching."), mcp.DefaultBool(false)),
				mcp.WithBoolean("highlight", mcp.Description("Return highlighted snippets."), mcp.DefaultBool(false)),
				readOnly, notDestructive,
			),
			handler: h.retrieveDocs,
		},
	}
}

func (h *toolHandlers) listGlossaries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.gateway.ListGlossaries(ctx, callerFromContext(ctx), req.GetString("name", ""))
	return toolResult(result, err)
}

func (h *toolHandlers) getGlossary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.gateway.GetGlossary(ctx, callerFromContext(ctx), req.GetString("dataset_id", ""))
	return toolResult(result, err)
}

func (h *toolHandlers) searchTerms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.gateway.SearchTerms(ctx, callerFromContext(ctx), searchInput(req))
	return toolResult(result, err)
}

func (h *toolHandlers) retrieveDefinitions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.gateway.RetrieveDefinitions(ctx, callerFromContext(ctx), usecase.DefinitionsInput{
		DatasetID: req.GetString("dataset_id", ""),
		Terms:     req.GetStringSlice("terms", nil),
		TopK:      optionalInt(req, "top_k"),
	})
	return toolResult(result, err)
}

func (h *toolHandlers) searchGlossary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.gateway.SearchGlossary(ctx, callerFromContext(ctx), usecase.SearchInput{
		DatasetID: req.GetString("dataset_id", ""),
		Query:     req.GetString("term", ""),
		TopK:      optionalInt(req, "top_k"),
	})
	return toolResult(result, err)
}

func (h *toolHandlers) retrieveDocs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.gateway.RetrieveDocs(ctx, callerFromContext(ctx), usecase.RetrieveDocsInput{
		DatasetID: req.GetString("dataset_id", ""),
		Query:     req.GetString("query", ""),
		TopK:      optionalInt(req, "top_k"),
		Keyword:   req.GetBool("keyword", false),
		Highlight: req.GetBool("highlight", false),
	})
	return toolResult(result, err)
}

func searchInput(req mcp.CallToolRequest) usecase.SearchInput {
	return usecase.SearchInput{
		DatasetID: req.GetString("dataset_id", ""),
		Query:     req.GetString("query", ""),
		TopK:      optionalInt(req, "top_k"),
	}
}

// optionalInt is nil when the argument is absent so the gateway applies its default.
func optionalInt(req mcp.CallToolRequest, key string) *int {
	value, ok := req.GetArguments()[key]
	if !ok || value == nil {
		return nil
	}
	n := req.GetInt(key, 0)
	return &n
}

// toolResult turns gateway failures into tool error results; they are not
// protocol errors.
func toolResult(result any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		var toolErr *usecase.ToolError
		if errors.As(err, &toolErr) {
			return mcp.NewToolResultError(toolErr.Message), nil
		}
		return mcp.NewToolResultError(usecase.DescribeError(err)), nil
	}

	text, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return mcp.NewToolResultError("Failed to encode tool result."), nil
	}
	return mcp.NewToolResultStructured(result, string(text)), nil
}

// Package glossaryapi is the tool server's client for the gateway HTTP API.
package glossaryapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/upstream"
)

type Client struct {
	caller *upstream.Client
}

func New(caller *upstream.Client) *Client {
	return &Client{caller: caller}
}

func (c *Client) Close() {
	c.caller.Close()
}

func (c *Client) ListGlossaries(ctx context.Context, requestID, name string) (map[string]any, error) {
	query := url.Values{}
	if strings.TrimSpace(name) != "" {
		query.Set("name", name)
	}
	return c.getJSON(ctx, upstream.Request{
		Operation: "glossaryapi.list_glossaries",
		Method:    http.MethodGet,
		Path:      "/glossaries",
		Query:     query,
		RequestID: requestID,
	})
}

// FetchGlossary asks for one glossary directly. The gateway may not expose a
// single-resource route, so 404, 405 and 501 fall back to scanning the listing.
func (c *Client) FetchGlossary(ctx context.Context, requestID, datasetID string) (map[string]any, error) {
	const op = "glossaryapi.fetch_glossary"
	resp, err := c.caller.Do(ctx, upstream.Request{
		Operation: op,
		Method:    http.MethodGet,
		Path:      "/glossaries/" + url.PathEscape(datasetID),
		RequestID: requestID,
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		slog.Debug("glossary_fetch_fallback", "request_id", requestID, "dataset_id", datasetID, "status", resp.StatusCode)
	default:
		if statusErr := resp.StatusError(); statusErr != nil {
			return nil, domain.WrapError(domain.ErrUpstream, op, statusErr)
		}
		return decodeObject(op, resp)
	}

	listing, err := c.ListGlossaries(ctx, requestID, "")
	if err != nil {
		return nil, err
	}
	items, _ := listing["items"].([]any)
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		identifier, _ := item["dataset_id"].(string)
		if identifier == "" {
			identifier, _ = item["id"].(string)
		}
		if identifier == datasetID {
			return item, nil
		}
	}
	return nil, nil
}

func (c *Client) RetrieveGlossary(ctx context.Context, requestID string, query domain.RetrievalQuery) (map[string]any, error) {
	return c.getJSON(ctx, upstream.Request{
		Operation: "glossaryapi.retrieve",
		Method:    http.MethodPost,
		Path:      "/glossaries/" + url.PathEscape(query.DatasetID) + "/retrieve",
		RequestID: requestID,
		JSON: map[string]any{
			"question":                 query.Question,
			"top_k":                    query.TopK,
			"similarity_threshold":     query.SimilarityThreshold,
			"vector_similarity_weight": query.VectorSimilarityWeight,
			"keyword":                  query.Keyword,
			"highlight":                query.Highlight,
		},
	})
}

func (c *Client) getJSON(ctx context.Context, req upstream.Request) (map[string]any, error) {
	resp, err := c.caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if statusErr := resp.StatusError(); statusErr != nil {
		return nil, domain.WrapError(domain.ErrUpstream, req.Operation, statusErr)
	}
	return decodeObject(req.Operation, resp)
}

func decodeObject(op string, resp *upstream.Response) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		slog.Error("glossary_api_invalid_json", "operation", op, "status", resp.StatusCode)
		return nil, domain.WrapError(domain.ErrUpstream, op, fmt.Errorf("invalid JSON received from upstream service: %w", err))
	}
	return out, nil
}

// Package ragflow is the client for the RAGFlow dataset and retrieval API.
package ragflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
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

func (c *Client) ListDatasets(ctx context.Context, name string) (*domain.DatasetList, error) {
	query := url.Values{}
	if strings.TrimSpace(name) != "" {
		query.Set("name", name)
	}
	env, err := c.call(ctx, upstream.Request{
		Operation: "ragflow.list_datasets",
		Method:    http.MethodGet,
		Path:      "/api/v1/datasets",
		Query:     query,
	})
	if err != nil {
		return nil, err
	}

	var items []datasetItem
	if err := env.decodeData(&items); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "ragflow.list_datasets", err)
	}
	out := &domain.DatasetList{Items: make([]domain.Dataset, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, item.toDomain())
	}
	out.Total = len(out.Items)
	if env.Total != nil {
		out.Total = *env.Total
	}
	return out, nil
}

func (c *Client) CreateDataset(ctx context.Context, spec domain.DatasetSpec) (*domain.Dataset, error) {
	payload := map[string]any{"name": spec.Name}
	if spec.Description != "" {
		payload["description"] = spec.Description
	}
	if spec.ChunkMethod != "" {
		payload["chunk_method"] = spec.ChunkMethod
	}
	env, err := c.call(ctx, upstream.Request{
		Operation: "ragflow.create_dataset",
		Method:    http.MethodPost,
		Path:      "/api/v1/datasets",
		JSON:      payload,
	})
	if err != nil {
		return nil, err
	}

	var item datasetItem
	if err := env.decodeData(&item); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "ragflow.create_dataset", err)
	}
	dataset := item.toDomain()
	return &dataset, nil
}

func (c *Client) UploadDocuments(ctx context.Context, datasetID string, files []domain.UploadFile) ([]domain.Document, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ragflow.upload_documents", fmt.Errorf("no files to upload"))
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write multipart part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	env, err := c.call(ctx, upstream.Request{
		Operation:   "ragflow.upload_documents",
		Method:      http.MethodPost,
		Path:        "/api/v1/datasets/" + url.PathEscape(datasetID) + "/documents",
		Body:        body.Bytes(),
		ContentType: writer.FormDataContentType(),
		// Each accepted upload creates a new document.
		NoRetry: true,
	})
	if err != nil {
		return nil, err
	}

	var items []documentItem
	if err := env.decodeData(&items); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "ragflow.upload_documents", err)
	}
	docs := make([]domain.Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, domain.Document{ID: item.ID, Name: item.Name, Status: item.Run})
	}
	return docs, nil
}

// ParseDocuments triggers chunking for uploaded documents. It does not wait for completion.
func (c *Client) ParseDocuments(ctx context.Context, datasetID string, documentIDs []string) error {
	_, err := c.call(ctx, upstream.Request{
		Operation: "ragflow.parse_documents",
		Method:    http.MethodPost,
		Path:      "/api/v1/datasets/" + url.PathEscape(datasetID) + "/chunks",
		JSON:      map[string]any{"document_ids": documentIDs},
	})
	return err
}

func (c *Client) Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	env, err := c.call(ctx, upstream.Request{
		Operation: "ragflow.retrieval",
		Method:    http.MethodPost,
		Path:      "/api/v1/retrieval",
		JSON: map[string]any{
			"question":                 query.Question,
			"dataset_ids":              []string{query.DatasetID},
			"top_k":                    query.TopK,
			"similarity_threshold":     query.SimilarityThreshold,
			"vector_similarity_weight": query.VectorSimilarityWeight,
			"keyword":                  query.Keyword,
			"highlight":                query.Highlight,
		},
	})
	if err != nil {
		return nil, err
	}

	var data retrievalData
	if err := env.decodeData(&data); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "ragflow.retrieval", err)
	}
	return data.toDomain(), nil
}

func (c *Client) call(ctx context.Context, req upstream.Request) (*envelope, error) {
	resp, err := c.caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		if statusErr := resp.StatusError(); statusErr != nil {
			return nil, domain.WrapError(kindForHTTPStatus(resp.StatusCode), req.Operation, statusErr)
		}
		return nil, domain.WrapError(domain.ErrUpstream, req.Operation, fmt.Errorf("invalid JSON payload received from RAGFlow: %w", err))
	}
	if env.Code != 0 {
		return nil, &APIError{Operation: req.Operation, Code: env.Code, Message: env.message()}
	}
	if statusErr := resp.StatusError(); statusErr != nil {
		return nil, domain.WrapError(kindForHTTPStatus(resp.StatusCode), req.Operation, statusErr)
	}
	return &env, nil
}

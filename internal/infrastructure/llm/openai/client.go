// Package openai calls an OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/upstream"
)

const DefaultBaseURL = "https://api.openai.com/v1"

var (
	errEmptyResponse = errors.New("LLM provider returned an empty response")
	errEmptyMessage  = errors.New("LLM provider returned an empty message")
)

type Client struct {
	caller       *upstream.Client
	defaultModel string
}

func New(caller *upstream.Client, defaultModel string) *Client {
	return &Client{caller: caller, defaultModel: defaultModel}
}

// NormalizeBaseURL makes sure the base URL ends with the /v1 API prefix.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat returns the trimmed content of the first choice.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage, model string) (string, error) {
	const op = "openai.chat"
	if strings.TrimSpace(model) == "" {
		model = c.defaultModel
	}

	resp, err := c.caller.Do(ctx, upstream.Request{
		Operation: op,
		Method:    http.MethodPost,
		Path:      "/chat/completions",
		JSON: map[string]any{
			"model":    model,
			"messages": messages,
		},
	})
	if err != nil {
		return "", err
	}
	if statusErr := resp.StatusError(); statusErr != nil {
		return "", domain.WrapError(domain.ErrUpstream, op, statusErr)
	}

	var decoded chatResponse
	if err := resp.DecodeJSON(&decoded); err != nil {
		return "", domain.WrapError(domain.ErrUpstream, op, err)
	}
	if len(decoded.Choices) == 0 {
		return "", domain.WrapError(domain.ErrUpstream, op, errEmptyResponse)
	}
	content := decoded.Choices[0].Message.Content
	if content == nil || strings.TrimSpace(*content) == "" {
		return "", domain.WrapError(domain.ErrUpstream, op, errEmptyMessage)
	}
	return strings.TrimSpace(*content), nil
}

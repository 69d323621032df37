// Package upstream is the resilient JSON-over-HTTP caller shared by every
// client that talks to an external service.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/resilience"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

const maxResponseBytes = 16 << 20

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	UserAgent  string
	Resilience resilience.Policy
	HTTPClient *http.Client
}

// Client performs calls against a single base URL with bearer authorization.
// Transport failures and 5xx responses other than 501 are retried with a
// fixed delay. Every other response is handed back to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfig, "upstream client", fmt.Errorf("api key is required for %s", opts.BaseURL))
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, domain.WrapError(domain.ErrConfig, "upstream client", fmt.Errorf("invalid base url %q", opts.BaseURL))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "glossary-rag-gateway/1.0"
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		userAgent:  userAgent,
		httpClient: httpClient,
		executor:   resilience.NewExecutor(opts.Resilience),
	}, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type Request struct {
	// Operation names the call for logs and the circuit breaker.
	Operation   string
	Method      string
	Path        string
	Query       url.Values
	JSON        any
	Body        []byte
	ContentType string
	// RequestID falls back to the request id carried by ctx.
	RequestID string
	// NoRetry sends the request once. Set it for calls that are not safe to
	// repeat, such as uploads that create a new document per request.
	NoRetry bool
}

type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// StatusError returns a *domain.UpstreamStatusError for 4xx/5xx responses.
func (r *Response) StatusError() error {
	if r == nil || r.StatusCode < 400 {
		return nil
	}
	return &domain.UpstreamStatusError{
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Body:       r.Body,
	}
}

func (r *Response) DecodeJSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode upstream json: %w", err)
	}
	return nil
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	operation := req.Operation
	if operation == "" {
		operation = req.Method + " " + req.Path
	}

	payload := req.Body
	contentType := req.ContentType
	if req.JSON != nil {
		body, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", operation, err)
		}
		payload = body
		contentType = "application/json"
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = logging.RequestIDFromContext(ctx)
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var result *Response
	call := func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
		if err != nil {
			return &permanentError{err: fmt.Errorf("create %s request: %w", operation, err)}
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)
		if requestID != "" {
			httpReq.Header.Set("X-Request-ID", requestID)
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%s request: %w", operation, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("read %s response: %w", operation, err)
		}

		out := &Response{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Header:     resp.Header.Clone(),
			Body:       raw,
		}
		// 501 means the route does not exist there; callers may fall back.
		if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented {
			return out.StatusError()
		}
		result = out
		return nil
	}

	classify := classifyError
	if req.NoRetry {
		classify = classifySingleAttempt
	}
	if err := c.executor.Execute(ctx, operation, call, classify); err != nil {
		return nil, wrapFailure(operation, err)
	}
	return result, nil
}

// DoJSON performs the call and decodes a 2xx body into out. 4xx and 501
// responses become *domain.UpstreamStatusError.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.StatusError(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func classifyError(err error) resilience.Outcome {
	if errors.Is(err, context.Canceled) {
		return resilience.Ignored
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A client timeout also surfaces as DeadlineExceeded; only the
		// caller's own deadline is final.
		if isClientTimeout(err) {
			return resilience.Transient
		}
		return resilience.Ignored
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return resilience.Ignored
	}

	var statusErr *domain.UpstreamStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return resilience.Transient
		}
		return resilience.Ignored
	}

	// Anything else came out of the transport.
	return resilience.Transient
}

// classifySingleAttempt keeps breaker accounting but never retries.
func classifySingleAttempt(err error) resilience.Outcome {
	if outcome := classifyError(err); outcome != resilience.Transient {
		return outcome
	}
	return resilience.Permanent
}

func wrapFailure(operation string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !isClientTimeout(err):
		return err
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		return domain.WrapError(domain.ErrUpstream, operation, err)
	}
}

func isClientTimeout(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

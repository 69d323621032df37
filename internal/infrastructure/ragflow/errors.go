package ragflow

import (
	"fmt"
	"net/http"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

// APIError is a non-zero application code inside a RAGFlow response envelope.
type APIError struct {
	Operation string
	Code      int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: ragflow code %d: %s", e.Operation, e.Code, e.Message)
}

// Unwrap exposes the categorized domain error for the code.
func (e *APIError) Unwrap() error {
	return KindForCode(e.Code)
}

// Detail is the upstream message surfaced to callers.
func (e *APIError) Detail() string {
	return e.Message
}

func KindForCode(code int) error {
	switch code {
	case 1001, 1002, 400:
		return domain.ErrInvalidInput
	case 401:
		return domain.ErrUnauthorized
	case 403:
		return domain.ErrForbidden
	case 404:
		return domain.ErrNotFound
	case 101:
		return domain.ErrConflict
	default:
		return domain.ErrUpstream
	}
}

func kindForHTTPStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrInvalidInput
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	default:
		return domain.ErrUpstream
	}
}

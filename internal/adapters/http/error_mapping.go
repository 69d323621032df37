package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/core/usecase"
	"github.com/kirillkom/glossary-rag-gateway/internal/observability/logging"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)

	var limited *domain.RateLimitError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", retryAfterSeconds(limited.RetryAfter.Seconds()))
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", logging.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}

	writeDetail(w, status, usecase.DescribeError(err))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(seconds float64) string {
	return strconv.Itoa(int(math.Max(1, math.Ceil(seconds))))
}

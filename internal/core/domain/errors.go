package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrUpstream     = errors.New("upstream failure")
	ErrTemporary    = errors.New("temporary failure")
	ErrConfig       = errors.New("configuration error")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UpstreamStatusError is an HTTP response the caller decided not to accept.
type UpstreamStatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *UpstreamStatusError) Error() string {
	if e == nil {
		return "upstream status error"
	}
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("upstream status: %s", e.statusText())
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("upstream status: %s: %s", e.statusText(), body)
}

func (e *UpstreamStatusError) statusText() string {
	if strings.TrimSpace(e.Status) != "" {
		return e.Status
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

// RateLimitError is an admission rejection. RetryAfter estimates when enough
// capacity will be available again.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %.2fs", e.Key, e.RetryAfter.Seconds())
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Package resilience runs upstream operations under a fixed-delay retry loop
// and a per-operation circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Outcome tells the executor what a failed attempt means.
type Outcome int

const (
	// Permanent failures are returned immediately and count against the breaker.
	Permanent Outcome = iota
	// Transient failures are retried and count against the breaker.
	Transient
	// Ignored failures are returned immediately and leave the breaker alone:
	// client errors and the caller's own cancellation.
	Ignored
)

type Classifier func(err error) Outcome

// Retry calls fn up to attempts times while retryable reports the error as
// transient, sleeping delay between attempts. Cancellation is observed before
// every attempt and during the delay; fn is never called again once ctx ends.
func Retry(
	ctx context.Context,
	attempts int,
	delay time.Duration,
	retryable func(error) bool,
	fn func(context.Context) error,
) error {
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err, last)
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if attempt >= attempts || retryable == nil || !retryable(last) {
			return last
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelled(ctx.Err(), last)
		case <-timer.C:
		}
	}
}

func cancelled(ctxErr, last error) error {
	if last == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %v)", ctxErr, last)
}

// Executor is safe for concurrent use. Breakers are created lazily, one per
// operation name, so unrelated upstream endpoints never trip each other.
type Executor struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unnamed"
	}
	if classify == nil {
		classify = func(error) Outcome { return Permanent }
	}

	run := func() error { return e.retry(ctx, operation, fn, classify) }
	if !e.policy.Breaker.Enabled {
		return run()
	}

	_, err := e.breaker(operation, classify).Execute(func() (struct{}, error) {
		return struct{}{}, run()
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	attempt := 0
	retryable := func(err error) bool {
		if classify(err) != Transient {
			return false
		}
		if attempt < e.policy.Attempts {
			slog.Warn("retry_attempt",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", e.policy.Attempts,
				"delay_ms", float64(e.policy.Delay.Microseconds())/1000.0,
				"error", err,
			)
		}
		return true
	}
	return Retry(ctx, e.policy.Attempts, e.policy.Delay, retryable, func(ctx context.Context) error {
		attempt++
		return fn(ctx)
	})
}

func (e *Executor) breaker(operation string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: bp.HalfOpenCalls,
		Timeout:     bp.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bp.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bp.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || classify(err) == Ignored
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}

// IsCircuitOpen reports a call refused by an open or saturated half-open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

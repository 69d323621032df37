// Package ratelimit provides per-key token buckets with continuous refill.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

// Bucket holds up to capacity tokens and refills capacity tokens per interval.
type Bucket struct {
	key      string
	capacity int
	perSec   float64

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewBucket(key string, capacity int, interval time.Duration) (*Bucket, error) {
	if capacity <= 0 {
		return nil, domain.WrapError(domain.ErrConfig, "rate limit bucket", fmt.Errorf("capacity must be positive, got %d", capacity))
	}
	if interval <= 0 {
		return nil, domain.WrapError(domain.ErrConfig, "rate limit bucket", fmt.Errorf("refill interval must be positive, got %s", interval))
	}
	perSec := float64(capacity) / interval.Seconds()
	return &Bucket{
		key:      key,
		capacity: capacity,
		perSec:   perSec,
		limiter:  rate.NewLimiter(rate.Limit(perSec), capacity),
	}, nil
}

func (b *Bucket) Capacity() int {
	return b.capacity
}

// ConsumeAt refills the bucket up to now and takes amount tokens, or fails
// with a *domain.RateLimitError carrying the time until enough tokens accrue.
// Nothing is deducted on failure.
func (b *Bucket) ConsumeAt(now time.Time, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limiter.AllowN(now, amount) {
		return nil
	}
	deficit := float64(amount) - b.limiter.TokensAt(now)
	if deficit < 0 {
		deficit = 0
	}
	return &domain.RateLimitError{
		Key:        b.key,
		RetryAfter: time.Duration(deficit / b.perSec * float64(time.Second)),
	}
}

// TokensAt reports the token count the bucket would hold at now.
func (b *Bucket) TokensAt(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.TokensAt(now)
}

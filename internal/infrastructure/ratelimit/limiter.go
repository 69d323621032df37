package ratelimit

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

type Config struct {
	Capacity  int
	Interval  time.Duration
	Overrides map[string]int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Limiter owns one bucket per known key. Buckets are independent, so
// unrelated keys never contend for the same lock.
type Limiter struct {
	buckets map[string]*Bucket
	now     func() time.Time
}

func NewLimiter(cfg Config, keys []string) (*Limiter, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		buckets: make(map[string]*Bucket, len(keys)),
		now:     now,
	}
	for _, key := range keys {
		capacity := cfg.Capacity
		if override, ok := cfg.Overrides[key]; ok {
			capacity = override
		}
		bucket, err := NewBucket(key, capacity, cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", key, err)
		}
		l.buckets[key] = bucket
	}

	unknown := make([]string, 0)
	for key := range cfg.Overrides {
		if _, ok := l.buckets[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		slog.Warn("rate_limit_override_ignored", "keys", unknown)
	}
	return l, nil
}

func (l *Limiter) Consume(key string) error {
	bucket, ok := l.buckets[key]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "rate limit", fmt.Errorf("unknown tool %q", key))
	}
	return bucket.ConsumeAt(l.now(), 1)
}

// Bucket returns the bucket for key, if any.
func (l *Limiter) Bucket(key string) (*Bucket, bool) {
	bucket, ok := l.buckets[key]
	return bucket, ok
}

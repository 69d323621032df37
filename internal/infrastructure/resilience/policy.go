package resilience

import "time"

// Policy controls one Executor: a fixed-delay retry loop, optionally guarded
// by a circuit breaker per operation name.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Breaker  BreakerPolicy
}

type BreakerPolicy struct {
	Enabled       bool
	MinRequests   uint32
	FailureRatio  float64
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
}

// DefaultPolicy matches the upstream defaults: three attempts, 500ms apart.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   10,
			FailureRatio:  0.5,
			OpenTimeout:   30 * time.Second,
			HalfOpenCalls: 2,
		},
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	// Zero is a valid fixed delay.
	if p.Delay < 0 {
		p.Delay = def.Delay
	}

	b := &p.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenCalls == 0 {
		b.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}
	return p
}

// Package pacing controls how fast actors iterate: a per-actor wait time
// taken from the locust section of a flow, and an optional global limiter
// shared by every actor.
package pacing

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter caps the iteration rate across all actors. A rate of zero
// disables limiting.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

func NewLimiter(rps int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	limiter := l.limiter
	limit := limiter.Limit()
	l.mu.RUnlock()

	if limit == 0 {
		return nil
	}
	return limiter.Wait(ctx)
}

func (l *Limiter) SetRate(rps int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter.SetLimit(rate.Limit(rps))
	l.limiter.SetBurst(rps)
}

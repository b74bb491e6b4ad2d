package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenLimiter is the shared call-budget arbiter. Every external exchange call,
// whether issued by the monitoring scheduler or the execution strategist, draws
// from the same rolling-window budget so neither path can starve the other.
type TokenLimiter struct {
	sync.Mutex
	capacity     int
	remaining    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

func NewTokenLimiter(tokensPerMinute int) *TokenLimiter {
	return &TokenLimiter{
		capacity:     tokensPerMinute,
		remaining:    tokensPerMinute,
		refillPeriod: time.Minute,
		lastRefill:   time.Now(),
	}
}

// Wait blocks until tokens are available or ctx is done.
func (l *TokenLimiter) Wait(ctx context.Context, tokens int) error {
	for {
		if l.TryAcquire(tokens) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// TryAcquire takes tokens without blocking. Returns false when the budget for
// the current window is exhausted.
func (l *TokenLimiter) TryAcquire(tokens int) bool {
	l.refill()

	l.Lock()
	defer l.Unlock()
	if l.remaining >= tokens {
		l.remaining -= tokens
		return true
	}
	return false
}

func (l *TokenLimiter) refill() {
	l.Lock()
	defer l.Unlock()

	now := time.Now()
	if now.Sub(l.lastRefill) >= l.refillPeriod {
		l.remaining = l.capacity
		l.lastRefill = now
	}
}

func (l *TokenLimiter) GetRemaining() int {
	l.refill()
	l.Lock()
	defer l.Unlock()
	return l.remaining
}

func (l *TokenLimiter) Capacity() int {
	return l.capacity
}

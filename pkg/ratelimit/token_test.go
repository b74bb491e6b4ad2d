package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenLimiter_DrainsAndRefuses(t *testing.T) {
	l := NewTokenLimiter(3)

	assert.Equal(t, 3, l.Capacity())
	assert.True(t, l.TryAcquire(1))
	assert.True(t, l.TryAcquire(2))
	assert.Equal(t, 0, l.GetRemaining())
	assert.False(t, l.TryAcquire(1), "budget exhausted for this window")
}

func TestTokenLimiter_SharedBetweenCallers(t *testing.T) {
	l := NewTokenLimiter(2)

	// Two callers drawing from the same limiter compete for one budget.
	assert.True(t, l.TryAcquire(1))
	assert.True(t, l.TryAcquire(1))
	assert.False(t, l.TryAcquire(1))
}

func TestTokenLimiter_RefillsAfterWindow(t *testing.T) {
	l := NewTokenLimiter(1)
	require.True(t, l.TryAcquire(1))
	require.False(t, l.TryAcquire(1))

	// Backdate the window instead of sleeping through it.
	l.Lock()
	l.lastRefill = time.Now().Add(-2 * l.refillPeriod)
	l.Unlock()

	assert.True(t, l.TryAcquire(1))
}

func TestTokenLimiter_WaitHonorsContext(t *testing.T) {
	l := NewTokenLimiter(1)
	require.True(t, l.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenLimiter_WaitReturnsOnceRefilled(t *testing.T) {
	l := NewTokenLimiter(1)
	require.True(t, l.TryAcquire(1))

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Lock()
		l.lastRefill = time.Now().Add(-2 * l.refillPeriod)
		l.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx, 1))
}

package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errDisk = errors.New("disk failure")

func failing(ctx context.Context) (int, error) { return 0, errDisk }
func succeeding(ctx context.Context) (int, error) { return 1, nil }

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("read", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute}, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := Execute(ctx, cb, "readFile", failing)
		require.ErrorIs(t, err, errDisk)
		assert.Equal(t, CircuitClosed, cb.State())
	}

	_, err := Execute(ctx, cb, "readFile", failing)
	require.ErrorIs(t, err, errDisk)
	assert.Equal(t, CircuitOpen, cb.State())

	// Rejected without invoking the operation.
	invoked := false
	_, err = Execute(ctx, cb, "readFile", func(ctx context.Context) (int, error) {
		invoked = true
		return 1, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)

	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, ie.Details["failureCount"])
	assert.Equal(t, clock.Now(), ie.Details["lastFailureTime"])
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("write", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	_, _ = Execute(ctx, cb, "writeFile", failing)
	_, _ = Execute(ctx, cb, "writeFile", failing)
	_, err := Execute(ctx, cb, "writeFile", succeeding)
	require.NoError(t, err)
	assert.Equal(t, 0, cb.Snapshot().FailureCount)

	_, _ = Execute(ctx, cb, "writeFile", failing)
	_, _ = Execute(ctx, cb, "writeFile", failing)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("read", BreakerConfig{FailureThreshold: 2, ResetTimeout: 30 * time.Second}, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = Execute(ctx, cb, "op", failing)
	_, _ = Execute(ctx, cb, "op", failing)
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(29 * time.Second)
	_, err := Execute(ctx, cb, "op", succeeding)
	require.ErrorIs(t, err, ErrCircuitOpen)

	// Cool-down boundary is inclusive.
	clock.Advance(time.Second)
	val, err := Execute(ctx, cb, "op", succeeding)
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("read", BreakerConfig{FailureThreshold: 2, ResetTimeout: 10 * time.Second}, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = Execute(ctx, cb, "op", failing)
	_, _ = Execute(ctx, cb, "op", failing)
	clock.Advance(10 * time.Second)

	_, err := Execute(ctx, cb, "op", failing)
	require.ErrorIs(t, err, errDisk)

	snap := cb.Snapshot()
	assert.Equal(t, CircuitOpen, snap.State)
	assert.Equal(t, 3, snap.FailureCount)
	assert.Equal(t, clock.Now(), snap.LastFailureTime)

	// The cool-down restarts from the half-open failure.
	clock.Advance(5 * time.Second)
	_, err = Execute(ctx, cb, "op", succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_Listeners(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("write", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second}, WithClock(clock.Now))
	ctx := context.Background()

	var changes []StateChange
	cb.OnStateChange(func(c StateChange) {
		// Listeners may query the breaker without deadlocking.
		_ = cb.State()
		changes = append(changes, c)
	})

	_, _ = Execute(ctx, cb, "op", failing)
	clock.Advance(time.Second)
	_, _ = Execute(ctx, cb, "op", succeeding)
	cb.Reset()

	require.Len(t, changes, 4)
	assert.Equal(t, CircuitClosed, changes[0].From)
	assert.Equal(t, CircuitOpen, changes[0].To)
	assert.Equal(t, CircuitHalfOpen, changes[1].To)
	assert.Equal(t, CircuitClosed, changes[2].To)
	assert.Equal(t, CircuitClosed, changes[3].To)
	assert.Equal(t, "write", changes[3].Breaker)
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := NewCircuitBreaker("read", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_, _ = Execute(context.Background(), cb, "op", failing)
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	snap := cb.Snapshot()
	assert.Equal(t, CircuitClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
	assert.True(t, snap.LastFailureTime.IsZero())

	_, err := Execute(context.Background(), cb, "op", succeeding)
	assert.NoError(t, err)
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker("read", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, cb, "op", func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("x", BreakerConfig{})
	assert.Equal(t, DefaultBreakerConfig(), cb.config)
	assert.Equal(t, "x", cb.Name())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker("read", BreakerConfig{FailureThreshold: 1000, ResetTimeout: time.Minute})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Execute(context.Background(), cb, "op", failing)
			} else {
				_, _ = Execute(context.Background(), cb, "op", succeeding)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

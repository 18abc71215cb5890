package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout_CompletesInTime(t *testing.T) {
	val, err := WithTimeout(context.Background(), time.Second, "quick", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestWithTimeout_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := WithTimeout(context.Background(), time.Second, "failing", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.Same(t, boom, err)
}

func TestWithTimeout_Expires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, CodeTimeout, ie.Code)
	assert.Equal(t, "20ms", ie.Details["timeout"])
	assert.Equal(t, "slow", ie.Details["operation"])
	assert.Contains(t, err.Error(), "slow timed out after 20ms")
}

func TestWithTimeout_ContextIsCancelledOnDeadline(t *testing.T) {
	observed := make(chan error, 1)
	_, err := WithTimeout(context.Background(), 10*time.Millisecond, "watch", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		observed <- ctx.Err()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, ErrTimeout)

	select {
	case got := <-observed:
		assert.ErrorIs(t, got, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("operation context was never cancelled")
	}
}

func TestWithTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(ctx, time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestWithTimeout_ZeroDisables(t *testing.T) {
	val, err := WithTimeout(context.Background(), 0, "unbounded", func(ctx context.Context) (int, error) {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, val)
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
)

func TestLimiter_RespectsCeiling(t *testing.T) {
	l := New(Config{Name: "test", MaxConcurrent: 3, QueueTimeout: 5 * time.Second})

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Submit(context.Background(), fmt.Sprintf("task-%d", i), func(ctx context.Context) error {
				n := atomic.AddInt64(&current, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))

	m := l.Metrics()
	assert.Equal(t, uint64(20), m.Total)
	assert.Equal(t, uint64(20), m.Completed)
	assert.Equal(t, 0, m.Active)
	assert.Equal(t, 0, m.Queued)
	assert.InDelta(t, 100.0, m.SuccessRate, 0.001)
}

func TestLimiter_FIFOOrder(t *testing.T) {
	l := New(Config{Name: "fifo", MaxConcurrent: 1, QueueTimeout: 5 * time.Second})

	release := make(chan struct{})
	occupantStarted := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Submit(context.Background(), "occupant", func(ctx context.Context) error {
			close(occupantStarted)
			<-release
			return nil
		})
	}()
	<-occupantStarted

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Submit(context.Background(), fmt.Sprintf("task-%d", i), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// Make sure task i is queued before task i+1 is submitted.
		require.Eventually(t, func() bool { return l.Metrics().Queued == i+1 }, time.Second, time.Millisecond)
		time.Sleep(2 * time.Millisecond)
	}

	assert.Equal(t, 5, l.Metrics().MaxQueueSize)
	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLimiter_QueueTimeout(t *testing.T) {
	l := New(Config{Name: "timeout", MaxConcurrent: 1, QueueTimeout: 20 * time.Millisecond})

	release := make(chan struct{})
	started := make(chan struct{})
	occupantDone := make(chan struct{})
	go func() {
		defer close(occupantDone)
		_ = l.Submit(context.Background(), "occupant", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ran := false
	err := l.Submit(context.Background(), "late", func(ctx context.Context) error {
		ran = true
		return nil
	})

	select {
	case <-occupantDone:
		t.Fatal("occupant finished before the queued task was rejected")
	default:
	}
	close(release)
	<-occupantDone

	require.Error(t, err)
	assert.False(t, ran)
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.ErrorIs(t, err, resilience.ErrRetryExhausted)
	assert.Equal(t, resilience.CodeRetryExhausted, resilience.CodeOf(err))

	m := l.Metrics()
	assert.Equal(t, uint64(1), m.Rejected)
	assert.Equal(t, uint64(1), m.Completed)
	assert.Equal(t, uint64(2), m.Total)
	assert.InDelta(t, 50.0, m.SuccessRate, 0.001)
}

func TestLimiter_FailedTasksCounted(t *testing.T) {
	l := New(Config{MaxConcurrent: 2})
	boom := errors.New("boom")

	err := l.Submit(context.Background(), "bad", func(ctx context.Context) error { return boom })
	assert.Same(t, boom, err)
	require.NoError(t, l.Submit(context.Background(), "good", func(ctx context.Context) error { return nil }))

	m := l.Metrics()
	assert.Equal(t, uint64(1), m.Failed)
	assert.Equal(t, uint64(1), m.Completed)
	assert.Equal(t, "default", l.Name())
}

func TestLimiter_ResetRejectsQueued(t *testing.T) {
	l := New(Config{Name: "reset", MaxConcurrent: 1, QueueTimeout: time.Minute})

	release := make(chan struct{})
	started := make(chan struct{})
	occupantErr := make(chan error, 1)
	go func() {
		occupantErr <- l.Submit(context.Background(), "occupant", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	queuedErr := make(chan error, 1)
	go func() {
		queuedErr <- l.Submit(context.Background(), "queued", func(ctx context.Context) error {
			return nil
		})
	}()
	require.Eventually(t, func() bool { return l.Metrics().Queued == 1 }, time.Second, time.Millisecond)

	l.Reset()

	select {
	case err := <-queuedErr:
		assert.ErrorIs(t, err, ErrLimiterReset)
	case <-time.After(time.Second):
		t.Fatal("queued task was not settled by Reset")
	}

	m := l.Metrics()
	assert.Equal(t, uint64(0), m.Total)
	assert.Equal(t, 0, m.Queued)
	assert.Equal(t, 1, m.Active, "in-flight task keeps running")

	close(release)
	require.NoError(t, <-occupantErr)
	assert.Equal(t, 0, l.Metrics().Active)
}

func TestLimiter_ContextCancelledWhileQueued(t *testing.T) {
	l := New(Config{MaxConcurrent: 1, QueueTimeout: time.Minute})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Submit(context.Background(), "occupant", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Submit(ctx, "cancelled", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrQueueTimeout)
}

func TestLimiter_ClampsConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrent: 0})
	assert.Equal(t, 1, l.config.MaxConcurrent)
}

func TestLimiter_MinIntervalPacesStarts(t *testing.T) {
	l := New(Config{MaxConcurrent: 4, MinInterval: 20 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Submit(context.Background(), "paced", func(ctx context.Context) error { return nil }))
	}
	// First start is immediate, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestDo(t *testing.T) {
	l := New(Config{MaxConcurrent: 1})

	val, err := Do(context.Background(), l, "answer", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	_, err = Do(context.Background(), l, "fail", func(ctx context.Context) (int, error) {
		return 7, errors.New("nope")
	})
	assert.EqualError(t, err, "nope")
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	depth    int
}

func (c *countingObserver) ObserveTask(_, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

func (c *countingObserver) SetQueueDepth(_ string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth = depth
}

func TestLimiter_Observer(t *testing.T) {
	obs := &countingObserver{}
	l := New(Config{MaxConcurrent: 2}, WithObserver(obs))

	_ = l.Submit(context.Background(), "ok", func(ctx context.Context) error { return nil })
	_ = l.Submit(context.Background(), "bad", func(ctx context.Context) error { return errors.New("x") })

	assert.Equal(t, 1, obs.outcomes["completed"])
	assert.Equal(t, 1, obs.outcomes["failed"])
	assert.Equal(t, 0, obs.depth)
}

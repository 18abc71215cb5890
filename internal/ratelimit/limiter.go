// Package ratelimit bounds how many units of work run at once. Work beyond
// the ceiling waits in a FIFO queue for at most a configured time.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
)

var (
	// ErrQueueTimeout matches a task rejected after waiting too long for a slot.
	// Such errors also carry code RETRY_EXHAUSTED.
	ErrQueueTimeout = errors.New("queue timeout")

	// ErrLimiterReset is returned to tasks still queued when Reset is called.
	ErrLimiterReset = errors.New("limiter reset")
)

// Config holds limiter configuration.
type Config struct {
	// Name identifies the limiter in logs and metrics.
	Name string

	// MaxConcurrent is the ceiling on concurrently running tasks.
	MaxConcurrent int

	// QueueTimeout bounds how long a task may wait for a slot. Zero waits forever.
	QueueTimeout time.Duration

	// MinInterval spaces task starts. Zero disables pacing.
	MinInterval time.Duration
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "default",
		MaxConcurrent: 10,
		QueueTimeout:  30 * time.Second,
	}
}

// Observer receives task outcomes and queue depth changes.
type Observer interface {
	ObserveTask(limiter, outcome string)
	SetQueueDepth(limiter string, depth int)
}

// Metrics is a snapshot of limiter counters.
type Metrics struct {
	Total        uint64    `json:"total"`
	Completed    uint64    `json:"completed"`
	Failed       uint64    `json:"failed"`
	Rejected     uint64    `json:"rejected"`
	Queued       int       `json:"queued"`
	MaxQueueSize int       `json:"maxQueueSize"`
	Active       int       `json:"active"`
	StartTime    time.Time `json:"startTime"`
	// Throughput is completed tasks per second since StartTime.
	Throughput float64 `json:"throughput"`
	// SuccessRate is completed / total as a percentage.
	SuccessRate float64 `json:"successRate"`
}

// generation scopes the queue between resets.
type generation struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newGeneration() *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{ctx: ctx, cancel: cancel}
}

// Limiter runs submitted tasks with at most MaxConcurrent in flight.
//
// Admission goes through a weighted semaphore, which hands out slots to
// waiters strictly in arrival order.
type Limiter struct {
	config   Config
	sem      *semaphore.Weighted
	pacer    *rate.Limiter
	observer Observer
	logger   *zerolog.Logger

	mu        sync.Mutex
	gen       *generation
	active    int
	queued    int
	maxQueue  int
	total     uint64
	completed uint64
	failed    uint64
	rejected  uint64
	start     time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			sub := logger.With().Str("component", "ratelimit").Str("limiter", l.config.Name).Logger()
			l.logger = &sub
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		l.observer = o
	}
}

// New creates a limiter. A non-positive MaxConcurrent is clamped to 1.
func New(config Config, opts ...Option) *Limiter {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}

	nop := zerolog.Nop()
	l := &Limiter{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		logger: &nop,
		gen:    newGeneration(),
		start:  time.Now(),
	}
	if config.MinInterval > 0 {
		l.pacer = rate.NewLimiter(rate.Every(config.MinInterval), 1)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the limiter's name.
func (l *Limiter) Name() string {
	return l.config.Name
}

// Submit runs task once a slot is free and returns its error. label names
// the task in logs and errors.
//
// If the ceiling is reached the task waits behind earlier submissions. A
// task still waiting after QueueTimeout is rejected with an error matching
// ErrQueueTimeout and resilience.ErrRetryExhausted; it never runs. Tasks
// waiting when Reset is called fail with ErrLimiterReset. Running tasks are
// never interrupted by the limiter.
func (l *Limiter) Submit(ctx context.Context, label string, task func(context.Context) error) error {
	l.mu.Lock()
	l.total++
	gen := l.gen
	l.mu.Unlock()

	if !l.sem.TryAcquire(1) {
		if err := l.wait(ctx, gen, label); err != nil {
			return err
		}
	}

	if l.pacer != nil {
		if err := l.pacer.Wait(ctx); err != nil {
			l.sem.Release(1)
			l.reject(gen, "cancelled")
			return err
		}
	}

	return l.run(ctx, task)
}

func (l *Limiter) wait(ctx context.Context, gen *generation, label string) error {
	l.mu.Lock()
	l.queued++
	if l.queued > l.maxQueue {
		l.maxQueue = l.queued
	}
	depth := l.queued
	l.mu.Unlock()
	l.setQueueDepth(depth)

	l.logger.Debug().
		Str("task", label).
		Int("queued", depth).
		Msg("Task queued, limiter at capacity")

	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if l.config.QueueTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, l.config.QueueTimeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stop := context.AfterFunc(gen.ctx, cancel)
	defer stop()

	err := l.sem.Acquire(waitCtx, 1)

	l.mu.Lock()
	if l.gen == gen {
		l.queued--
	}
	depth = l.queued
	l.mu.Unlock()
	l.setQueueDepth(depth)

	if err == nil {
		return nil
	}

	switch {
	case gen.ctx.Err() != nil:
		return fmt.Errorf("task %s: %w", label, ErrLimiterReset)
	case ctx.Err() != nil:
		l.reject(gen, "cancelled")
		return ctx.Err()
	default:
		l.reject(gen, "queue_timeout")
		l.logger.Warn().
			Str("task", label).
			Dur("queue_timeout", l.config.QueueTimeout).
			Msg("Task rejected after waiting in queue")
		return resilience.NewError(resilience.CodeRetryExhausted, label,
			fmt.Sprintf("task %s timed out in queue after %s", label, l.config.QueueTimeout),
			ErrQueueTimeout,
			map[string]any{"queueTimeout": l.config.QueueTimeout.String(), "task": label})
	}
}

func (l *Limiter) run(ctx context.Context, task func(context.Context) error) (err error) {
	l.mu.Lock()
	l.active++
	l.mu.Unlock()

	defer func() {
		l.sem.Release(1)

		l.mu.Lock()
		l.active--
		if err == nil {
			l.completed++
		} else {
			l.failed++
		}
		l.mu.Unlock()

		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		l.observe(outcome)
	}()

	return task(ctx)
}

func (l *Limiter) reject(gen *generation, outcome string) {
	l.mu.Lock()
	if l.gen == gen {
		l.rejected++
	}
	l.mu.Unlock()
	l.observe(outcome)
}

// Metrics returns a snapshot of the limiter's counters.
func (l *Limiter) Metrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := Metrics{
		Total:        l.total,
		Completed:    l.completed,
		Failed:       l.failed,
		Rejected:     l.rejected,
		Queued:       l.queued,
		MaxQueueSize: l.maxQueue,
		Active:       l.active,
		StartTime:    l.start,
	}
	if elapsed := time.Since(l.start).Seconds(); elapsed > 0 {
		m.Throughput = float64(l.completed) / elapsed
	}
	if l.total > 0 {
		m.SuccessRate = float64(l.completed) / float64(l.total) * 100
	}
	return m
}

// Reset clears all counters and rejects every queued task with
// ErrLimiterReset. Running tasks keep their slots and finish normally.
func (l *Limiter) Reset() {
	l.mu.Lock()
	old := l.gen
	l.gen = newGeneration()
	l.queued = 0
	l.maxQueue = 0
	l.total = 0
	l.completed = 0
	l.failed = 0
	l.rejected = 0
	l.start = time.Now()
	l.mu.Unlock()

	old.cancel()
	l.setQueueDepth(0)
	l.logger.Debug().Msg("Limiter reset")
}

func (l *Limiter) observe(outcome string) {
	if l.observer != nil {
		l.observer.ObserveTask(l.config.Name, outcome)
	}
}

func (l *Limiter) setQueueDepth(depth int) {
	if l.observer != nil {
		l.observer.SetQueueDepth(l.config.Name, depth)
	}
}

// Do submits fn to l and returns its value.
func Do[T any](ctx context.Context, l *Limiter, label string, fn func(context.Context) (T, error)) (T, error) {
	var val T
	err := l.Submit(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return val, nil
}

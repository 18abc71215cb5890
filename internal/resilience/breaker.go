package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects calls until the cool-down has elapsed.
	CircuitOpen

	// CircuitHalfOpen lets a trial call through after the cool-down.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON and log output.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// ResetTimeout is the cool-down after the last failure before a trial call is allowed.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// StateChange describes one transition.
type StateChange struct {
	Breaker string
	From    CircuitState
	To      CircuitState
	At      time.Time
}

// BreakerSnapshot is a point-in-time copy of the breaker's state.
type BreakerSnapshot struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failureCount"`
	LastFailureTime time.Time    `json:"lastFailureTime"`
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger *zerolog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// CircuitBreaker guards one class of operations against a repeatedly failing resource.
//
// Safe for concurrent use. Listeners run synchronously after the state lock
// is released, in the order they were registered.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	config          BreakerConfig
	name            string
	logger          *zerolog.Logger
	now             func() time.Time

	listenersMu sync.RWMutex
	listeners   []func(StateChange)
}

// NewCircuitBreaker creates a new circuit breaker in the CLOSED state.
func NewCircuitBreaker(name string, config BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}

	nop := zerolog.Nop()
	cb := &CircuitBreaker{
		state:  CircuitClosed,
		config: config,
		name:   name,
		logger: &nop,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// OnStateChange registers a listener for every transition, including manual resets.
func (cb *CircuitBreaker) OnStateChange(fn func(StateChange)) {
	cb.listenersMu.Lock()
	defer cb.listenersMu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

// Allow reports whether a call may proceed. An OPEN breaker whose cool-down
// has elapsed moves to HALF_OPEN and lets the call through; otherwise it
// returns a CIRCUIT_BREAKER_OPEN error.
func (cb *CircuitBreaker) Allow(op string) error {
	cb.mu.Lock()
	if cb.state != CircuitOpen {
		cb.mu.Unlock()
		return nil
	}

	now := cb.now()
	if now.Sub(cb.lastFailureTime) >= cb.config.ResetTimeout {
		change := cb.transitionLocked(CircuitHalfOpen, now)
		cb.mu.Unlock()
		cb.logger.Info().
			Str("circuit_breaker", cb.name).
			Str("op", op).
			Msg("Circuit breaker transitioning to half-open")
		cb.notify(change)
		return nil
	}

	snap := cb.snapshotLocked()
	cb.mu.Unlock()
	return NewError(CodeCircuitOpen, op,
		fmt.Sprintf("circuit breaker %s is OPEN for %s", cb.name, op), nil,
		map[string]any{
			"failureCount":    snap.FailureCount,
			"lastFailureTime": snap.LastFailureTime,
			"resetTimeout":    cb.config.ResetTimeout.String(),
		})
}

// RecordSuccess resets the failure count and closes a HALF_OPEN circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failureCount = 0
	if cb.state != CircuitHalfOpen {
		cb.mu.Unlock()
		return
	}
	change := cb.transitionLocked(CircuitClosed, cb.now())
	cb.mu.Unlock()

	cb.logger.Info().
		Str("circuit_breaker", cb.name).
		Msg("Circuit breaker closing after successful recovery")
	cb.notify(change)
}

// RecordFailure counts a failure, opening the circuit at the threshold or
// re-opening it from HALF_OPEN.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	now := cb.now()
	cb.failureCount++
	cb.lastFailureTime = now

	var change *StateChange
	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			change = cb.transitionLocked(CircuitOpen, now)
		}
	case CircuitHalfOpen:
		change = cb.transitionLocked(CircuitOpen, now)
	}
	count := cb.failureCount
	cb.mu.Unlock()

	cb.logger.Debug().
		Err(err).
		Str("circuit_breaker", cb.name).
		Int("failure_count", count).
		Msg("Circuit breaker recording failure")

	if change != nil {
		cb.logger.Warn().
			Str("circuit_breaker", cb.name).
			Str("from", change.From.String()).
			Int("failure_count", count).
			Dur("reset_timeout", cb.config.ResetTimeout).
			Msg("Circuit breaker opening")
		cb.notify(change)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the current state, failure count and last failure time.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.snapshotLocked()
}

// Reset forces the breaker CLOSED and clears its failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	now := cb.now()
	change := cb.transitionLocked(CircuitClosed, now)
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
	cb.mu.Unlock()

	cb.logger.Info().
		Str("circuit_breaker", cb.name).
		Msg("Circuit breaker manually reset to closed state")
	cb.notify(change)
}

func (cb *CircuitBreaker) snapshotLocked() BreakerSnapshot {
	return BreakerSnapshot{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState, now time.Time) *StateChange {
	from := cb.state
	cb.state = to
	return &StateChange{Breaker: cb.name, From: from, To: to, At: now}
}

func (cb *CircuitBreaker) notify(change *StateChange) {
	cb.listenersMu.RLock()
	listeners := make([]func(StateChange), len(cb.listeners))
	copy(listeners, cb.listeners)
	cb.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(*change)
	}
}

// Execute runs fn through the breaker: rejected immediately while OPEN,
// outcome recorded otherwise. Context cancellation by the caller is not
// counted as a failure of the resource.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.Allow(op); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return zero, err
		}
		cb.RecordFailure(err)
		return zero, err
	}
	cb.RecordSuccess()
	return val, nil
}

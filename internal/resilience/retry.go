package resilience

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryOptions configures Retry. Zero fields fall back to DefaultRetryOptions.
type RetryOptions struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// ShouldRetry decides whether a failed attempt is worth repeating.
	ShouldRetry func(error) bool
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryOptions returns the default retry policy.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		ShouldRetry:       IsTransient,
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	def := DefaultRetryOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = def.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = def.MaxDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = def.BackoffMultiplier
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = def.ShouldRetry
	}
	return o
}

// Backoff returns the delay after the given failed attempt (1-based):
// min(initial * multiplier^(attempt-1), max).
func Backoff(attempt int, opts RetryOptions) time.Duration {
	opts = opts.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt-1))
	capped := math.Min(delay, float64(opts.MaxDelay))
	return time.Duration(capped)
}

// Retry invokes fn until it succeeds, the error is not retryable, or the
// attempts run out. Every failure is reported as RETRY_EXHAUSTED wrapping the
// last error.
func Retry[T any](ctx context.Context, op string, opts RetryOptions, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts || !opts.ShouldRetry(err) {
			return zero, exhausted(op, attempt, opts.MaxAttempts, lastErr)
		}

		delay := Backoff(attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, exhausted(op, attempt, opts.MaxAttempts, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, exhausted(op, opts.MaxAttempts, opts.MaxAttempts, lastErr)
}

func exhausted(op string, attempts, maxAttempts int, last error) *IntegrationError {
	details := map[string]any{
		"attempts":    attempts,
		"maxAttempts": maxAttempts,
	}
	if last != nil {
		details["lastError"] = last.Error()
		if code := CodeOf(last); code != "" {
			details["lastErrorCode"] = string(code)
		}
	}
	return NewError(CodeRetryExhausted, op,
		fmt.Sprintf("%s failed after %d attempt(s)", op, attempts), last, details)
}

var transientErrnos = []syscall.Errno{
	syscall.EAGAIN,
	syscall.EIO,
	syscall.ENOSPC,
	syscall.EBUSY,
	syscall.ETIMEDOUT,
}

// errno names as they appear in wrapped messages from other runtimes and tools.
var transientCodes = []string{"ECONNRESET", "EAGAIN", "EIO", "ENOSPC", "EBUSY", "ETIMEDOUT"}

var transientPhrases = []string{
	"timeout",
	"timed out",
	"connection reset",
	"resource temporarily unavailable",
	"input/output error",
	"no space left",
	"device or resource busy",
}

// IsTransient reports whether err looks temporary: busy or exhausted I/O
// resources, timeouts, connection resets. Missing files and permission
// problems are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := causeMessage(err)
	for _, code := range transientCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	lower := strings.ToLower(msg)
	for _, phrase := range transientPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// causeMessage returns the text to match transient markers against. Path and
// syscall errors contribute only their underlying cause, so a file path that
// happens to contain "timeout" or "EIO" does not make the error transient.
func causeMessage(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Err != nil {
		return pathErr.Err.Error()
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && linkErr.Err != nil {
		return linkErr.Err.Error()
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Err != nil {
		return sysErr.Err.Error()
	}
	return err.Error()
}

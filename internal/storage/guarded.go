// Package storage wraps raw filesystem primitives with timeouts, retries and
// per-class circuit breakers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
)

// Op names used in errors, logs and metrics.
const (
	OpReadFile  = "readFile"
	OpWriteFile = "writeFile"
	OpMkdir     = "mkdir"
	OpAccess    = "access"
	OpStat      = "stat"
	OpReadDir   = "readdir"
	OpRemove    = "remove"
)

// Policy is the resilience policy of one operation.
type Policy struct {
	MaxAttempts int
	Timeout     time.Duration
}

// Policies holds the default policy per operation.
type Policies struct {
	Read    Policy
	Write   Policy
	Mkdir   Policy
	Access  Policy
	Stat    Policy
	ReadDir Policy
}

// DefaultPolicies returns the default per-operation policies.
func DefaultPolicies() Policies {
	return Policies{
		Read:    Policy{MaxAttempts: 3, Timeout: 30 * time.Second},
		Write:   Policy{MaxAttempts: 3, Timeout: 30 * time.Second},
		Mkdir:   Policy{MaxAttempts: 2, Timeout: 5 * time.Second},
		Access:  Policy{MaxAttempts: 1, Timeout: 5 * time.Second},
		Stat:    Policy{MaxAttempts: 1, Timeout: 5 * time.Second},
		ReadDir: Policy{MaxAttempts: 3, Timeout: 5 * time.Second},
	}
}

// Observer receives the outcome of every guarded operation.
type Observer interface {
	ObserveFileOp(op, outcome string, duration time.Duration)
}

// Options configures a GuardedFS.
type Options struct {
	// Fs is the raw filesystem. Defaults to the OS filesystem.
	Fs       afero.Fs
	Policies Policies
	Breaker  resilience.BreakerConfig
	// RetryDelay is the initial backoff between attempts. Defaults to 100ms.
	RetryDelay time.Duration
	Observer   Observer
	Logger     *zerolog.Logger
}

// CallOption overrides the default policy for a single call.
type CallOption func(*Policy)

// WithAttempts overrides the number of attempts.
func WithAttempts(n int) CallOption {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithTimeout overrides the per-attempt timeout. Zero disables it.
func WithTimeout(d time.Duration) CallOption {
	return func(p *Policy) {
		p.Timeout = d
	}
}

// GuardedFS performs filesystem operations through breaker -> retry -> timeout.
// Reads and directory listings share one breaker, writes, mkdir and removals
// share another. Stat and access are retried and timed out but never trip a
// breaker, since "does not exist" is an ordinary answer for them.
type GuardedFS struct {
	fs         afero.Fs
	policies   Policies
	retryDelay time.Duration
	read       *resilience.CircuitBreaker
	write      *resilience.CircuitBreaker
	observer   Observer
	logger     *zerolog.Logger
}

// New creates a GuardedFS.
func New(opts Options) *GuardedFS {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Policies == (Policies{}) {
		opts.Policies = DefaultPolicies()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "storage").Logger()

	return &GuardedFS{
		fs:         opts.Fs,
		policies:   opts.Policies,
		retryDelay: opts.RetryDelay,
		read:       resilience.NewCircuitBreaker("file-read", opts.Breaker, resilience.WithBreakerLogger(&l)),
		write:      resilience.NewCircuitBreaker("file-write", opts.Breaker, resilience.WithBreakerLogger(&l)),
		observer:   opts.Observer,
		logger:     &l,
	}
}

// Fs returns the raw filesystem underneath the guard.
func (g *GuardedFS) Fs() afero.Fs {
	return g.fs
}

// ReadBreaker returns the breaker shared by reads and directory listings.
func (g *GuardedFS) ReadBreaker() *resilience.CircuitBreaker {
	return g.read
}

// WriteBreaker returns the breaker shared by writes, mkdir and removals.
func (g *GuardedFS) WriteBreaker() *resilience.CircuitBreaker {
	return g.write
}

// ResetBreakers forces both breakers closed.
func (g *GuardedFS) ResetBreakers() {
	g.read.Reset()
	g.write.Reset()
}

// ReadFile reads the whole file at path.
func (g *GuardedFS) ReadFile(ctx context.Context, path string, opts ...CallOption) ([]byte, error) {
	data, err := guard(ctx, g, OpReadFile, path, g.read, g.policies.Read, opts, func(ctx context.Context) ([]byte, error) {
		return afero.ReadFile(g.fs, path)
	})
	if err != nil {
		return nil, g.fail(resilience.CodeFileRead, OpReadFile, path, g.read, err)
	}
	return data, nil
}

// WriteFile writes data to path, replacing any existing content.
func (g *GuardedFS) WriteFile(ctx context.Context, path string, data []byte, opts ...CallOption) error {
	_, err := guard(ctx, g, OpWriteFile, path, g.write, g.policies.Write, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, afero.WriteFile(g.fs, path, data, 0o644)
	})
	if err != nil {
		return g.fail(resilience.CodeFileWrite, OpWriteFile, path, g.write, err)
	}
	return nil
}

// MkdirAll creates path and any missing parents. An existing directory is success.
func (g *GuardedFS) MkdirAll(ctx context.Context, path string, opts ...CallOption) error {
	_, err := guard(ctx, g, OpMkdir, path, g.write, g.policies.Mkdir, opts, func(ctx context.Context) (struct{}, error) {
		err := g.fs.MkdirAll(path, 0o755)
		if errors.Is(err, fs.ErrExist) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return g.fail(resilience.CodeFileWrite, OpMkdir, path, g.write, err)
	}
	return nil
}

// Access checks that path exists.
func (g *GuardedFS) Access(ctx context.Context, path string, opts ...CallOption) error {
	_, err := guard(ctx, g, OpAccess, path, nil, g.policies.Access, opts, func(ctx context.Context) (os.FileInfo, error) {
		return g.fs.Stat(path)
	})
	if err != nil {
		return g.fail(resilience.CodeFileRead, OpAccess, path, nil, err)
	}
	return nil
}

// Exists reports whether path exists. Errors other than "not found" are returned.
func (g *GuardedFS) Exists(ctx context.Context, path string, opts ...CallOption) (bool, error) {
	err := g.Access(ctx, path, opts...)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Stat returns file information for path.
func (g *GuardedFS) Stat(ctx context.Context, path string, opts ...CallOption) (os.FileInfo, error) {
	info, err := guard(ctx, g, OpStat, path, nil, g.policies.Stat, opts, func(ctx context.Context) (os.FileInfo, error) {
		return g.fs.Stat(path)
	})
	if err != nil {
		return nil, g.fail(resilience.CodeFileRead, OpStat, path, nil, err)
	}
	return info, nil
}

// ReadDir lists the directory at path, sorted by name.
func (g *GuardedFS) ReadDir(ctx context.Context, path string, opts ...CallOption) ([]os.FileInfo, error) {
	entries, err := guard(ctx, g, OpReadDir, path, g.read, g.policies.ReadDir, opts, func(ctx context.Context) ([]os.FileInfo, error) {
		return afero.ReadDir(g.fs, path)
	})
	if err != nil {
		return nil, g.fail(resilience.CodeFileRead, OpReadDir, path, g.read, err)
	}
	return entries, nil
}

// Remove deletes the file at path. A missing file is success.
func (g *GuardedFS) Remove(ctx context.Context, path string, opts ...CallOption) error {
	_, err := guard(ctx, g, OpRemove, path, g.write, g.policies.Write, opts, func(ctx context.Context) (struct{}, error) {
		err := g.fs.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return g.fail(resilience.CodeFileWrite, OpRemove, path, g.write, err)
	}
	return nil
}

// ListFiles returns every file under root whose name ends in ext (all files
// when ext is empty), descending into every subdirectory. Paths are sorted.
func (g *GuardedFS) ListFiles(ctx context.Context, root, ext string) ([]string, error) {
	var files []string
	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := g.ReadDir(ctx, dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			if ext == "" || strings.HasSuffix(entry.Name(), ext) {
				files = append(files, full)
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// guard composes breaker -> retry -> timeout around fn. cb may be nil.
func guard[T any](ctx context.Context, g *GuardedFS, op, path string, cb *resilience.CircuitBreaker, policy Policy, opts []CallOption, fn func(context.Context) (T, error)) (T, error) {
	for _, opt := range opts {
		opt(&policy)
	}

	start := time.Now()
	retryOpts := resilience.RetryOptions{
		MaxAttempts:  policy.MaxAttempts,
		InitialDelay: g.retryDelay,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			g.logger.Debug().
				Err(err).
				Str("op", op).
				Str("path", path).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying file operation")
		},
	}
	name := fmt.Sprintf("%s %s", op, path)

	attempt := func(ctx context.Context) (T, error) {
		return resilience.Retry(ctx, name, retryOpts, func(ctx context.Context) (T, error) {
			return resilience.WithTimeout(ctx, policy.Timeout, name, fn)
		})
	}

	var (
		val T
		err error
	)
	if cb != nil {
		val, err = resilience.Execute(ctx, cb, name, attempt)
	} else {
		val, err = attempt(ctx)
	}

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		outcome = "rejected"
	default:
		outcome = "failure"
	}
	g.observe(op, outcome, time.Since(start))
	return val, err
}

func (g *GuardedFS) fail(code resilience.Code, op, path string, cb *resilience.CircuitBreaker, err error) error {
	details := map[string]any{
		"path":      path,
		"operation": op,
	}
	if cb != nil {
		details["circuitBreaker"] = cb.Snapshot()
	}

	verb := "read"
	if code == resilience.CodeFileWrite {
		verb = "write"
	}
	g.logger.Debug().
		Err(err).
		Str("op", op).
		Str("path", path).
		Msg("File operation failed")

	return resilience.NewError(code, op, fmt.Sprintf("failed to %s %s", verb, path), err, details)
}

func (g *GuardedFS) observe(op, outcome string, d time.Duration) {
	if g.observer != nil {
		g.observer.ObserveFileOp(op, outcome, d)
	}
}

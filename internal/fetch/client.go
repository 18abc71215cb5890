// Package fetch downloads raw school datasets over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Config holds HTTP client configuration
type Config struct {
	RequestsPerSecond float64       `json:"requestsPerSecond"`
	MaxRetries        int           `json:"maxRetries"`
	InitialBackoff    time.Duration `json:"initialBackoff"`
	MaxBackoff        time.Duration `json:"maxBackoff"`
	Timeout           time.Duration `json:"timeout"`
	// MaxBodySize caps a downloaded body in bytes. Zero is unlimited.
	MaxBodySize int64 `json:"maxBodySize"`
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		Timeout:           2 * time.Minute,
		MaxBodySize:       512 * 1024 * 1024,
	}
}

const userAgent = "sekolah-pseo/1.0"

// ErrBodyTooLarge is returned, never retried, when a body exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// RetryError is returned when every attempt failed
type RetryError struct {
	URL        string
	Attempts   int
	LastStatus int
	LastError  error
}

func (e *RetryError) Error() string {
	msg := "failed to fetch " + e.URL + " after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.LastStatus != 0 {
		msg += " (HTTP " + strconv.Itoa(e.LastStatus) + ")"
	}
	if e.LastError != nil {
		msg += ": " + e.LastError.Error()
	}
	return msg
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// IsRetryableStatus reports whether a status is worth retrying: 429 and 5xx.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// Backoff returns the exponential delay before retry attempt+1, capped and
// with up to 25% jitter.
func Backoff(attempt int, cfg Config) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxBackoff))
	return time.Duration(delay + rand.Float64()*0.25*delay)
}

// RateLimitBackoff returns the delay after a 429. A Retry-After header in
// seconds wins; otherwise the backoff grows by 3x per attempt.
func RateLimitBackoff(attempt int, cfg Config, retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds)*time.Second + time.Duration(rand.Int63n(int64(time.Second)))
	}
	delay := float64(cfg.InitialBackoff) * math.Pow(3, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxBackoff))
	return time.Duration(delay + rand.Float64()*0.25*delay)
}

// Client is an HTTP client with request pacing and retries
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
}

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		config:     cfg,
	}
}

// Config returns the client configuration
func (c *Client) Config() Config {
	return c.config
}

// GetBytes downloads url, retrying transport errors and retryable statuses.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		body, status, retryAfter, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		retryable := IsRetryableStatus(status) || (status == 0 && !errors.Is(err, ErrBodyTooLarge))
		if !retryable || attempt >= c.config.MaxRetries {
			re := &RetryError{URL: url, Attempts: attempt + 1, LastStatus: status}
			if status == 0 {
				re.LastError = err
			}
			return nil, re
		}

		delay := Backoff(attempt, c.config)
		if status == http.StatusTooManyRequests {
			delay = RateLimitBackoff(attempt, c.config, retryAfter)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// get performs one attempt. A non-2xx response returns its status and an
// error; any other failure returns status 0.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, resp.Header.Get("Retry-After"), fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if c.config.MaxBodySize > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxBodySize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if c.config.MaxBodySize > 0 && int64(len(data)) > c.config.MaxBodySize {
		return nil, 0, "", fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.config.MaxBodySize)
	}
	return data, resp.StatusCode, "", nil
}

package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationError_Format(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewError(CodeFileWrite, "writeFile", "failed to write out/a.html", cause, nil)

	assert.Equal(t, "[FILE_WRITE_ERROR] failed to write out/a.html: disk on fire", err.Error())
	assert.NotNil(t, err.Details)
	assert.False(t, err.Timestamp.IsZero())
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestIntegrationError_SentinelMatching(t *testing.T) {
	tests := []struct {
		code     Code
		sentinel error
	}{
		{CodeTimeout, ErrTimeout},
		{CodeRetryExhausted, ErrRetryExhausted},
		{CodeCircuitOpen, ErrCircuitOpen},
		{CodeFileRead, ErrFileRead},
		{CodeFileWrite, ErrFileWrite},
		{CodeValidation, ErrValidation},
		{CodeConfiguration, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.code, "op", "msg", nil, nil))
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}

	// A code's error does not match other sentinels.
	assert.NotErrorIs(t, NewError(CodeTimeout, "op", "msg", nil, nil), ErrCircuitOpen)
}

func TestIntegrationError_CauseChain(t *testing.T) {
	inner := NewError(CodeTimeout, "readFile", "readFile timed out after 1s", nil, nil)
	outer := NewError(CodeRetryExhausted, "readFile", "readFile failed after 3 attempt(s)", inner, nil)

	assert.ErrorIs(t, outer, ErrRetryExhausted)
	assert.ErrorIs(t, outer, ErrTimeout)
	assert.Equal(t, CodeRetryExhausted, CodeOf(outer))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError("build.concurrency must be positive", map[string]any{"value": -1})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, "config", err.Op)
	assert.Equal(t, -1, err.Details["value"])
}

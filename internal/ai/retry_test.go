package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		shouldRetry bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"overloaded", errors.New("529 overloaded"), true},
		{"server error", errors.New("500 internal server error"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"unauthorized", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("400 bad request"), false},
		{"unavailable", fmt.Errorf("%w: no key", ErrUnavailable), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, isRetriableError(tt.err))
		})
	}
}

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, 2, 30*time.Second)
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(31 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 1, time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(9).String())
}

// scriptedProvider fails the first n calls with err.
type scriptedProvider struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(context.Context, Request) (string, error) {
	n := p.calls.Add(1)
	if n <= p.failures {
		return "", p.err
	}
	return "ok", nil
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           time.Second,
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	p := &scriptedProvider{failures: 2, err: errors.New("503 service unavailable")}
	c := NewClient(p, fastRetry(3))

	out, err := c.Complete(context.Background(), "suggest", Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestClientGivesUp(t *testing.T) {
	p := &scriptedProvider{failures: 100, err: errors.New("503 service unavailable")}
	c := NewClient(p, fastRetry(2))

	_, err := c.Complete(context.Background(), "suggest", Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestClientDoesNotRetryPermanentErrors(t *testing.T) {
	p := &scriptedProvider{failures: 100, err: errors.New("401 unauthorized")}
	c := NewClient(p, fastRetry(3))

	_, err := c.Complete(context.Background(), "suggest", Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestClientOpensCircuit(t *testing.T) {
	p := &scriptedProvider{failures: 100, err: errors.New("503 service unavailable")}
	cfg := fastRetry(0)
	cfg.CircuitBreakerEnabled = true
	cfg.FailureThreshold = 2
	cfg.SuccessThreshold = 1
	cfg.OpenTimeout = time.Minute
	c := NewClient(p, cfg)

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), "suggest", Request{})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, c.CircuitState())

	_, err := c.Complete(context.Background(), "suggest", Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), p.calls.Load())
}

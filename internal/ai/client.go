package ai

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Completer is what the engine needs from a model client.
type Completer interface {
	Complete(ctx context.Context, operation string, req Request) (string, error)
}

// Client wraps a Provider with retries, a circuit breaker and a
// concurrency limit.
type Client struct {
	provider Provider
	retry    RetryConfig
	breaker  *CircuitBreaker
	sem      *semaphore.Weighted
}

// NewClient creates a client. A zero RetryConfig selects the defaults.
func NewClient(provider Provider, retry RetryConfig) *Client {
	if retry.MaxRetries == 0 && retry.Timeout == 0 {
		retry = DefaultRetryConfig()
	}
	if retry.Timeout <= 0 {
		retry.Timeout = 60 * time.Second
	}
	if retry.BackoffMultiplier < 1 {
		retry.BackoffMultiplier = 1
	}

	c := &Client{provider: provider, retry: retry}
	if retry.CircuitBreakerEnabled {
		c.breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}
	if retry.MaxConcurrentCalls > 0 {
		c.sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// CircuitState reports the breaker state, CircuitClosed when disabled.
func (c *Client) CircuitState() CircuitState {
	if c.breaker == nil {
		return CircuitClosed
	}
	return c.breaker.State()
}

// Complete runs req against the provider with retry policy applied.
func (c *Client) Complete(ctx context.Context, operation string, req Request) (string, error) {
	start := time.Now()
	var out string
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		text, err := c.provider.Complete(attemptCtx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Debug("model call", "operation", operation, "provider", c.provider.Name(), "duration", time.Since(start), "chars", len(out))
	return out, nil
}

package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

type retryClient struct {
	next       Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithRetry retries rate limits, 5xx and network failures with exponential
// backoff. Client errors and context expiry are returned immediately.
func WithRetry(c Client, maxRetries int, baseDelay time.Duration) Client {
	if maxRetries <= 0 {
		return c
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &retryClient{
		next:       c,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   10 * time.Second,
	}
}

func (c *retryClient) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	delay := c.baseDelay
	for attempt := 0; ; attempt++ {
		resp, err := c.next.Chat(ctx, req, result)
		if err == nil || attempt >= c.maxRetries || !IsRetryable(ctx, err) {
			return resp, err
		}

		slog.WarnContext(ctx, "retrying llm call",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

func (c *retryClient) Model() string {
	return c.next.Model()
}

// statusError is implemented by provider errors that carry an HTTP status.
type statusError interface {
	error
	HTTPStatus() int
}

func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	status := 0
	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	var se statusError
	switch {
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &se):
		status = se.HTTPStatus()
	}

	switch {
	case status == 0:
		// Network errors (no API response) are generally retryable
		slog.WarnContext(ctx, "llm network error, will retry", "error", err)
		return true
	case status == 429:
		slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", status)
		return true
	case status >= 500:
		slog.WarnContext(ctx, "llm server error, will retry", "status_code", status)
		return true
	default:
		slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", status)
		return false
	}
}

package models

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// RetryOptions control the retry behaviour when a provider call fails.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// WithRetry wraps m so transient provider failures are retried with a
// jittered linear backoff. Context cancellation is never retried.
func WithRetry(m ChatModel, opts RetryOptions, logger *slog.Logger) ChatModel {
	if opts.MaxAttempts <= 1 {
		return m
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryingChat{inner: m, opts: opts, logger: logger}
}

type retryingChat struct {
	inner  ChatModel
	opts   RetryOptions
	logger *slog.Logger
}

func (r *retryingChat) Name() string { return r.inner.Name() }

func (r *retryingChat) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		msg, err := r.inner.Complete(ctx, messages, tools)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt == r.opts.MaxAttempts {
			break
		}
		delay := r.opts.BaseDelay * time.Duration(attempt)
		if r.opts.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(r.opts.Jitter)))
		}
		r.logger.Warn("model call failed, retrying", "model", r.inner.Name(), "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Message{}, lastErr
}

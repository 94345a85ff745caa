package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Resilient wraps an Embedder with a rate limiter and bounded retries.
type Resilient struct {
	inner       Embedder
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// ResilientOptions configure Resilient. Zero RequestsPerSecond disables limiting.
type ResilientOptions struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	RequestsPerSecond float64
	Burst             int
}

func NewResilient(inner Embedder, opts ResilientOptions, logger *slog.Logger) *Resilient {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resilient{inner: inner, maxAttempts: opts.MaxAttempts, baseDelay: opts.BaseDelay, logger: logger}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return r
}

func (r *Resilient) Model() string { return r.inner.Model() }

func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.do(ctx, func() error {
		v, err := r.inner.Embed(ctx, text)
		out = v
		return err
	})
	return out, err
}

func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, func() error {
		v, err := EmbedAll(ctx, r.inner, texts)
		out = v
		return err
	})
	return out, err
}

func (r *Resilient) do(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrNotSupported) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == r.maxAttempts {
			break
		}
		r.logger.Warn("embedding failed, retrying", "model", r.inner.Model(), "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.baseDelay):
		}
	}
	return fmt.Errorf("embed after %d attempts: %w", r.maxAttempts, lastErr)
}

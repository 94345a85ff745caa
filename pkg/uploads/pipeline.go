package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Protocol-Lattice/docqa/pkg/embed"
)

// EmbeddedChunk is a page chunk paired with its vector, or the error that
// kept it from being embedded.
type EmbeddedChunk struct {
	Chunk    Chunk
	Vector   []float32
	Attempts int
	Err      error
	Duration time.Duration
}

// Pipeline embeds chunks with a bounded worker pool. Results keep input order.
type Pipeline struct {
	Embedder     embed.Embedder
	Middlewares  []Middleware
	BatchSize    int
	WorkerCount  int
	ExpectedDims int
	RetryOptions RetryOptions
	Logger       *slog.Logger
}

// Middleware rewrites chunk text or metadata ahead of embedding.
type Middleware interface {
	Process(ctx context.Context, chunk *Chunk) error
}

// MiddlewareFunc adapts a plain function to Middleware.
type MiddlewareFunc func(ctx context.Context, chunk *Chunk) error

func (f MiddlewareFunc) Process(ctx context.Context, chunk *Chunk) error {
	return f(ctx, chunk)
}

// RetryOptions bound how often a failed embedding batch is retried.
type RetryOptions struct {
	MaxAttempts int
	Jitter      time.Duration
	BaseDelay   time.Duration
}

type batch struct {
	start  int
	chunks []Chunk
	errs   []error
}

// Process embeds the provided chunks. A chunk that still fails after retries
// carries its error in EmbeddedChunk.Err; only cancellation aborts the call.
func (p Pipeline) Process(ctx context.Context, chunks []Chunk) ([]EmbeddedChunk, error) {
	if p.Embedder == nil {
		return nil, errors.New("uploads pipeline requires an embedder")
	}
	if p.WorkerCount <= 0 {
		p.WorkerCount = 4
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 32
	}
	if p.RetryOptions.MaxAttempts <= 0 {
		p.RetryOptions.MaxAttempts = 3
	}
	if p.RetryOptions.BaseDelay <= 0 {
		p.RetryOptions.BaseDelay = 200 * time.Millisecond
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]EmbeddedChunk, len(chunks))
	input := make(chan batch)
	var wg sync.WaitGroup

	for i := 0; i < p.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range input {
				for j, res := range p.embedWithRetry(ctx, b.chunks) {
					if b.errs[j] != nil {
						res.Vector, res.Err = nil, b.errs[j]
					}
					results[b.start+j] = res
				}
			}
		}()
	}

	go func() {
		defer close(input)
		for start := 0; start < len(chunks); start += p.BatchSize {
			end := start + p.BatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			b := batch{start: start, chunks: make([]Chunk, 0, end-start), errs: make([]error, 0, end-start)}
			for k := start; k < end; k++ {
				chunk := chunks[k]
				b.errs = append(b.errs, p.applyMiddleware(ctx, &chunk))
				b.chunks = append(b.chunks, chunk)
			}
			select {
			case <-ctx.Done():
				return
			case input <- b:
			}
		}
	}()

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		res := &results[i]
		if res.Err == nil && p.ExpectedDims > 0 && len(res.Vector) != p.ExpectedDims {
			res.Err = fmt.Errorf("embedding dimension mismatch: got %d expected %d", len(res.Vector), p.ExpectedDims)
		}
	}
	return results, nil
}

func (p Pipeline) applyMiddleware(ctx context.Context, chunk *Chunk) error {
	for _, mw := range p.Middlewares {
		if mw == nil {
			continue
		}
		if err := mw.Process(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p Pipeline) embedWithRetry(ctx context.Context, chunks []Chunk) []EmbeddedChunk {
	start := time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	out := make([]EmbeddedChunk, len(chunks))
	fill := func(vecs [][]float32, attempts int, err error) []EmbeddedChunk {
		d := time.Since(start)
		for i, c := range chunks {
			out[i] = EmbeddedChunk{Chunk: c, Attempts: attempts, Err: err, Duration: d}
			if err == nil {
				out[i].Vector = vecs[i]
			}
		}
		return out
	}

	attempts := 0
	for {
		if ctx.Err() != nil {
			return fill(nil, attempts, ctx.Err())
		}
		attempts++
		vecs, err := embed.EmbedAll(ctx, p.Embedder, texts)
		if err == nil {
			for i, v := range vecs {
				if len(v) == 0 {
					err = fmt.Errorf("empty embedding for chunk %s", chunks[i].ID)
					break
				}
			}
		}
		if err == nil {
			return fill(vecs, attempts, nil)
		}
		if attempts >= p.RetryOptions.MaxAttempts {
			return fill(nil, attempts, err)
		}
		p.Logger.Warn("embedding batch failed, retrying", "chunks", len(chunks), "attempt", attempts, "error", err)
		// jittered backoff
		delay := p.RetryOptions.BaseDelay * time.Duration(attempts)
		if p.RetryOptions.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(p.RetryOptions.Jitter)))
		}
		select {
		case <-ctx.Done():
			return fill(nil, attempts, ctx.Err())
		case <-time.After(delay):
		}
	}
}

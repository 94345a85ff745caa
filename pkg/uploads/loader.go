package uploads

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxFileBytes caps a single upload.
const DefaultMaxFileBytes = 32 << 20

// PDFLoader extracts one Document per page with text.
type PDFLoader struct {
	MaxBytes    int64
	Concurrency int
}

// Load parses f and returns its non-empty pages in order.
func (l PDFLoader) Load(ctx context.Context, f File) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	max := l.MaxBytes
	if max <= 0 {
		max = DefaultMaxFileBytes
	}
	if int64(len(f.Data)) > max {
		return nil, &FileError{Name: f.Name, Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(f.Data), max)}
	}
	docs, err := extractPages(f)
	if err != nil {
		return nil, &FileError{Name: f.Name, Err: err}
	}
	if len(docs) == 0 {
		return nil, &FileError{Name: f.Name, Err: ErrNoText}
	}
	return docs, nil
}

func extractPages(f File) (docs []Document, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	rdr, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := rdr.NumPage()
	for i := 1; i <= n; i++ {
		pg := rdr.Page(i)
		if pg.V.IsNull() {
			continue
		}
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			// Image-only or problematic page.
			continue
		}
		if strings.TrimSpace(txt) == "" {
			continue
		}
		docs = append(docs, Document{Source: f.Name, Page: i, Text: txt})
	}
	return docs, nil
}

// LoadResult is the outcome of loading one file.
type LoadResult struct {
	File string
	Docs []Document
	Err  error
}

// LoadAll loads files concurrently; results keep the input order and carry
// per-file errors instead of aborting the batch.
func (l PDFLoader) LoadAll(ctx context.Context, files []File) ([]LoadResult, error) {
	limit := l.Concurrency
	if limit <= 0 {
		limit = 4
	}
	results := make([]LoadResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			docs, err := l.Load(gctx, f)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = LoadResult{File: f.Name, Docs: docs, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Package index stores chunk embeddings under a single named vector index and
// answers nearest-neighbour queries against it.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultName is the process-wide index every upload overwrites.
const DefaultName = "uploaded_vectors"

// MetricCosine is the only supported similarity metric.
const MetricCosine = "cosine"

var (
	// ErrIndexNotFound is returned when nothing has been indexed yet.
	ErrIndexNotFound = errors.New("index not found")
	// ErrEmbeddingMismatch is returned when a query vector was produced by a
	// different embedding model or has a different dimensionality.
	ErrEmbeddingMismatch = errors.New("embedding does not match index")
)

// Manifest describes a built index.
type Manifest struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Metric     string    `json:"metric"`
	ChunkCount int       `json:"chunk_count"`
	BuiltAt    time.Time `json:"built_at"`
}

// Entry is one embedded chunk.
type Entry struct {
	ID       string            `json:"id"`
	Position int               `json:"position"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"vector"`
}

// Result is a scored entry; higher Score means more similar.
type Result struct {
	Entry
	Score float64 `json:"score"`
}

// Store is a durable backend. Replace must be atomic: readers observe either
// the previous index or the new one, never a mix.
type Store interface {
	Replace(ctx context.Context, m Manifest, entries []Entry) error
	Manifest(ctx context.Context, name string) (Manifest, error)
	Search(ctx context.Context, name string, vec []float32, k int) ([]Result, error)
	Close() error
}

// Query is a nearest-neighbour request.
type Query struct {
	Vector []float32
	Model  string
	K      int
}

// Index owns the named index and serializes rebuilds against searches.
type Index struct {
	name  string
	store Store
	mu    sync.RWMutex
	now   func() time.Time
}

func New(store Store, name string) *Index {
	if name == "" {
		name = DefaultName
	}
	return &Index{name: name, store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (ix *Index) Name() string { return ix.name }

func (ix *Index) Store() Store { return ix.store }

// Replace discards the current contents and stores entries in their place.
func (ix *Index) Replace(ctx context.Context, model string, entries []Entry) (Manifest, error) {
	if len(entries) == 0 {
		return Manifest{}, errors.New("index: no entries to store")
	}
	dims := len(entries[0].Vector)
	if dims == 0 {
		return Manifest{}, errors.New("index: empty embedding vector")
	}
	for i, e := range entries {
		if len(e.Vector) != dims {
			return Manifest{}, fmt.Errorf("index: entry %d has %d dimensions, want %d: %w", i, len(e.Vector), dims, ErrEmbeddingMismatch)
		}
	}
	m := Manifest{
		Name:       ix.name,
		Model:      model,
		Dimensions: dims,
		Metric:     MetricCosine,
		ChunkCount: len(entries),
		BuiltAt:    ix.now(),
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.store.Replace(ctx, m, entries); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Manifest returns the manifest of the current index.
func (ix *Index) Manifest(ctx context.Context) (Manifest, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.store.Manifest(ctx, ix.name)
}

// Search returns at most q.K entries ordered by descending similarity.
func (ix *Index) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.K <= 0 {
		return nil, nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, err := ix.store.Manifest(ctx, ix.name)
	if err != nil {
		return nil, err
	}
	if q.Model != "" && m.Model != "" && q.Model != m.Model {
		return nil, fmt.Errorf("index built with %q, query embedded with %q: %w", m.Model, q.Model, ErrEmbeddingMismatch)
	}
	if len(q.Vector) != m.Dimensions {
		return nil, fmt.Errorf("index has %d dimensions, query has %d: %w", m.Dimensions, len(q.Vector), ErrEmbeddingMismatch)
	}
	return ix.store.Search(ctx, ix.name, q.Vector, q.K)
}

func (ix *Index) Close() error { return ix.store.Close() }

package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func entry(pos int, source, content string, vec ...float32) Entry {
	return Entry{
		ID:       source + "#" + string(rune('a'+pos)),
		Position: pos,
		Content:  content,
		Source:   source,
		Metadata: map[string]string{"source": source},
		Vector:   vec,
	}
}

func TestIndexSearchNotFound(t *testing.T) {
	ix := New(NewMemoryStore(), "")
	if ix.Name() != DefaultName {
		t.Fatalf("expected default name %q, got %q", DefaultName, ix.Name())
	}
	_, err := ix.Search(context.Background(), Query{Vector: []float32{1, 0}, K: 2})
	if !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexSearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	ix := New(NewMemoryStore(), DefaultName)
	_, err := ix.Replace(ctx, "m", []Entry{
		entry(0, "a.pdf", "far", 0, 1),
		entry(1, "a.pdf", "near", 1, 0),
		entry(2, "b.pdf", "mid", 1, 1),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, Model: "m", K: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Content != "near" || got[1].Content != "mid" {
		t.Fatalf("unexpected order: %q, %q", got[0].Content, got[1].Content)
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("scores not descending: %f < %f", got[0].Score, got[1].Score)
	}
}

func TestIndexSearchFewerThanK(t *testing.T) {
	ctx := context.Background()
	ix := New(NewMemoryStore(), DefaultName)
	if _, err := ix.Replace(ctx, "m", []Entry{entry(0, "a.pdf", "only", 1, 0)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, K: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
}

func TestIndexTiesKeepPositionOrder(t *testing.T) {
	ctx := context.Background()
	ix := New(NewMemoryStore(), DefaultName)
	if _, err := ix.Replace(ctx, "m", []Entry{
		entry(2, "a.pdf", "third", 1, 0),
		entry(0, "a.pdf", "first", 1, 0),
		entry(1, "a.pdf", "second", 1, 0),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, K: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Content != want {
			t.Fatalf("result %d: want %q got %q", i, want, got[i].Content)
		}
	}
}

func TestIndexRejectsMismatchedQuery(t *testing.T) {
	ctx := context.Background()
	ix := New(NewMemoryStore(), DefaultName)
	if _, err := ix.Replace(ctx, "model-a", []Entry{entry(0, "a.pdf", "x", 1, 0)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, Model: "model-b", K: 1}); !errors.Is(err, ErrEmbeddingMismatch) {
		t.Fatalf("expected model mismatch, got %v", err)
	}
	if _, err := ix.Search(ctx, Query{Vector: []float32{1, 0, 0}, Model: "model-a", K: 1}); !errors.Is(err, ErrEmbeddingMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestIndexReplaceValidates(t *testing.T) {
	ix := New(NewMemoryStore(), DefaultName)
	if _, err := ix.Replace(context.Background(), "m", nil); err == nil {
		t.Fatal("expected error for empty entries")
	}
	_, err := ix.Replace(context.Background(), "m", []Entry{
		entry(0, "a.pdf", "x", 1, 0),
		entry(1, "a.pdf", "y", 1, 0, 0),
	})
	if !errors.Is(err, ErrEmbeddingMismatch) {
		t.Fatalf("expected ErrEmbeddingMismatch, got %v", err)
	}
	if _, err := ix.Manifest(context.Background()); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("failed replace must not create an index, got %v", err)
	}
}

func newSQLiteIndex(t *testing.T, dir string) (*Index, *SQLiteStore) {
	t.Helper()
	store, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, DefaultName), store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ix, store := newSQLiteIndex(t, dir)
	m, err := ix.Replace(ctx, "m", []Entry{entry(0, "doc.pdf", "hello", 0.5, 0.5)})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if m.ChunkCount != 1 || m.Dimensions != 2 || m.Metric != MetricCosine {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if _, err := os.Stat(filepath.Join(dir, SQLiteFile)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh store over the same directory sees the persisted index.
	reopened, _ := newSQLiteIndex(t, dir)
	got, err := reopened.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if got.Model != "m" || !got.BuiltAt.Equal(m.BuiltAt) {
		t.Fatalf("unexpected manifest after reopen %+v, want %+v", got, m)
	}
	results, err := reopened.Search(ctx, Query{Vector: []float32{1, 1}, Model: "m", K: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Source != "doc.pdf" || results[0].Metadata["source"] != "doc.pdf" {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].Vector[0] != 0.5 || results[0].Score < 0.999 {
		t.Fatalf("unexpected vector or score %+v", results[0])
	}
}

func TestSQLiteStoreReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	ix, _ := newSQLiteIndex(t, t.TempDir())
	if _, err := ix.Replace(ctx, "m", []Entry{entry(0, "a.pdf", "old", 1, 0), entry(1, "a.pdf", "old too", 0, 1)}); err != nil {
		t.Fatalf("Replace a: %v", err)
	}
	if _, err := ix.Replace(ctx, "m", []Entry{entry(0, "b.pdf", "new", 1, 0)}); err != nil {
		t.Fatalf("Replace b: %v", err)
	}
	got, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, K: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Source != "b.pdf" {
		t.Fatalf("expected only b.pdf content, got %+v", got)
	}
}

func TestSQLiteStoreFailedReplaceKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	ix, _ := newSQLiteIndex(t, t.TempDir())
	if _, err := ix.Replace(ctx, "m", []Entry{entry(0, "a.pdf", "old", 1, 0)}); err != nil {
		t.Fatalf("Replace a: %v", err)
	}
	// Duplicate ids violate the primary key halfway through the insert.
	dup := entry(0, "b.pdf", "new", 1, 0)
	if _, err := ix.Replace(ctx, "other", []Entry{dup, dup}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	m, err := ix.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.Model != "m" || m.ChunkCount != 1 {
		t.Fatalf("manifest changed by failed replace: %+v", m)
	}
	got, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, Model: "m", K: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Source != "a.pdf" {
		t.Fatalf("expected previous index intact, got %+v", got)
	}
}

func TestSQLiteStoreKeepsIndexesApart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	first, second := New(store, "first"), New(store, "second")
	if _, err := first.Replace(ctx, "m", []Entry{entry(0, "a.pdf", "a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Replace(ctx, "m", []Entry{entry(0, "b.pdf", "b", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	got, err := first.Search(ctx, Query{Vector: []float32{1, 0}, K: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Source != "a.pdf" {
		t.Fatalf("indexes leaked into each other: %+v", got)
	}
}

func TestSQLiteStoreNotFound(t *testing.T) {
	ix, _ := newSQLiteIndex(t, t.TempDir())
	if _, err := ix.Search(context.Background(), Query{Vector: []float32{1}, K: 1}); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestConcurrentReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	ix := New(NewMemoryStore(), DefaultName)
	if _, err := ix.Replace(ctx, "m", []Entry{entry(0, "a.pdf", "a", 1, 0)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			src := "a.pdf"
			if i%2 == 1 {
				src = "b.pdf"
			}
			_, _ = ix.Replace(ctx, "m", []Entry{entry(0, src, src, 1, 0), entry(1, src, src, 0, 1)})
		}(i)
		go func() {
			defer wg.Done()
			got, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, K: 2})
			if err != nil {
				t.Errorf("Search: %v", err)
				return
			}
			for _, r := range got {
				if r.Source != got[0].Source {
					t.Errorf("mixed index contents: %+v", got)
				}
			}
		}()
	}
	wg.Wait()
}

func TestCosineSimilarity(t *testing.T) {
	if s := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); s < 0.999 {
		t.Fatalf("identical vectors should score 1, got %f", s)
	}
	if s := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); s != 0 {
		t.Fatalf("orthogonal vectors should score 0, got %f", s)
	}
	if s := CosineSimilarity([]float32{1}, []float32{1, 0}); s != 0 {
		t.Fatalf("mismatched vectors should score 0, got %f", s)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "cassandra"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	ix, err := Open(context.Background(), Options{Backend: "sqlite", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer ix.Close()
	if ix.Name() != DefaultName {
		t.Fatalf("unexpected name %q", ix.Name())
	}
}

func TestFloatEmbeddingConversions(t *testing.T) {
	in := []float32{0.25, -1, 3}
	out := float32Embedding(float64Embedding(in))
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("conversion mismatch at %d: %v vs %v", i, in[i], out[i])
		}
	}
}

func TestCloseNilStores(t *testing.T) {
	var ps *PostgresStore
	if err := ps.Close(); err != nil {
		t.Fatalf("nil postgres close: %v", err)
	}
	var ms *MongoStore
	if err := ms.Close(); err != nil {
		t.Fatalf("nil mongo close: %v", err)
	}
	var ns *Neo4jStore
	if err := ns.Close(); err != nil {
		t.Fatalf("nil neo4j close: %v", err)
	}
	var ss *SQLiteStore
	if err := ss.Close(); err != nil {
		t.Fatalf("nil sqlite close: %v", err)
	}
}

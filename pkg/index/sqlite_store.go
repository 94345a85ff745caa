package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteFile is the database file created inside the index directory.
const SQLiteFile = "vectors.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifests (
	name        TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	dimensions  INTEGER NOT NULL,
	metric      TEXT NOT NULL,
	chunk_count INTEGER NOT NULL,
	built_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	index_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	position   INTEGER NOT NULL,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	PRIMARY KEY (index_name, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_index_name ON chunks(index_name);
`

// SQLiteStore persists indexes in a local SQLite database. Searches score
// every chunk of the index in process.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) <dir>/vectors.db.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		return nil, errors.New("sqlite store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dir, SQLiteFile)
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Replace deletes the previous chunks, inserts the new ones and upserts the
// manifest in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, m Manifest, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE index_name = ?`, m.Name); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (index_name, id, position, content, source, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		emb, err := json.Marshal(e.Vector)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, m.Name, e.ID, e.Position, e.Content, e.Source, string(meta), emb); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", e.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO manifests (name, model, dimensions, metric, chunk_count, built_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			model = excluded.model,
			dimensions = excluded.dimensions,
			metric = excluded.metric,
			chunk_count = excluded.chunk_count,
			built_at = excluded.built_at
	`, m.Name, m.Model, m.Dimensions, m.Metric, m.ChunkCount, m.BuiltAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Manifest(ctx context.Context, name string) (Manifest, error) {
	m := Manifest{Name: name}
	var builtAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT model, dimensions, metric, chunk_count, built_at
		FROM manifests WHERE name = ?
	`, name).Scan(&m.Model, &m.Dimensions, &m.Metric, &m.ChunkCount, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, ErrIndexNotFound
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	if m.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt); err != nil {
		return Manifest{}, fmt.Errorf("decoding built_at: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) Search(ctx context.Context, name string, vec []float32, k int) ([]Result, error) {
	if _, err := s.Manifest(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, content, source, metadata, embedding
		FROM chunks WHERE index_name = ?
	`, name)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			meta string
			emb  []byte
		)
		if err := rows.Scan(&e.ID, &e.Position, &e.Content, &e.Source, &meta, &emb); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal(emb, &e.Vector); err != nil {
			return nil, fmt.Errorf("decoding embedding of %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(vec, entries, k), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

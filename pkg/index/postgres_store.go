package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS docqa_manifests (
    name        TEXT PRIMARY KEY,
    model       TEXT NOT NULL,
    dimensions  INT NOT NULL,
    metric      TEXT NOT NULL,
    chunk_count INT NOT NULL,
    built_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS docqa_chunks (
    index_name TEXT NOT NULL,
    id         TEXT NOT NULL,
    position   INT NOT NULL,
    content    TEXT NOT NULL,
    source     TEXT NOT NULL,
    metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding  vector NOT NULL,
    PRIMARY KEY (index_name, id)
);
CREATE INDEX IF NOT EXISTS docqa_chunks_index_name_idx ON docqa_chunks (index_name);
`

// PostgresStore keeps indexes in Postgres with pgvector.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects, ensures the vector extension and schema exist and
// registers pgvector types on every pooled connection.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, errors.New("postgres dsn is required")
	}
	boot, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	_, err = boot.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	boot.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// Replace swaps the index contents inside one transaction.
func (ps *PostgresStore) Replace(ctx context.Context, m Manifest, entries []Entry) error {
	tx, err := ps.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM docqa_chunks WHERE index_name = $1`, m.Name); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`
            INSERT INTO docqa_chunks (index_name, id, position, content, source, metadata, embedding)
            VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
			m.Name, e.ID, e.Position, e.Content, e.Source, string(meta), pgvector.NewVector(e.Vector))
	}
	br := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
        INSERT INTO docqa_manifests (name, model, dimensions, metric, chunk_count, built_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (name) DO UPDATE SET
            model = EXCLUDED.model,
            dimensions = EXCLUDED.dimensions,
            metric = EXCLUDED.metric,
            chunk_count = EXCLUDED.chunk_count,
            built_at = EXCLUDED.built_at`,
		m.Name, m.Model, m.Dimensions, m.Metric, m.ChunkCount, m.BuiltAt)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return tx.Commit(ctx)
}

func (ps *PostgresStore) Manifest(ctx context.Context, name string) (Manifest, error) {
	var m Manifest
	err := ps.DB.QueryRow(ctx, `
        SELECT name, model, dimensions, metric, chunk_count, built_at
        FROM docqa_manifests WHERE name = $1`, name).
		Scan(&m.Name, &m.Model, &m.Dimensions, &m.Metric, &m.ChunkCount, &m.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Manifest{}, ErrIndexNotFound
	}
	if err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Search orders by cosine distance; Score is reported as similarity.
func (ps *PostgresStore) Search(ctx context.Context, name string, vec []float32, k int) ([]Result, error) {
	if _, err := ps.Manifest(ctx, name); err != nil {
		return nil, err
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT id, position, content, source, metadata, embedding, 1 - (embedding <=> $2) AS score
        FROM docqa_chunks
        WHERE index_name = $1
        ORDER BY embedding <=> $2, position
        LIMIT $3`, name, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r    Result
			meta []byte
			emb  pgvector.Vector
		)
		if err := rows.Scan(&r.ID, &r.Position, &r.Content, &r.Source, &meta, &emb, &r.Score); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		r.Vector = emb.Slice()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Same tie order as the in-process backends.
	sortResults(results)
	return results, nil
}

func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

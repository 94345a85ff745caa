package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore keeps chunks as (:DocqaChunk) nodes grouped under a (:DocqaIndex).
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jStore(ctx context.Context, uri, user, password, database string) (*Neo4jStore, error) {
	if uri == "" {
		return nil, errors.New("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

// Replace deletes and recreates the index inside one write transaction.
func (s *Neo4jStore) Replace(ctx context.Context, m Manifest, entries []Entry) error {
	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, map[string]any{
			"id":        e.ID,
			"position":  int64(e.Position),
			"content":   e.Content,
			"source":    e.Source,
			"metadata":  string(meta),
			"embedding": float64Embedding(e.Vector),
		})
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (c:DocqaChunk {index: $name}) DETACH DELETE c`, map[string]any{"name": m.Name}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `
            UNWIND $rows AS row
            CREATE (c:DocqaChunk)
            SET c = row, c.index = $name`, map[string]any{"name": m.Name, "rows": rows}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
            MERGE (m:DocqaIndex {name: $name})
            SET m.model = $model, m.dimensions = $dimensions, m.metric = $metric,
                m.chunk_count = $chunk_count, m.built_at = $built_at`, map[string]any{
			"name":        m.Name,
			"model":       m.Model,
			"dimensions":  int64(m.Dimensions),
			"metric":      m.Metric,
			"chunk_count": int64(m.ChunkCount),
			"built_at":    m.BuiltAt.UTC().Format(time.RFC3339Nano),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4j: replace index: %w", err)
	}
	return nil
}

func (s *Neo4jStore) Manifest(ctx context.Context, name string) (Manifest, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, `
        MATCH (m:DocqaIndex {name: $name})
        RETURN m.model AS model, m.dimensions AS dimensions, m.metric AS metric,
               m.chunk_count AS chunk_count, m.built_at AS built_at`,
		map[string]any{"name": name}, neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return Manifest{}, err
	}
	if len(res.Records) == 0 {
		return Manifest{}, ErrIndexNotFound
	}
	rec := res.Records[0]
	m := Manifest{
		Name:       name,
		Model:      recordString(rec, "model"),
		Dimensions: int(recordInt(rec, "dimensions")),
		Metric:     recordString(rec, "metric"),
		ChunkCount: int(recordInt(rec, "chunk_count")),
	}
	if ts := recordString(rec, "built_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			m.BuiltAt = t
		}
	}
	return m, nil
}

func (s *Neo4jStore) Search(ctx context.Context, name string, vec []float32, k int) ([]Result, error) {
	if _, err := s.Manifest(ctx, name); err != nil {
		return nil, err
	}
	res, err := neo4j.ExecuteQuery(ctx, s.driver, `
        MATCH (c:DocqaChunk {index: $name})
        WITH c, vector.similarity.cosine(c.embedding, $vec) AS score
        RETURN c.id AS id, c.position AS position, c.content AS content, c.source AS source,
               c.metadata AS metadata, c.embedding AS embedding, score
        ORDER BY score DESC, position ASC
        LIMIT $k`,
		map[string]any{"name": name, "vec": float64Embedding(vec), "k": int64(k)},
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(res.Records))
	for _, rec := range res.Records {
		r := Result{
			Entry: Entry{
				ID:       recordString(rec, "id"),
				Position: int(recordInt(rec, "position")),
				Content:  recordString(rec, "content"),
				Source:   recordString(rec, "source"),
				Vector:   recordVector(rec, "embedding"),
			},
			Score: recordFloat(rec, "score"),
		}
		if meta := recordString(rec, "metadata"); meta != "" {
			if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Neo4jStore) Close() error {
	if s == nil || s.driver == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return s.driver.Close(ctx)
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func recordFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func recordVector(rec *neo4j.Record, key string) []float32 {
	v, _ := rec.Get(key)
	items, _ := v.([]any)
	out := make([]float32, 0, len(items))
	for _, it := range items {
		if f, ok := it.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

package index

import (
	"context"
	"fmt"
	"strings"
)

// Options select a backend.
type Options struct {
	Backend       string
	Dir           string
	Name          string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
}

// Open builds the configured backend and wraps it in an Index.
func Open(ctx context.Context, opts Options) (*Index, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "sqlite":
		store, err = NewSQLiteStore(opts.Dir)
	case "memory":
		store = NewMemoryStore()
	case "postgres", "pgvector":
		store, err = NewPostgresStore(ctx, opts.PostgresDSN)
	case "mongo", "mongodb":
		store, err = NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase)
	case "neo4j":
		store, err = NewNeo4jStore(ctx, opts.Neo4jURI, opts.Neo4jUser, opts.Neo4jPassword, opts.Neo4jDatabase)
	default:
		return nil, fmt.Errorf("unknown index backend: %s", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s index: %w", opts.Backend, err)
	}
	return New(store, opts.Name), nil
}

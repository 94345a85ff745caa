package docqa

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Protocol-Lattice/docqa/pkg/agent"
	"github.com/Protocol-Lattice/docqa/pkg/config"
	"github.com/Protocol-Lattice/docqa/pkg/embed"
	"github.com/Protocol-Lattice/docqa/pkg/index"
	"github.com/Protocol-Lattice/docqa/pkg/models"
	"github.com/Protocol-Lattice/docqa/pkg/tools"
	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

// New builds a Service from cfg: chat model, embedder, index backend,
// retrieval tool, answer agent and ingestor.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{Logger: logger}
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			svc.closers = append(svc.closers, c.Close)
		}
	}
	fail := func(err error) (*Service, error) {
		_ = svc.Close()
		return nil, err
	}

	chat, err := models.NewChatModel(ctx, models.Options{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fail(fmt.Errorf("chat model: %w", err))
	}
	track(chat)
	chat = models.WithRetry(chat, models.RetryOptions{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Jitter:      cfg.Retry.Jitter,
	}, logger)

	base, err := embed.New(ctx, embed.Options{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		CacheDir: cfg.Embedding.CacheDir,
	})
	if err != nil {
		return fail(fmt.Errorf("embedder: %w", err))
	}
	track(base)
	// The ingest pipeline retries on its own; queries retry here.
	ingestEmbedder := embed.NewResilient(base, embed.ResilientOptions{
		MaxAttempts:       1,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	}, logger)
	queryEmbedder := embed.NewCached(embed.NewResilient(base, embed.ResilientOptions{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.Retry.BaseDelay,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	}, logger), cfg.Embedding.QueryCacheSize, cfg.Embedding.QueryCacheTTL)

	ix, err := index.Open(ctx, IndexOptions(cfg))
	if err != nil {
		return fail(err)
	}
	track(ix)

	retriever := &tools.Retriever{Embedder: queryEmbedder, Index: ix, K: cfg.Retrieval.TopK, Logger: logger}
	svc.Agent, err = agent.New(agent.Options{Model: chat, Tools: []agent.Tool{retriever}, Logger: logger})
	if err != nil {
		return fail(err)
	}

	var middlewares []uploads.Middleware
	if cfg.Ingest.RedactPII {
		middlewares = append(middlewares, uploads.PIIRedactor{})
	}
	svc.Ingestor = &uploads.Ingestor{
		Loader:  uploads.PDFLoader{MaxBytes: cfg.Ingest.MaxFileBytes, Concurrency: cfg.Ingest.LoadParallel},
		Chunker: uploads.CharacterChunker{Size: cfg.Ingest.ChunkSize, Overlap: cfg.Ingest.ChunkOverlap},
		Pipeline: uploads.Pipeline{
			Embedder:    ingestEmbedder,
			Middlewares: middlewares,
			BatchSize:   cfg.Ingest.BatchSize,
			WorkerCount: cfg.Ingest.Workers,
			RetryOptions: uploads.RetryOptions{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseDelay:   cfg.Retry.BaseDelay,
				Jitter:      cfg.Retry.Jitter,
			},
			Logger: logger,
		},
		Index:       ix,
		SkipInvalid: cfg.Ingest.SkipInvalid,
		Logger:      logger,
	}
	logger.Info("docqa ready",
		"llm", chat.Name(),
		"embedding", base.Model(),
		"index_backend", cfg.Index.Backend,
		"index", ix.Name(),
	)
	return svc, nil
}

// IndexOptions maps the index section of cfg onto index.Options.
func IndexOptions(cfg config.Config) index.Options {
	return index.Options{
		Backend:       cfg.Index.Backend,
		Dir:           cfg.Index.Dir,
		Name:          cfg.Index.Name,
		PostgresDSN:   cfg.Index.Postgres.DSN,
		MongoURI:      cfg.Index.Mongo.URI,
		MongoDatabase: cfg.Index.Mongo.Database,
		Neo4jURI:      cfg.Index.Neo4j.URI,
		Neo4jUser:     cfg.Index.Neo4j.User,
		Neo4jPassword: cfg.Index.Neo4j.Password,
		Neo4jDatabase: cfg.Index.Neo4j.Database,
	}
}

// Package config loads docqa settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "docqa.yaml"

// LLMConfig selects the chat model.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
}

// EmbeddingConfig selects the embedding provider. It must stay the same
// between ingestion and questions.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	CacheDir          string        `yaml:"cache_dir"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	QueryCacheSize    int           `yaml:"query_cache_size"`
	QueryCacheTTL     time.Duration `yaml:"query_cache_ttl"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend  string         `yaml:"backend"`
	Dir      string         `yaml:"dir"`
	Name     string         `yaml:"name"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
}

// IngestConfig controls loading, chunking and embedding of uploads.
type IngestConfig struct {
	ChunkSize    int   `yaml:"chunk_size"`
	ChunkOverlap int   `yaml:"chunk_overlap"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	SkipInvalid  bool  `yaml:"skip_invalid"`
	RedactPII    bool  `yaml:"redact_pii"`
	Workers      int   `yaml:"workers"`
	BatchSize    int   `yaml:"batch_size"`
	LoadParallel int   `yaml:"load_parallel"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// RetryConfig applies to model and embedding calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Jitter      time.Duration `yaml:"jitter"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Retry     RetryConfig     `yaml:"retry"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM:       LLMConfig{Provider: "gemini", Model: "gemini-2.0-flash", Temperature: 0.3, MaxTokens: 1024},
		Embedding: EmbeddingConfig{Provider: "gemini", Model: "embedding-001", CacheDir: ".fastembed", QueryCacheSize: 256, QueryCacheTTL: time.Hour},
		Index: IndexConfig{
			Backend: "sqlite",
			Dir:     "vectors",
			Name:    "uploaded_vectors",
			Mongo:   MongoConfig{Database: "docqa"},
			Neo4j:   Neo4jConfig{User: "neo4j", Database: "neo4j"},
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			MaxFileBytes: 32 << 20,
			Workers:      4,
			BatchSize:    32,
			LoadParallel: 4,
		},
		Retrieval: RetrievalConfig{TopK: 2},
		Retry:     RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, Jitter: 100 * time.Millisecond},
		Server: ServerConfig{
			Addr:            ":3000",
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  128 << 20,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env, then the YAML file at path (or DefaultPath when path is
// empty and that file exists), then environment overrides. A missing
// explicit path is an error; a missing default file is not.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.LLM.Provider, "DOCQA_PROVIDER")
	set(&c.LLM.Model, "DOCQA_CHAT_MODEL")
	set(&c.Embedding.Provider, "DOCQA_EMBED_PROVIDER")
	set(&c.Embedding.Model, "DOCQA_EMBED_MODEL")
	set(&c.Index.Backend, "DOCQA_INDEX_BACKEND")
	set(&c.Index.Postgres.DSN, "DOCQA_POSTGRES_DSN")
	set(&c.Index.Mongo.URI, "DOCQA_MONGO_URI")
	set(&c.Index.Neo4j.URI, "DOCQA_NEO4J_URI")
	set(&c.Index.Neo4j.Password, "DOCQA_NEO4J_PASSWORD")
	set(&c.Server.Addr, "DOCQA_ADDR")
	set(&c.Log.Level, "DOCQA_LOG_LEVEL")

	if c.LLM.APIKey == "" {
		set(&c.LLM.APIKey, providerKeys(c.LLM.Provider)...)
	}
	if c.Embedding.APIKey == "" {
		set(&c.Embedding.APIKey, providerKeys(c.Embedding.Provider)...)
	}
	if strings.EqualFold(c.LLM.Provider, "ollama") && c.LLM.BaseURL == "" {
		set(&c.LLM.BaseURL, "OLLAMA_HOST")
	}
	if strings.EqualFold(c.Embedding.Provider, "ollama") && c.Embedding.BaseURL == "" {
		set(&c.Embedding.BaseURL, "OLLAMA_HOST")
	}
}

func providerKeys(provider string) []string {
	switch strings.ToLower(provider) {
	case "gemini", "google", "vertex", "vertexai":
		return []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	case "openai":
		return []string{"OPENAI_API_KEY"}
	case "anthropic", "claude":
		return []string{"ANTHROPIC_API_KEY"}
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if c.Embedding.Provider == "" {
		errs = append(errs, errors.New("embedding.provider is required"))
	}
	if c.Index.Name == "" {
		errs = append(errs, errors.New("index.name is required"))
	}
	switch strings.ToLower(c.Index.Backend) {
	case "", "sqlite":
		if c.Index.Dir == "" {
			errs = append(errs, errors.New("index.dir is required for the sqlite backend"))
		}
	case "memory":
	case "postgres", "pgvector":
		if c.Index.Postgres.DSN == "" {
			errs = append(errs, errors.New("index.postgres.dsn is required"))
		}
	case "mongo", "mongodb":
		if c.Index.Mongo.URI == "" {
			errs = append(errs, errors.New("index.mongo.uri is required"))
		}
	case "neo4j":
		if c.Index.Neo4j.URI == "" {
			errs = append(errs, errors.New("index.neo4j.uri is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q", c.Index.Backend))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("ingest.chunk_size must be positive"))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Embedding.QueryCacheSize < 0 {
		errs = append(errs, errors.New("embedding.query_cache_size must not be negative"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("retrieval.top_k must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log.level %q", s)
}

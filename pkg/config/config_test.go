package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Index.Name != "uploaded_vectors" || cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.ChunkOverlap != 200 || cfg.Retrieval.TopK != 2 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Server.Addr != ":3000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Index.Backend != "sqlite" || cfg.Index.Dir == "" {
		t.Fatalf("expected a local sqlite index by default, got %+v", cfg.Index)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	data := `
llm:
  provider: openai
  model: gpt-4o-mini
index:
  backend: memory
retry:
  base_delay: 50ms
server:
  request_timeout: 30s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("unexpected llm config %+v", cfg.LLM)
	}
	if cfg.Retry.BaseDelay != 50*time.Millisecond || cfg.Server.RequestTimeout != 30*time.Second {
		t.Fatalf("durations not decoded: %v %v", cfg.Retry.BaseDelay, cfg.Server.RequestTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Ingest.ChunkSize != 1000 || cfg.Embedding.Provider != "gemini" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := "ingest:\n  chunk_size: 100\n  chunk_overlap: 100\nretrieval:\n  top_k: 0\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "chunk_overlap") || !strings.Contains(err.Error(), "top_k") {
		t.Fatalf("expected every problem reported, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DOCQA_PROVIDER":       "anthropic",
		"DOCQA_EMBED_PROVIDER": "ollama",
		"DOCQA_INDEX_BACKEND":  "postgres",
		"DOCQA_POSTGRES_DSN":   "postgres://localhost/docqa",
		"ANTHROPIC_API_KEY":    "ak",
		"OLLAMA_HOST":          "http://ollama:11434",
		"DOCQA_ADDR":           ":8080",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.APIKey != "ak" {
		t.Fatalf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.BaseURL != "http://ollama:11434" || cfg.Embedding.APIKey != "" {
		t.Fatalf("unexpected embedding %+v", cfg.Embedding)
	}
	if cfg.Index.Backend != "postgres" || cfg.Index.Postgres.DSN == "" || cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGeminiKeyFallback(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(func(k string) string {
		if k == "GEMINI_API_KEY" {
			return "g-key"
		}
		return ""
	})
	if cfg.LLM.APIKey != "g-key" || cfg.Embedding.APIKey != "g-key" {
		t.Fatalf("expected GEMINI_API_KEY fallback, got %q %q", cfg.LLM.APIKey, cfg.Embedding.APIKey)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output %q", out)
	}
	if err := (Config{Log: LogConfig{Level: "loud"}}).Validate(); err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

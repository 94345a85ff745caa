// Package embed maps text to fixed-dimension vectors through pluggable providers.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Embedder is a pluggable text-embedding provider. Model identifies the
// embedding space; vectors from different models must never be compared.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// BatchEmbedder is implemented by providers with a native batch endpoint.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// Options select and configure a provider.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	CacheDir string
}

// New builds the embedder named by opts.Provider.
func New(ctx context.Context, opts Options) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "gemini", "google", "vertex", "vertexai":
		return NewGeminiEmbedder(ctx, opts.Model, opts.APIKey)
	case "openai":
		return NewOpenAIEmbedder(opts.Model, opts.APIKey, opts.BaseURL), nil
	case "ollama":
		return NewOllamaEmbedder(opts.Model, opts.BaseURL)
	case "fastembed":
		return NewFastEmbedder(opts.Model, opts.CacheDir)
	case "dummy":
		return DummyEmbedder{}, nil
	case "claude", "anthropic":
		return nil, fmt.Errorf("%s: %w", opts.Provider, ErrNotSupported)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

// EmbedAll embeds texts with the native batch endpoint when available.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if b, ok := e.(BatchEmbedder); ok {
		vecs, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(texts))
		}
		return vecs, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---------- Dummy ----------

// DummyDimensions is the size of DummyEmbedder vectors.
const DummyDimensions = 768

// DummyEmbedder hashes words into a bag-of-words vector. It is deterministic,
// needs no network, and ranks passages sharing words with the query higher.
type DummyEmbedder struct{}

func (DummyEmbedder) Model() string { return "dummy-bow-768" }

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding returns the vector DummyEmbedder produces for text.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, DummyDimensions)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		var h uint32 = 2166136261
		for i := 0; i < len(word); i++ {
			h ^= uint32(word[i])
			h *= 16777619
		}
		vec[h%DummyDimensions]++
	}
	return vec
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}

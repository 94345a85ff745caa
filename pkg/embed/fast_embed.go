package embed

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedder runs a local ONNX model; no API key needed.
type FastEmbedder struct {
	m    *fastembed.FlagEmbedding
	name string
	bs   int
}

func NewFastEmbedder(model, cacheDir string) (*FastEmbedder, error) {
	if model == "" {
		model = string(fastembed.BGESmallENV15)
	}
	if cacheDir == "" {
		cacheDir = ".fastembed"
	}
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    fastembed.EmbeddingModel(model),
		CacheDir: cacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed init: %w", err)
	}
	// Batch heuristic: keep it modest for desktop CPUs
	bs := 64
	if bs > 4*runtime.GOMAXPROCS(0) {
		bs = 4 * runtime.GOMAXPROCS(0)
	}
	return &FastEmbedder{m: m, name: model, bs: bs}, nil
}

func (e *FastEmbedder) Model() string { return "fastembed/" + e.name }

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}

// Embed embeds a single query string.
func (e *FastEmbedder) Embed(_ context.Context, q string) ([]float32, error) {
	return e.m.QueryEmbed(q)
}

// EmbedBatch embeds passages, adding the passage prefix if missing.
func (e *FastEmbedder) EmbedBatch(_ context.Context, docs []string) ([][]float32, error) {
	inputs := make([]string, len(docs))
	for i, d := range docs {
		if strings.HasPrefix(d, "passage:") {
			inputs[i] = d
		} else {
			inputs[i] = "passage: " + d
		}
	}
	out, err := e.m.PassageEmbed(inputs, e.bs)
	if err != nil {
		return nil, fmt.Errorf("passage embed: %w", err)
	}
	return out, nil
}

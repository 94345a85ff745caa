// Package tools holds the tools the answer agent can call.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/base"
	"github.com/universal-tool-calling-protocol/go-utcp/src/tools"

	"github.com/Protocol-Lattice/docqa/pkg/agent"
	"github.com/Protocol-Lattice/docqa/pkg/embed"
	"github.com/Protocol-Lattice/docqa/pkg/index"
	"github.com/Protocol-Lattice/docqa/pkg/models"
)

const (
	RetrieveName        = "retrieve"
	RetrieveDescription = "Retrieve information related to a query."
	DefaultTopK         = 2
)

// Retriever searches the uploaded documents for passages related to a query.
// It only reads the index.
type Retriever struct {
	Embedder embed.Embedder
	Index    *index.Index
	K        int
	Logger   *slog.Logger
}

// Retrieval is the formatted text handed to the model plus the results behind it.
type Retrieval struct {
	Text    string
	Results []index.Result
}

func (r *Retriever) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        RetrieveName,
		Description: RetrieveDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query describing the information needed.",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Retrieve embeds query with the ingest embedder and returns the top K chunks,
// most similar first. A missing index surfaces as index.ErrIndexNotFound.
func (r *Retriever) Retrieve(ctx context.Context, query string) (Retrieval, error) {
	k := r.K
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return Retrieval{}, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.Index.Search(ctx, index.Query{Vector: vec, Model: r.Embedder.Model(), K: k})
	if err != nil {
		return Retrieval{}, fmt.Errorf("search %s: %w", r.Index.Name(), err)
	}
	if r.Logger != nil {
		r.Logger.Debug("retrieved chunks", "query", query, "results", len(results))
	}
	return Retrieval{Text: Format(results), Results: results}, nil
}

// Format renders results as "Source: <source>\nContent: <text>" blocks joined by newlines.
func Format(results []index.Result) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, fmt.Sprintf("Source: %s\nContent: %s", res.Source, res.Content))
	}
	return strings.Join(parts, "\n")
}

func (r *Retriever) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	query, err := queryArgument(req.Arguments)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	out, err := r.Retrieve(ctx, query)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{Content: out.Text, Results: out.Results}, nil
}

func queryArgument(args map[string]any) (string, error) {
	raw, ok := args["query"]
	if !ok {
		return "", fmt.Errorf("%w: missing 'query'", agent.ErrInvalidArguments)
	}
	query, ok := raw.(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: 'query' must be a non-empty string", agent.ErrInvalidArguments)
	}
	return strings.TrimSpace(query), nil
}

// AsUTCPTool exposes the retriever as a UTCP tool with an in-process handler.
func (r *Retriever) AsUTCPTool() tools.Tool {
	return tools.Tool{
		Name:        "docqa." + RetrieveName,
		Description: RetrieveDescription,
		Provider: &base.BaseProvider{
			Name:         "docqa",
			ProviderType: base.ProviderCLI, // served in process by Handler
		},
		Inputs: tools.ToolInputOutputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query describing the information needed.",
				},
			},
			Required: []string{"query"},
		},
		Outputs: tools.ToolInputOutputSchema{
			Type: "object",
			Properties: map[string]any{
				"content": map[string]any{"type": "string"},
				"sources": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		// UTCP handlers receive a plain map instead of a context.Context.
		Handler: tools.ToolHandler(func(_ map[string]any, inputs map[string]any) (map[string]any, error) {
			query, err := queryArgument(inputs)
			if err != nil {
				return nil, err
			}
			out, err := r.Retrieve(context.Background(), query)
			if err != nil {
				return nil, err
			}
			sources := make([]string, 0, len(out.Results))
			for _, res := range out.Results {
				sources = append(sources, res.Source)
			}
			return map[string]any{"content": out.Text, "sources": sources}, nil
		}),
	}
}

package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/docqa/pkg/agent"
	"github.com/Protocol-Lattice/docqa/pkg/embed"
	"github.com/Protocol-Lattice/docqa/pkg/index"
)

func seededRetriever(t *testing.T) *Retriever {
	t.Helper()
	ix := index.New(index.NewMemoryStore(), index.DefaultName)
	e := embed.DummyEmbedder{}
	texts := []struct{ src, text string }{
		{"france.pdf", "The capital of France is Paris."},
		{"fruit.pdf", "Bananas grow in tropical climates."},
		{"geo.pdf", "France borders Spain and the capital sits on the Seine."},
	}
	var entries []index.Entry
	for i, tx := range texts {
		entries = append(entries, index.Entry{ID: tx.src, Position: i, Content: tx.text, Source: tx.src, Vector: embed.DummyEmbedding(tx.text)})
	}
	if _, err := ix.Replace(context.Background(), e.Model(), entries); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	return &Retriever{Embedder: e, Index: ix}
}

func TestRetrieveFormatsTopTwo(t *testing.T) {
	r := seededRetriever(t)
	out, err := r.Retrieve(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	if out.Results[0].Source != "france.pdf" {
		t.Fatalf("expected france.pdf first, got %s", out.Results[0].Source)
	}
	want := "Source: france.pdf\nContent: The capital of France is Paris.\n" +
		"Source: geo.pdf\nContent: France borders Spain and the capital sits on the Seine."
	if out.Text != want {
		t.Fatalf("unexpected text:\n%s", out.Text)
	}
}

func TestRetrieveWithoutIndex(t *testing.T) {
	r := &Retriever{Embedder: embed.DummyEmbedder{}, Index: index.New(index.NewMemoryStore(), "")}
	_, err := r.Retrieve(context.Background(), "anything")
	if !errors.Is(err, index.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestInvokeValidatesArguments(t *testing.T) {
	r := seededRetriever(t)
	for _, args := range []map[string]any{{}, {"query": 42}, {"query": "  "}} {
		if _, err := r.Invoke(context.Background(), agent.ToolRequest{Arguments: args}); !errors.Is(err, agent.ErrInvalidArguments) {
			t.Fatalf("expected ErrInvalidArguments for %v, got %v", args, err)
		}
	}
	resp, err := r.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"query": "bananas"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Results[0].Source != "fruit.pdf" || resp.Content == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRetrieveToolSpec(t *testing.T) {
	spec := (&Retriever{}).Spec()
	if spec.Name != "retrieve" || spec.Description != "Retrieve information related to a query." {
		t.Fatalf("unexpected spec %+v", spec)
	}
	req, _ := spec.Parameters["required"].([]string)
	if len(req) != 1 || req[0] != "query" {
		t.Fatalf("expected query to be required, got %v", spec.Parameters["required"])
	}
}

func TestAsUTCPTool(t *testing.T) {
	tool := seededRetriever(t).AsUTCPTool()
	if tool.Name != "docqa.retrieve" || tool.Handler == nil {
		t.Fatalf("unexpected tool %+v", tool)
	}
	out, err := tool.Handler(map[string]any{}, map[string]any{"query": "capital of France"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if content, _ := out["content"].(string); !strings.HasPrefix(content, "Source: france.pdf\nContent: ") {
		t.Fatalf("unexpected content %q", out["content"])
	}
	sources, _ := out["sources"].([]string)
	if len(sources) != 2 || sources[0] != "france.pdf" {
		t.Fatalf("unexpected sources %v", sources)
	}
	if _, err := tool.Handler(map[string]any{}, map[string]any{}); err == nil {
		t.Fatal("expected error for missing query")
	}
}

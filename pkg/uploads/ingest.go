package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Protocol-Lattice/docqa/pkg/index"
)

// Ingestor rebuilds the index from an upload batch: load, chunk, embed, replace.
type Ingestor struct {
	Loader   PDFLoader
	Chunker  Chunker
	Pipeline Pipeline
	Index    *index.Index
	// SkipInvalid drops unreadable files with a warning instead of failing
	// the whole batch.
	SkipInvalid bool
	Logger      *slog.Logger
	Now         func() time.Time
}

// Report summarizes a successful ingestion.
type Report struct {
	Files    int
	Pages    int
	Chunks   int
	Skipped  []string
	Manifest index.Manifest
}

// Ingest replaces the index with the contents of files. On any error the
// previous index is left untouched and the error is an *IngestionError.
func (ig *Ingestor) Ingest(ctx context.Context, files []File) (Report, error) {
	logger := ig.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var rep Report
	if ig.Index == nil || ig.Pipeline.Embedder == nil {
		return rep, &IngestionError{Stage: "setup", Err: errors.New("ingestor requires an index and an embedder")}
	}
	if len(files) == 0 {
		return rep, &IngestionError{Stage: "load", Err: errors.New("no files uploaded")}
	}
	chunker := ig.Chunker
	if chunker == nil {
		chunker = DefaultChunker()
	}
	now := time.Now
	if ig.Now != nil {
		now = ig.Now
	}

	loaded, err := ig.Loader.LoadAll(ctx, files)
	if err != nil {
		return rep, &IngestionError{Stage: "load", Err: err}
	}
	var (
		failures []error
		docs     []Document
	)
	for _, res := range loaded {
		if res.Err != nil {
			if ig.SkipInvalid {
				logger.Warn("skipping unreadable upload", "file", res.File, "error", res.Err)
				rep.Skipped = append(rep.Skipped, res.File)
				continue
			}
			failures = append(failures, res.Err)
			continue
		}
		rep.Files++
		docs = append(docs, res.Docs...)
	}
	if len(failures) > 0 {
		return Report{}, &IngestionError{Stage: "load", Err: errors.Join(failures...)}
	}
	rep.Pages = len(docs)

	ingestedAt := now()
	var chunks []Chunk
	for _, doc := range docs {
		parts, err := chunker.Chunk(doc)
		if err != nil {
			return Report{}, &IngestionError{Stage: "chunk", Err: fmt.Errorf("%s page %d: %w", doc.Source, doc.Page, err)}
		}
		for _, c := range parts {
			c.Position = len(chunks)
			c = c.WithProvenance(ingestedAt)
			c.ID = fmt.Sprintf("%05d-%s", c.Position, c.Metadata["checksum"][:16])
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return Report{}, &IngestionError{Stage: "chunk", Err: ErrNoText}
	}

	embedded, err := ig.Pipeline.Process(ctx, chunks)
	if err != nil {
		return Report{}, &IngestionError{Stage: "embed", Err: err}
	}
	entries := make([]index.Entry, 0, len(embedded))
	for _, ec := range embedded {
		if ec.Err != nil {
			return Report{}, &IngestionError{Stage: "embed", Err: fmt.Errorf("chunk %s (%s page %d): %w", ec.Chunk.ID, ec.Chunk.Source, ec.Chunk.Page, ec.Err)}
		}
		entries = append(entries, index.Entry{
			ID:       ec.Chunk.ID,
			Position: ec.Chunk.Position,
			Content:  ec.Chunk.Text,
			Source:   ec.Chunk.Source,
			Metadata: ec.Chunk.Metadata,
			Vector:   ec.Vector,
		})
	}

	manifest, err := ig.Index.Replace(ctx, ig.Pipeline.Embedder.Model(), entries)
	if err != nil {
		return Report{}, &IngestionError{Stage: "store", Err: err}
	}
	rep.Chunks = len(entries)
	rep.Manifest = manifest
	logger.Info("index rebuilt",
		"index", manifest.Name,
		"files", rep.Files,
		"pages", rep.Pages,
		"chunks", rep.Chunks,
		"skipped", len(rep.Skipped),
		"model", manifest.Model,
		"dimensions", manifest.Dimensions,
	)
	return rep, nil
}

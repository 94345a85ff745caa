package uploads

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// File is one uploaded file held in memory.
type File struct {
	Name string
	Data []byte
}

// Document is the extracted text of a single PDF page.
type Document struct {
	Source string
	Page   int
	Text   string
}

// Chunk is a bounded slice of a Document's text. Position orders chunks across
// a whole upload batch and is assigned at ingest time.
type Chunk struct {
	ID       string
	Source   string
	Page     int
	Index    int
	Position int
	Text     string
	Metadata map[string]string
}

// WithProvenance ensures provenance fields exist on the metadata map.
func (c Chunk) WithProvenance(now time.Time) Chunk {
	meta := make(map[string]string, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	if c.Source != "" {
		meta["source"] = c.Source
	}
	if c.Page > 0 {
		meta["page"] = strconv.Itoa(c.Page)
	}
	meta["chunk_index"] = strconv.Itoa(c.Index)
	if _, ok := meta["ingested_at"]; !ok {
		meta["ingested_at"] = now.UTC().Format(time.RFC3339Nano)
	}
	if _, ok := meta["checksum"]; !ok {
		meta["checksum"] = checksum(c.Text)
	}
	c.Metadata = meta
	return c
}

// checksum calculates a deterministic checksum for provenance tracking.
func checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Chunker splits a page into chunks that keep the page's source.
type Chunker interface {
	Chunk(doc Document) ([]Chunk, error)
}

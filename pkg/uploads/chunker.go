package uploads

import (
	"errors"
	"fmt"
)

// CharacterChunker cuts text into fixed rune windows that overlap by Overlap
// runes. It never looks at sentence or word boundaries.
type CharacterChunker struct {
	Size    int
	Overlap int
}

// DefaultChunker returns the 1000/200 chunker used for uploads.
func DefaultChunker() CharacterChunker {
	return CharacterChunker{Size: 1000, Overlap: 200}
}

func (c CharacterChunker) Validate() error {
	if c.Size <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.Overlap, c.Size)
	}
	return nil
}

func (c CharacterChunker) Chunk(doc Document) ([]Chunk, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil, nil
	}
	step := c.Size - c.Overlap
	out := make([]Chunk, 0, len(runes)/step+1)
	idx := 0
	for i := 0; i < len(runes); i += step {
		end := i + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Chunk{
			Source: doc.Source,
			Page:   doc.Page,
			Index:  idx,
			Text:   string(runes[i:end]),
		})
		idx++
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

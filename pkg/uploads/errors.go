package uploads

import (
	"errors"
	"fmt"
)

// ErrNoText is returned for PDFs without extractable text (scans, empty files).
var ErrNoText = errors.New("no extractable text")

// ErrTooLarge is returned for files above the configured size limit.
var ErrTooLarge = errors.New("file too large")

// FileError ties a load failure to the uploaded file name.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// IngestionError reports a failed upload batch. The previous index is intact.
type IngestionError struct {
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

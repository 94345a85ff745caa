// Package watch rebuilds the index whenever the PDFs in a directory change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

// RebuildFunc replaces the index with files.
type RebuildFunc func(ctx context.Context, files []uploads.File) error

// Watcher debounces file events in Dir and calls Rebuild with every PDF there.
// The index cannot be empty, so when the last PDF is removed nothing is
// rebuilt and the previous build keeps serving questions.
type Watcher struct {
	Dir      string
	Debounce time.Duration
	Rebuild  RebuildFunc
	Logger   *slog.Logger
}

// Run performs an initial build, then watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Rebuild == nil {
		return errors.New("watch: rebuild function is required")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}

	w.rebuild(ctx, logger)

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isPDF(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("pdf changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-timer.C:
			w.rebuild(ctx, logger)
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context, logger *slog.Logger) {
	files, err := ReadPDFs(w.Dir)
	if err != nil {
		logger.Error("read watched directory", "dir", w.Dir, "error", err)
		return
	}
	if len(files) == 0 {
		logger.Warn("no PDFs left in watched directory, index keeps its last build and may be stale", "dir", w.Dir)
		return
	}
	if err := w.Rebuild(ctx, files); err != nil {
		logger.Error("rebuild failed", "dir", w.Dir, "files", len(files), "error", err)
		return
	}
	logger.Info("rebuilt index from directory", "dir", w.Dir, "files", len(files))
}

// ReadPDFs loads every *.pdf file directly inside dir, sorted by name.
func ReadPDFs(dir string) ([]uploads.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var files []uploads.File
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, uploads.File{Name: e.Name(), Data: data})
	}
	return files, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

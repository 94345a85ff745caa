package watch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

func TestReadPDFs(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"b.pdf": "b", "a.PDF": "a", "notes.txt": "n"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}
	files, err := ReadPDFs(dir)
	if err != nil {
		t.Fatalf("ReadPDFs: %v", err)
	}
	if len(files) != 2 || files[0].Name != "a.PDF" || files[1].Name != "b.pdf" || string(files[1].Data) != "b" {
		t.Fatalf("unexpected files %+v", files)
	}
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "first.pdf"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		builds [][]string
	)
	rebuilt := make(chan struct{}, 10)
	w := &Watcher{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Rebuild: func(_ context.Context, files []uploads.File) error {
			var names []string
			for _, f := range files {
				names = append(names, f.Name)
			}
			mu.Lock()
			builds = append(builds, names)
			mu.Unlock()
			rebuilt <- struct{}{}
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitBuild := func() {
		t.Helper()
		select {
		case <-rebuilt:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for rebuild")
		}
	}
	waitBuild()
	if err := os.WriteFile(filepath.Join(dir, "second.pdf"), []byte("2"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitBuild()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(builds[0]) != 1 || builds[0][0] != "first.pdf" {
		t.Fatalf("unexpected initial build %v", builds[0])
	}
	last := builds[len(builds)-1]
	if len(last) != 2 || last[1] != "second.pdf" {
		t.Fatalf("expected both PDFs after change, got %v", last)
	}
}

func TestWatcherKeepsLastBuildWhenDirectoryEmpty(t *testing.T) {
	var logs bytes.Buffer
	called := false
	w := &Watcher{
		Dir:    t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
		Rebuild: func(context.Context, []uploads.File) error {
			called = true
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Fatal("rebuild must not run without PDFs")
	}
	if !strings.Contains(logs.String(), "may be stale") {
		t.Fatalf("expected stale index warning, got %q", logs.String())
	}
}

func TestWatcherRequiresRebuild(t *testing.T) {
	if err := (&Watcher{Dir: t.TempDir()}).Run(context.Background()); err == nil {
		t.Fatal("expected error without rebuild function")
	}
}

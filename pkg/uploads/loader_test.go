package uploads

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/docqa/internal/pdftest"
)

func TestPDFLoaderExtractsPages(t *testing.T) {
	f := File{Name: "france.pdf", Data: pdftest.Build("The capital of France is Paris.", "", "Lyon is in the south east.")}
	docs, err := PDFLoader{}.Load(context.Background(), f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 pages with text, got %d", len(docs))
	}
	if docs[0].Source != "france.pdf" || docs[0].Page != 1 || !strings.Contains(docs[0].Text, "capital of France") {
		t.Fatalf("unexpected first page %+v", docs[0])
	}
	if docs[1].Page != 3 {
		t.Fatalf("expected blank page to be skipped, got page %d", docs[1].Page)
	}
}

func TestPDFLoaderRejectsGarbage(t *testing.T) {
	_, err := PDFLoader{}.Load(context.Background(), File{Name: "notes.txt", Data: []byte("plain text, not a pdf")})
	var fe *FileError
	if !errors.As(err, &fe) || fe.Name != "notes.txt" {
		t.Fatalf("expected FileError for notes.txt, got %v", err)
	}
}

func TestPDFLoaderNoText(t *testing.T) {
	_, err := PDFLoader{}.Load(context.Background(), File{Name: "scan.pdf", Data: pdftest.Build("")})
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestPDFLoaderSizeLimit(t *testing.T) {
	data := pdftest.Build("hello")
	_, err := PDFLoader{MaxBytes: int64(len(data) - 1)}.Load(context.Background(), File{Name: "big.pdf", Data: data})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestLoadAllKeepsOrder(t *testing.T) {
	files := []File{
		{Name: "a.pdf", Data: pdftest.Build("alpha")},
		{Name: "bad.pdf", Data: []byte("nope")},
		{Name: "c.pdf", Data: pdftest.Build("gamma")},
	}
	results, err := PDFLoader{Concurrency: 2}.LoadAll(context.Background(), files)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	for i, f := range files {
		if results[i].File != f.Name {
			t.Fatalf("result %d: expected %s got %s", i, f.Name, results[i].File)
		}
	}
	if results[0].Err != nil || results[1].Err == nil || results[2].Err != nil {
		t.Fatalf("unexpected per-file errors: %v %v %v", results[0].Err, results[1].Err, results[2].Err)
	}
}

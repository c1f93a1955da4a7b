package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

func TestSaveAndOpen(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	if err := store.Save(context.Background(), "abc.pdf", "application/pdf", strings.NewReader("payload"), 7); err != nil {
		t.Fatalf("save: %v", err)
	}
	rc, err := store.Open(context.Background(), "abc.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "payload" {
		t.Fatalf("expected payload, got %q", body)
	}
}

func TestSaveRefusesOverwrite(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "abc.jpg", "image/jpeg", strings.NewReader("first"), 5); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err = store.Save(ctx, "abc.jpg", "image/jpeg", strings.NewReader("second"), 6)
	if !domain.IsKind(err, domain.ErrBlobExists) {
		t.Fatalf("expected blob exists error, got %v", err)
	}

	rc, _ := store.Open(ctx, "abc.jpg")
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "first" {
		t.Fatalf("expected original content to survive, got %q", body)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	if err := store.Save(context.Background(), "a.png", "image/png", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "a.png" {
		t.Fatalf("expected only the blob in %s, got %v", dir, entries)
	}
}

func TestOpenMissingBlob(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	_, err = store.Open(context.Background(), "missing.pdf")
	if !domain.IsKind(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected blob not found, got %v", err)
	}
}

func TestRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	err = store.Save(context.Background(), "../escape.pdf", "application/pdf", strings.NewReader("x"), 1)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

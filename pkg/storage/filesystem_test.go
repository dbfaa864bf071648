package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/JaimeStill/tally/pkg/storage"
)

func testStore(t *testing.T) storage.System {
	t.Helper()

	cfg := &storage.Config{
		Backend:  storage.BackendFilesystem,
		RootPath: t.TempDir(),
	}

	store, err := storage.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func TestFilesystemRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	content := []byte("%PDF-1.7 test content")

	if err := store.Upload(ctx, "2026/03/invoice.pdf", bytes.NewReader(content), "application/pdf"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	exists, err := store.Exists(ctx, "2026/03/invoice.pdf")
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v; want true", exists, err)
	}

	reader, err := store.Download(ctx, "2026/03/invoice.pdf")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer reader.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %q, want %q", got, content)
	}
}

func TestFilesystemDownloadMissing(t *testing.T) {
	store := testStore(t)

	_, err := store.Download(context.Background(), "nope.pdf")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFilesystemDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "doc.pdf", strings.NewReader("x"), "application/pdf"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Delete(ctx, "doc.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	exists, err := store.Exists(ctx, "doc.pdf")
	if err != nil || exists {
		t.Errorf("exists after delete = %v, %v; want false", exists, err)
	}

	if err := store.Delete(ctx, "doc.pdf"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "../escape.pdf", strings.NewReader("x"), ""); !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("traversal key = %v, want ErrInvalidKey", err)
	}
	if _, err := store.Download(ctx, ""); !errors.Is(err, storage.ErrEmptyKey) {
		t.Errorf("empty key = %v, want ErrEmptyKey", err)
	}
}

func TestUnknownBackend(t *testing.T) {
	cfg := &storage.Config{Backend: "s3"}

	if _, err := storage.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

package media_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"tunelock/internal/domain"
	"tunelock/internal/media"

	"github.com/google/uuid"
)

func TestFSCatalogResolveAndOpen(t *testing.T) {
	dir := t.TempDir()
	catalog := media.NewFSCatalog(dir)

	mediaID := uuid.New()
	data := []byte("0123456789abcdef")
	if err := os.WriteFile(filepath.Join(dir, mediaID.String()+".mp3"), data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	asset, err := catalog.Resolve(context.Background(), mediaID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if asset.Size != int64(len(data)) {
		t.Fatalf("size %d, want %d", asset.Size, len(data))
	}
	if asset.ContentType != "audio/mpeg" {
		t.Fatalf("content type %q", asset.ContentType)
	}

	body, err := catalog.Open(context.Background(), asset, 10)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer body.Close()
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data[10:]) {
		t.Fatalf("offset read returned %q", got)
	}
}

func TestFSCatalogUnknownMedia(t *testing.T) {
	catalog := media.NewFSCatalog(t.TempDir())
	if _, err := catalog.Resolve(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

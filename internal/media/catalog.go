// Package media is the boundary to the platform's media catalog. The DRM
// service never mutates catalog data; it only resolves a media id to a
// byte-addressable source.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tunelock/internal/domain"
)

// Asset describes one catalog entry well enough to serve it: a stable id, a
// byte source location, its size and the content type to ship.
type Asset struct {
	ID          domain.MediaID
	Path        string
	Size        int64
	ContentType string
}

type Catalog interface {
	// Resolve returns the asset for a media id, or domain.ErrNotFound.
	Resolve(ctx context.Context, mediaID domain.MediaID) (*Asset, error)
	// Open returns a reader positioned at offset into the asset's bytes.
	Open(ctx context.Context, asset *Asset, offset int64) (io.ReadCloser, error)
}

// FSCatalog serves assets from a directory laid out as <mediaID>.mp3. The
// upload pipeline owns that layout; this side only reads it.
type FSCatalog struct {
	Root string
}

func NewFSCatalog(root string) *FSCatalog { return &FSCatalog{Root: root} }

func (c *FSCatalog) Resolve(_ context.Context, mediaID domain.MediaID) (*Asset, error) {
	path := filepath.Join(c.Root, mediaID.String()+".mp3")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("media %s: %w", mediaID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("media %s: %w", mediaID, err)
	}
	return &Asset{
		ID:          mediaID,
		Path:        path,
		Size:        info.Size(),
		ContentType: "audio/mpeg",
	}, nil
}

func (c *FSCatalog) Open(_ context.Context, asset *Asset, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return nil, fmt.Errorf("open media %s: %w", asset.ID, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek media %s: %w", asset.ID, err)
		}
	}
	return f, nil
}

var _ Catalog = (*FSCatalog)(nil)

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carloz138/catalogo-magico-mx-sub005/media"
)

// LocalUploader writes images under a directory and returns file:// URLs.
type LocalUploader struct {
	dir string
}

func NewLocalUploader(dir string) (*LocalUploader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &LocalUploader{dir: abs}, nil
}

func (u *LocalUploader) UploadImage(ctx context.Context, merchantID string, img media.NormalizedImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(u.dir, filepath.FromSlash(ObjectKey("", merchantID, img)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", img.FileName, err)
	}
	return "file://" + filepath.ToSlash(target), nil
}

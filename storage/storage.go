// Package storage puts normalized product images somewhere addressable.
package storage

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/carloz138/catalogo-magico-mx-sub005/media"
)

// Uploader stores one image and returns the URL products should reference.
type Uploader interface {
	UploadImage(ctx context.Context, merchantID string, img media.NormalizedImage) (string, error)
}

// ObjectKey is `<prefix>/<merchant>/<image id><ext>`.
func ObjectKey(prefix, merchantID string, img media.NormalizedImage) string {
	ext := strings.ToLower(filepath.Ext(img.FileName))
	if ext == "" {
		ext = extensionFor(img.ContentType)
	}
	return path.Join(prefix, sanitize(merchantID), img.ID+ext)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

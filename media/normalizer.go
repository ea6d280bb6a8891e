// Package media recompresses oversized product images before upload.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxBytes     = 1_000_000
	DefaultMaxDimension = 1920
	DefaultQuality      = 80
	DefaultWorkers      = 4

	// MaxPixels caps width*height of any image we decode.
	MaxPixels = 50_000_000

	minQuality  = 50
	qualityStep = 10
)

var (
	errOverBudget = errors.New("compressed output still exceeds size budget")
	// ErrTooManyPixels is returned before decoding an image whose header
	// declares more than MaxPixels.
	ErrTooManyPixels = errors.New("image has too many pixels")
)

// Policy bounds the output of the normalizer.
type Policy struct {
	// Images at or below MaxBytes pass through untouched.
	MaxBytes     int
	MaxDimension int
	// JPEG quality, 1-100.
	Quality int
	Workers int
}

// DefaultPolicy is 1,000,000 bytes, 1920px long edge, JPEG quality 80.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:     DefaultMaxBytes,
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
		Workers:      DefaultWorkers,
	}
}

// RawImage is an image as received from the merchant.
type RawImage struct {
	ID          string
	FileName    string
	ContentType string
	Data        []byte
}

// NormalizedImage is ready for upload. When Err is set, Data holds the
// original bytes.
type NormalizedImage struct {
	ID           string
	FileName     string
	ContentType  string
	Data         []byte
	OriginalSize int
	Compressed   bool
	Err          *apperrors.CompressionError
}

// Normalizer applies a Policy.
type Normalizer struct {
	policy Policy
}

// NewNormalizer fills zero fields of p with defaults.
func NewNormalizer(p Policy) *Normalizer {
	d := DefaultPolicy()
	if p.MaxBytes <= 0 {
		p.MaxBytes = d.MaxBytes
	}
	if p.MaxDimension <= 0 {
		p.MaxDimension = d.MaxDimension
	}
	if p.Quality <= 0 || p.Quality > 100 {
		p.Quality = d.Quality
	}
	if p.Workers <= 0 {
		p.Workers = d.Workers
	}
	return &Normalizer{policy: p}
}

// Normalize passes small images through and recompresses the rest. A failed
// recompression is logged and the original is returned with Err set.
func (n *Normalizer) Normalize(ctx context.Context, img RawImage) NormalizedImage {
	out := NormalizedImage{
		ID:           img.ID,
		FileName:     img.FileName,
		ContentType:  img.ContentType,
		Data:         img.Data,
		OriginalSize: len(img.Data),
	}
	if len(img.Data) <= n.policy.MaxBytes {
		return out
	}

	data, err := n.compress(ctx, img.Data)
	if err != nil {
		out.Err = &apperrors.CompressionError{FileName: img.FileName, Err: err}
		zap.L().Warn("Image compression failed, keeping original",
			zap.String("file", img.FileName),
			zap.Int("size", len(img.Data)),
			zap.Error(err),
		)
		return out
	}

	out.Data = data
	out.ContentType = "image/jpeg"
	out.FileName = jpegName(img.FileName)
	out.Compressed = true
	return out
}

func (n *Normalizer) compress(ctx context.Context, data []byte) ([]byte, error) {
	src, format, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flat := n.resize(src)

	var buf bytes.Buffer
	for q := n.policy.Quality; q >= minQuality; q -= qualityStep {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
		}
		if buf.Len() <= n.policy.MaxBytes {
			return append([]byte(nil), buf.Bytes()...), nil
		}
	}
	return nil, errOverBudget
}

// decode reads the header first so a small file claiming huge dimensions
// never reaches the pixel allocation.
func decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode: %w", err)
	}
	return src, format, nil
}

// resize scales src so its long edge fits MaxDimension and flattens any
// transparency onto white.
func (n *Normalizer) resize(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), n.policy.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// FitWithin returns w x h scaled down so the long edge is at most max.
func FitWithin(w, h, max int) (int, int) {
	long := w
	if h > long {
		long = h
	}
	if long <= max || long == 0 {
		return w, h
	}
	nw := w * max / long
	nh := h * max / long
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func jpegName(name string) string {
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".jpg") || strings.EqualFold(ext, ".jpeg") {
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}

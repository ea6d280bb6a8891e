package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ThumbnailSize is the long edge of preview thumbnails.
const ThumbnailSize = 160

// Thumbnail renders data as a small JPEG and returns it as a data URI for
// previews.
func Thumbnail(data []byte, max int) (string, error) {
	src, _, err := decode(data)
	if err != nil {
		return "", err
	}
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), max)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 70}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

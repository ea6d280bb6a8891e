package media

import "net/http"

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DetectType sniffs the content type of data and reports whether it is an
// image format the normalizer can decode.
func DetectType(data []byte) (string, bool) {
	ct := http.DetectContentType(data)
	return ct, supportedTypes[ct]
}

// Package naming canonicalises image file names and product identifiers into
// comparable lowercase tokens.
package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

var prefixes = []string{"foto_", "img_", "image_", "producto_"}

// Matches one trailing "_12" or "_b" marker of a secondary shot. Letter
// markers are lowercase only; "_B" is part of the product name.
var suffixPattern = regexp.MustCompile(`_(\d+|[a-z])$`)

var separators = strings.NewReplacer("_", " ", "-", " ")

// Normalize turns a raw file name into its clean name.
func Normalize(rawFileName string) string {
	return Key(Base(rawFileName))
}

// Base strips the extension, one known prefix and one secondary suffix but
// keeps the original separators and case.
func Base(rawFileName string) string {
	name := stripPrefix(stripExtension(rawFileName))
	return suffixPattern.ReplaceAllString(name, "")
}

// IsSecondary reports whether the file name carries a secondary suffix.
func IsSecondary(rawFileName string) bool {
	name := stripPrefix(stripExtension(rawFileName))
	loc := suffixPattern.FindStringIndex(name)
	return loc != nil && loc[0] > 0
}

// Key canonicalises a SKU or product name the same way file names are.
func Key(s string) string {
	s = strings.ToLower(separators.Replace(s))
	return strings.Join(strings.Fields(s), " ")
}

func stripExtension(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func stripPrefix(name string) string {
	lower := strings.ToLower(name)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return name[len(p):]
		}
	}
	return name
}

// Package annotation holds the naming rules for stored images and the
// tolerant decoding of captioning responses.
package annotation

import (
	"path"
	"strings"
	"unicode"
)

const metadataExt = ".json"

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// SanitizeFilename reduces an untrusted client filename to a flat object
// name: directory segments and control characters are dropped. It returns
// "" when nothing usable remains.
func SanitizeFilename(raw string) string {
	name := strings.ReplaceAll(raw, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return ""
	}
	if strings.TrimSuffix(name, path.Ext(name)) == "" {
		return ""
	}
	return name
}

// MetadataKey derives the metadata object name for an image name.
// "cat.png" becomes "cat.json".
func MetadataKey(name string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + metadataExt
}

// IsImageName reports whether name carries one of the accepted image extensions.
func IsImageName(name string) bool {
	_, ok := imageContentTypes[strings.ToLower(path.Ext(name))]
	return ok
}

// ContentTypeFor returns the MIME type implied by an image name's extension,
// or application/octet-stream.
func ContentTypeFor(name string) string {
	if ct, ok := imageContentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	if strings.EqualFold(path.Ext(name), metadataExt) {
		return "application/json"
	}
	return "application/octet-stream"
}

// Package solidmime infers content types from a resource's URI
// (extension-based) and from its buffered bytes (magic-byte-based).
package solidmime

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffWindow is the number of leading bytes magic-byte detection
// looks at; bytes past this offset cannot change the verdict.
const sniffWindow = 1024

// extraExtensions registers Solid/RDF-specific extensions the
// standard library's mime type table doesn't know about.
var extraExtensions = map[string]string{
	".ttl":   "text/turtle",
	".nt":    "application/n-triples",
	".n3":    "text/n3",
	".jsonld": "application/ld+json",
	".rdf":   "application/rdf+xml",
	".acl":   "text/turtle",
	".meta":  "text/turtle",
}

func init() {
	for ext, contentType := range extraExtensions {
		_ = mime.AddExtensionType(ext, contentType)
	}
}

// FromURI guesses a content type from a resource URI's extension,
// returning ("", false) if the extension is unrecognized. This is the
// Go analogue of Python's mimetypes.guess_type: parameters the standard
// library's table attaches (such as charset=utf-8 on text types) are
// dropped, so the result is a bare MIME type.
func FromURI(uri string) (string, bool) {
	ext := filepath.Ext(uri)
	if ext == "" {
		return "", false
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		return "", false
	}
	if baseType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = baseType
	}
	return contentType, true
}

// FromContent guesses a content type from the first sniffWindow bytes
// of buf, unless offset >= sniffWindow (later bytes can't change a
// signature already sniffed) or buf is empty, in which case it
// reports ok=false and the caller must leave content_type unchanged.
func FromContent(offset int, buf []byte) (string, bool) {
	if offset >= sniffWindow || len(buf) == 0 {
		return "", false
	}
	window := buf
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	detected := mimetype.Detect(window)
	if detected == nil {
		return "", false
	}
	return stripBuiltinMimetypeExtension(detected.String()), true
}

// stripBuiltinMimetypeExtension removes mimetype's occasional
// trailing extension annotation so the value is a bare MIME type, as
// returned by Python's magic.from_buffer(mime=True).
func stripBuiltinMimetypeExtension(contentType string) string {
	return strings.TrimSpace(contentType)
}

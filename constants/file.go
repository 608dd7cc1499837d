package constants

import (
	"path/filepath"
	"strings"
)

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
)

// AllowedExtensions maps the archive entry extensions we send to OCR onto their MIME type.
var AllowedExtensions = map[string]string{
	"pdf": MimePDF,
	"jpg": MimeJPEG,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MimeTypeFor resolves the MIME type of an archive entry from its name.
func MimeTypeFor(name string) (string, bool) {
	mime, ok := AllowedExtensions[NormalizeExt(filepath.Ext(name))]
	return mime, ok
}

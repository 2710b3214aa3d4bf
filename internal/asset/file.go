// Package asset turns uploaded files into storage-ready payloads: inline text
// for plain-text books and self-contained data URLs for covers. Nothing here
// touches a store or the network.
package asset

import (
	"errors"
	"io"
	"mime"
	"path"
	"strings"
)

// File is an upload as declared by the client. Size is the declared byte
// length and may be zero when unknown.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrDecode        = errors.New("decode failed")
)

// MediaType returns the lowercased media type without parameters.
func (f File) MediaType() string {
	mt, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(f.ContentType))
	}
	return mt
}

// Ext is the lowercased file extension without the dot.
func (f File) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(f.Name)), ".")
}

// IsText reports whether f is declared as plain text. A bare ".txt" name is
// accepted when the client sent no usable type.
func IsText(f File) bool {
	mt := f.MediaType()
	if mt == "text/plain" {
		return true
	}
	return (mt == "" || mt == "application/octet-stream") && f.Ext() == "txt"
}

// IsImage reports whether f is declared as any image/* type.
func IsImage(f File) bool {
	return strings.HasPrefix(f.MediaType(), "image/")
}

// binaryContentTypes are accepted for content that is stored as an object
// rather than inline.
var binaryContentTypes = map[string]string{
	"application/pdf":      "pdf",
	"application/epub+zip": "epub",
}

// IsBinaryContent reports whether f is a supported non-text book format.
func IsBinaryContent(f File) bool {
	_, ok := binaryContentTypes[f.MediaType()]
	return ok
}

// BinaryExt returns the object extension for a binary content file, falling
// back to the name's extension and then "bin".
func BinaryExt(f File) string {
	if ext, ok := binaryContentTypes[f.MediaType()]; ok {
		return ext
	}
	if ext := f.Ext(); ext != "" {
		return ext
	}
	return "bin"
}

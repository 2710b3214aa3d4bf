package asset

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExtractText reads a plain-text upload into a string. Non-text files are
// rejected before the body is read. A declared charset other than UTF-8 is
// decoded; the result must be valid UTF-8.
func ExtractText(f File) (string, error) {
	const op = "asset.extract_text"
	if !IsText(f) {
		return "", &apperr.Error{Kind: apperr.KindValidation, Op: op, Field: "content",
			Msg: "content must be a text/plain file", Err: ErrInvalidFormat}
	}
	if f.Body == nil {
		return "", apperr.Validation(op, "content", "content file is empty")
	}

	var r io.Reader = f.Body
	if cs := charset(f.ContentType); cs != "" && cs != "utf-8" && cs != "us-ascii" {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return "", apperr.Transform(op, "unsupported charset "+cs, err)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", apperr.Transform(op, "read text", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", apperr.Transform(op, "text is not valid UTF-8", ErrDecode)
	}
	return string(raw), nil
}

func charset(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

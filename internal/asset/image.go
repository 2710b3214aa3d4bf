package asset

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	_ "image/gif"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 0.8

	// maxPixels bounds decoded size so a tiny header cannot claim a huge canvas.
	maxPixels = 50_000_000
)

// Image is a compressed cover ready to be stored inline.
type Image struct {
	DataURL     string
	ContentType string
	Width       int
	Height      int
}

// ScaledSize returns the target size for a w x h image so that neither side
// exceeds maxDimension. Images already within bounds are left as they are.
func ScaledSize(w, h, maxDimension int) (int, int) {
	longest := max(w, h)
	if maxDimension <= 0 || longest <= maxDimension {
		return w, h
	}
	scale := float64(maxDimension) / float64(longest)
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return min(nw, maxDimension), min(nh, maxDimension)
}

// CompressImage downscales a cover and re-encodes it as a data URL. PNG and
// WebP sources stay in their format (lossless); every other format becomes a
// JPEG at quality (0..1].
func CompressImage(f File, maxDimension int, quality float64) (Image, error) {
	const op = "asset.compress_image"
	if !IsImage(f) {
		return Image{}, &apperr.Error{Kind: apperr.KindValidation, Op: op, Field: "cover",
			Msg: "cover must be an image", Err: ErrInvalidFormat}
	}
	if f.Body == nil {
		return Image{}, apperr.Validation(op, "cover", "cover file is empty")
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 1 {
		quality = DefaultQuality
	}

	raw, err := io.ReadAll(f.Body)
	if err != nil {
		return Image{}, apperr.Transform(op, "read image", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Image{}, apperr.Transform(op, "decode image header", fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return Image{}, apperr.Transform(op, fmt.Sprintf("unsupported image size %dx%d", cfg.Width, cfg.Height), ErrDecode)
	}
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Image{}, apperr.Transform(op, "decode image", fmt.Errorf("%w: %v", ErrDecode, err))
	}

	b := src.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxDimension)
	out := src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	contentType := "image/jpeg"
	switch format {
	case "png":
		contentType = "image/png"
		err = png.Encode(&buf, out)
	case "webp":
		contentType = "image/webp"
		err = nativewebp.Encode(&buf, out, nil)
	default:
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality(quality)})
	}
	if err != nil {
		return Image{}, apperr.Transform(op, "encode "+contentType, err)
	}

	return Image{
		DataURL:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		ContentType: contentType,
		Width:       w,
		Height:      h,
	}, nil
}

func jpegQuality(q float64) int {
	n := int(math.Round(q * 100))
	return min(max(n, 1), 100)
}

// DecodeDataURL splits a base64 data URL into its content type and bytes.
func DecodeDataURL(s string) (contentType string, data []byte, err error) {
	const prefix = "data:"
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return "", nil, ErrInvalidFormat
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidFormat
	}
	ct, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", nil, ErrInvalidFormat
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ct, data, nil
}

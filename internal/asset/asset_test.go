package asset

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/HugoSmits86/nativewebp"

	"github.com/5w1tchy/folio-api/internal/apperr"
)

func pngFile(t *testing.T, w, h int) File {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 200})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return File{Name: "cover.png", ContentType: "image/png", Size: int64(buf.Len()), Body: &buf}
}

func jpegFile(t *testing.T, w, h int) File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return File{Name: "cover.jpg", ContentType: "image/jpeg", Size: int64(buf.Len()), Body: &buf}
}

func webpFile(t *testing.T, w, h int) File {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 8 {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: 40, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return File{Name: "cover.webp", ContentType: "image/webp", Size: int64(buf.Len()), Body: &buf}
}

func gifFile(t *testing.T, w, h int) File {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
	for x := 0; x < w; x++ {
		img.SetColorIndex(x, x%h, uint8(x))
	}
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return File{Name: "cover.gif", ContentType: "image/gif", Size: int64(buf.Len()), Body: &buf}
}

func decodeOut(t *testing.T, img Image) image.Config {
	t.Helper()
	_, data, err := DecodeDataURL(img.DataURL)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return cfg
}

func TestExtractText(t *testing.T) {
	got, err := ExtractText(File{Name: "tale.txt", ContentType: "text/plain", Body: strings.NewReader("Once upon a time.")})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Once upon a time." {
		t.Fatalf("got %q", got)
	}
}

func TestExtractText_StripsBOMAndDecodesCharset(t *testing.T) {
	got, err := ExtractText(File{ContentType: "text/plain; charset=utf-8", Body: bytes.NewReader(append(utf8BOM, "hi"...))})
	if err != nil || got != "hi" {
		t.Fatalf("bom: got %q err %v", got, err)
	}

	// "café" in ISO-8859-1
	latin := []byte{'c', 'a', 'f', 0xE9}
	got, err = ExtractText(File{ContentType: "text/plain; charset=iso-8859-1", Body: bytes.NewReader(latin)})
	if err != nil || got != "café" {
		t.Fatalf("latin1: got %q err %v", got, err)
	}
}

func TestExtractText_RejectsNonTextBeforeReading(t *testing.T) {
	body := &countingReader{r: strings.NewReader("%PDF-1.7")}
	_, err := ExtractText(File{Name: "book.pdf", ContentType: "application/pdf", Body: body})
	if !errors.Is(err, ErrInvalidFormat) || apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("want invalid format validation error, got %v", err)
	}
	if body.n != 0 {
		t.Fatalf("body was read (%d bytes) before type check", body.n)
	}
}

func TestExtractText_InvalidUTF8(t *testing.T) {
	_, err := ExtractText(File{ContentType: "text/plain", Body: bytes.NewReader([]byte{0xff, 0xfe, 0xfd})})
	if apperr.KindOf(err) != apperr.KindTransform {
		t.Fatalf("want transform error, got %v", err)
	}
}

func TestIsText_ExtensionFallback(t *testing.T) {
	if !IsText(File{Name: "BOOK.TXT", ContentType: "application/octet-stream"}) {
		t.Fatal("octet-stream .txt should count as text")
	}
	if IsText(File{Name: "book.txt", ContentType: "application/pdf"}) {
		t.Fatal("declared pdf must not count as text")
	}
}

func TestScaledSize(t *testing.T) {
	cases := []struct{ w, h, max, ww, wh int }{
		{2048, 1024, 1024, 1024, 512},
		{1000, 3000, 1024, 341, 1024},
		{800, 600, 1024, 800, 600},
		{5000, 1, 1024, 1024, 1},
		{1024, 1024, 1024, 1024, 1024},
	}
	for _, c := range cases {
		gw, gh := ScaledSize(c.w, c.h, c.max)
		if gw != c.ww || gh != c.wh {
			t.Errorf("ScaledSize(%d,%d,%d) = %d,%d want %d,%d", c.w, c.h, c.max, gw, gh, c.ww, c.wh)
		}
	}
}

func TestCompressImage_DownscalesWithinBounds(t *testing.T) {
	for _, size := range [][2]int{{2400, 1200}, {300, 1500}, {1025, 1025}} {
		out, err := CompressImage(jpegFile(t, size[0], size[1]), 1024, 0.8)
		if err != nil {
			t.Fatalf("%v: %v", size, err)
		}
		cfg := decodeOut(t, out)
		if cfg.Width > 1024 || cfg.Height > 1024 {
			t.Fatalf("%v: output %dx%d exceeds 1024", size, cfg.Width, cfg.Height)
		}
		inRatio := float64(size[0]) / float64(size[1])
		outRatio := float64(cfg.Width) / float64(cfg.Height)
		if d := inRatio - outRatio; d > 0.01*inRatio || d < -0.01*inRatio {
			t.Fatalf("%v: aspect ratio drifted %f -> %f", size, inRatio, outRatio)
		}
		if out.ContentType != "image/jpeg" {
			t.Fatalf("jpeg input should stay jpeg, got %s", out.ContentType)
		}
	}
}

func TestCompressImage_PreservesPNG(t *testing.T) {
	out, err := CompressImage(pngFile(t, 64, 32), 16, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if out.ContentType != "image/png" || !strings.HasPrefix(out.DataURL, "data:image/png;base64,") {
		t.Fatalf("png not preserved: %s", out.ContentType)
	}
	cfg := decodeOut(t, out)
	if cfg.Width != 16 || cfg.Height != 8 {
		t.Fatalf("got %dx%d want 16x8", cfg.Width, cfg.Height)
	}
}

func TestCompressImage_OutputFormat(t *testing.T) {
	cases := []struct {
		name    string
		in      File
		wantCT  string
		wantFmt string
	}{
		{"webp stays webp", webpFile(t, 2048, 1000), "image/webp", "webp"},
		{"gif becomes jpeg", gifFile(t, 2048, 1000), "image/jpeg", "jpeg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := CompressImage(tc.in, 1024, 0.8)
			if err != nil {
				t.Fatal(err)
			}
			if out.ContentType != tc.wantCT || !strings.HasPrefix(out.DataURL, "data:"+tc.wantCT+";base64,") {
				t.Fatalf("content type %s, want %s", out.ContentType, tc.wantCT)
			}
			_, data, err := DecodeDataURL(out.DataURL)
			if err != nil {
				t.Fatal(err)
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if format != tc.wantFmt {
				t.Fatalf("encoded as %s, want %s", format, tc.wantFmt)
			}
			if cfg.Width > 1024 || cfg.Height > 1024 {
				t.Fatalf("output %dx%d exceeds 1024", cfg.Width, cfg.Height)
			}
			if cfg.Width != 1024 || cfg.Height != 500 {
				t.Fatalf("got %dx%d want 1024x500", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestCompressImage_SmallImageUntouchedSize(t *testing.T) {
	out, err := CompressImage(pngFile(t, 10, 20), 1024, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 10 || out.Height != 20 {
		t.Fatalf("got %dx%d", out.Width, out.Height)
	}
}

func TestCompressImage_Errors(t *testing.T) {
	_, err := CompressImage(File{Name: "x.pdf", ContentType: "application/pdf", Body: strings.NewReader("x")}, 1024, 0.8)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("pdf cover: want validation, got %v", err)
	}

	_, err = CompressImage(File{Name: "x.png", ContentType: "image/png", Body: strings.NewReader("not an image")}, 1024, 0.8)
	if apperr.KindOf(err) != apperr.KindTransform || !errors.Is(err, ErrDecode) {
		t.Fatalf("garbage image: want transform decode error, got %v", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	ct, data, err := DecodeDataURL("data:image/png;base64,aGk=")
	if err != nil || ct != "image/png" || string(data) != "hi" {
		t.Fatalf("got %q %q %v", ct, data, err)
	}
	if _, _, err := DecodeDataURL("https://cdn.example/x.png"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("external url should be rejected, got %v", err)
	}
}

type countingReader struct {
	r interface{ Read([]byte) (int, error) }
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

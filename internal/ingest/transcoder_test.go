package ingest

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// newTestImageBytes produces PNG bytes of a solid-color image.
func newTestImageBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestTranscoder_DecodePNG(t *testing.T) {
	transcoder := NewTranscoder()

	img, err := transcoder.Decode(newTestImageBytes(t, 64, 32))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Errorf("expected 64x32, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestTranscoder_DecodeGarbage(t *testing.T) {
	transcoder := NewTranscoder()

	_, err := transcoder.Decode([]byte("this is not an image"))
	if err == nil {
		t.Fatalf("expected decode error, got nil")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected *DecodeError, got %T", err)
	}
}

func TestTranscoder_DecodeSVG(t *testing.T) {
	transcoder := NewTranscoder()
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20"><rect width="40" height="20" fill="red"/></svg>`)

	img, err := transcoder.Decode(svg)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Errorf("expected 40x20 raster, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestTranscoder_EncodeKeepsSizeWithoutBounds(t *testing.T) {
	transcoder := NewTranscoder()
	img, err := transcoder.Decode(newTestImageBytes(t, 120, 80))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	data, width, height, err := transcoder.Encode(img, 0, 0, 90)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if width != 120 || height != 80 {
		t.Errorf("expected 120x80, got %dx%d", width, height)
	}
	if len(data) == 0 {
		t.Errorf("expected non-empty JPEG output")
	}
}

func TestTranscoder_EncodeFitsInsideBounds(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		maxW, maxH int
		wantW      int
		wantH      int
	}{
		{name: "landscape shrink", srcW: 400, srcH: 200, maxW: 100, maxH: 100, wantW: 100, wantH: 50},
		{name: "portrait shrink", srcW: 200, srcH: 400, maxW: 100, maxH: 100, wantW: 50, wantH: 100},
		{name: "no enlargement", srcW: 50, srcH: 25, maxW: 100, maxH: 100, wantW: 50, wantH: 25},
		{name: "exact fit untouched", srcW: 100, srcH: 100, maxW: 100, maxH: 100, wantW: 100, wantH: 100},
	}

	transcoder := NewTranscoder()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			img, err := transcoder.Decode(newTestImageBytes(t, test.srcW, test.srcH))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}

			_, width, height, err := transcoder.Encode(img, test.maxW, test.maxH, 85)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if width != test.wantW || height != test.wantH {
				t.Errorf("expected %dx%d, got %dx%d", test.wantW, test.wantH, width, height)
			}
		})
	}
}

func TestIsSVGData(t *testing.T) {
	if !isSVGData([]byte(`<svg width="1" height="1"></svg>`)) {
		t.Errorf("expected SVG detection for svg tag")
	}
	if isSVGData(newTestImageBytes(t, 4, 4)) {
		t.Errorf("unexpected SVG detection for PNG data")
	}
	if isSVGData(nil) {
		t.Errorf("unexpected SVG detection for empty input")
	}
}

func TestParseSVGExplicitSize(t *testing.T) {
	width, height, ok := parseSVGExplicitSize([]byte(`<svg width="123px" height="45"></svg>`))
	if !ok || width != 123 || height != 45 {
		t.Errorf("expected 123x45/ok, got %dx%d/%v", width, height, ok)
	}

	_, _, ok = parseSVGExplicitSize([]byte(`<svg viewBox="0 0 10 10"></svg>`))
	if ok {
		t.Errorf("viewBox must not count as explicit size")
	}
}

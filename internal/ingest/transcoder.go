package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MIMEJPEG is the storage format of every asset and rendition; uploads
	// in other formats are normalized on ingestion.
	MIMEJPEG = "image/jpeg"

	// svgFallbackEdge is the raster size used for SVG inputs that declare
	// no explicit pixel dimensions.
	svgFallbackEdge = 1024
)

// Transcoder wraps the image codecs behind the two operations the pipeline
// needs: decoding an upload into pixels and encoding pixels into a stored
// JPEG, optionally scaled to fit inside a bounding box. Raster decoding
// covers jpeg/png/gif plus webp/bmp/tiff via the registered x/image
// decoders; SVG input is rasterized first.
type Transcoder struct {
	scaler draw.Scaler
}

// NewTranscoder creates a transcoder using a Catmull-Rom scaler, which keeps
// thumbnails sharp at the cost of a little CPU.
func NewTranscoder() *Transcoder {
	return &Transcoder{scaler: draw.CatmullRom}
}

// Decode turns upload bytes into an image. Failures come back as *DecodeError.
func (t *Transcoder) Decode(data []byte) (image.Image, error) {
	if isSVGData(data) {
		img, err := rasterizeSVG(data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return img, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	slog.Debug("decoded upload",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return img, nil
}

// Encode produces JPEG bytes for img, scaled down to fit inside
// width x height when both are positive. The image is never enlarged.
// Returns the encoded bytes and the actual output dimensions.
func (t *Transcoder) Encode(img image.Image, width, height, quality int) ([]byte, int, int, error) {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	outW, outH := srcW, srcH
	if width > 0 && height > 0 && (srcW > width || srcH > height) {
		outW, outH = scaleToFit(srcW, srcH, width, height)
	}

	if outW != srcW || outH != srcH {
		dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
		t.scaler.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	buf.Grow(outW * outH / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), outW, outH, nil
}

// scaleToFit shrinks srcW x srcH to fit inside maxW x maxH while preserving
// aspect ratio. Assumes the source exceeds the box in at least one dimension.
func scaleToFit(srcW, srcH, maxW, maxH int) (int, int) {
	srcAspect := float64(srcW) / float64(srcH)
	boxAspect := float64(maxW) / float64(maxH)
	if srcAspect > boxAspect {
		h := int(float64(maxW)/srcAspect + 0.5)
		if h < 1 {
			h = 1
		}
		return maxW, h
	}
	w := int(float64(maxH)*srcAspect + 0.5)
	if w < 1 {
		w = 1
	}
	return w, maxH
}

// isSVGData performs a lightweight detection of SVG content from raw bytes.
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.HasPrefix(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte(`xmlns="http://www.w3.org/2000/svg"`)) ||
		bytes.Contains(header, []byte(`xmlns='http://www.w3.org/2000/svg'`))
}

// rasterizeSVG renders SVG bytes onto a white canvas at the explicit size
// declared by the document, or at svgFallbackEdge square when it has none.
func rasterizeSVG(svgData []byte) (image.Image, error) {
	width, height, ok := parseSVGExplicitSize(svgData)
	if !ok {
		width, height = svgFallbackEdge, svgFallbackEdge
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)

	return dst, nil
}

// parseSVGExplicitSize attempts to extract width and height attributes from
// the SVG start tag. Returns ok=false when either is missing or unparseable;
// viewBox is deliberately not treated as a pixel size.
func parseSVGExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk && w > 0 && h > 0 {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr extracts the leading numeric value of an attribute
// (e.g., width="123px").
func parseNumericAttr(tag, attr string) (int, bool) {
	key := attr + "="
	pos := strings.Index(tag, key)
	if pos < 0 {
		pos = strings.Index(tag, attr)
		if pos < 0 {
			return 0, false
		}
	}
	q := strings.Index(tag[pos:], "\"")
	single := strings.Index(tag[pos:], "'")
	start := -1
	quoteChar := byte(0)
	if q >= 0 && (single < 0 || q < single) {
		start = pos + q + 1
		quoteChar = '"'
	} else if single >= 0 {
		start = pos + single + 1
		quoteChar = '\''
	}
	if start < 0 || start >= len(tag) {
		return 0, false
	}
	end := strings.IndexByte(tag[start:], quoteChar)
	val := tag[start:]
	if end >= 0 {
		val = tag[start : start+end]
	}
	num := 0
	found := false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch >= '0' && ch <= '9' {
			found = true
			num = num*10 + int(ch-'0')
		} else if found {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

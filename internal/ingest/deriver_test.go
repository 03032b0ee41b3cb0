package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func newTestDeriver() *Deriver {
	return NewDeriver(NewTranscoder(), DefaultPolicy, 2)
}

func TestDerive_OversizedOriginal(t *testing.T) {
	deriver := newTestDeriver()

	derivation, err := deriver.Derive(context.Background(), newTestImageBytes(t, 4000, 3000))
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	if derivation.Original.Width != 4000 || derivation.Original.Height != 3000 {
		t.Errorf("expected original 4000x3000, got %dx%d",
			derivation.Original.Width, derivation.Original.Height)
	}
	if derivation.Original.MIME != MIMEJPEG {
		t.Errorf("expected normalized MIME %s, got %s", MIMEJPEG, derivation.Original.MIME)
	}

	if len(derivation.Renditions) != 3 {
		t.Fatalf("expected 3 tier renditions, got %d", len(derivation.Renditions))
	}

	expected := []struct {
		kind RenditionKind
		max  int
	}{
		{KindLarge, 1920},
		{KindMedium, 800},
		{KindSmall, 300},
	}
	for i, rendition := range derivation.Renditions {
		if rendition.Kind != expected[i].kind {
			t.Errorf("rendition[%d]: expected kind %s, got %s", i, expected[i].kind, rendition.Kind)
		}
		if rendition.Width > expected[i].max || rendition.Height > expected[i].max {
			t.Errorf("%s: %dx%d exceeds cap %d",
				rendition.Kind, rendition.Width, rendition.Height, expected[i].max)
		}
		if rendition.Size != int64(len(rendition.Bytes)) || rendition.Size == 0 {
			t.Errorf("%s: inconsistent size %d for %d bytes",
				rendition.Kind, rendition.Size, len(rendition.Bytes))
		}
	}

	// Non-increasing dimensions across tiers.
	for i := 1; i < len(derivation.Renditions); i++ {
		previous := derivation.Renditions[i-1]
		current := derivation.Renditions[i]
		if current.Width > previous.Width || current.Height > previous.Height {
			t.Errorf("rendition %s (%dx%d) larger than %s (%dx%d)",
				current.Kind, current.Width, current.Height,
				previous.Kind, previous.Width, previous.Height)
		}
	}

	var derived int64
	for _, rendition := range derivation.Renditions {
		derived += rendition.Size
	}
	if derivation.DerivedBytes != derived {
		t.Errorf("DerivedBytes %d != sum of rendition sizes %d", derivation.DerivedBytes, derived)
	}
	if derivation.TotalBytes != derivation.Original.Size+derived {
		t.Errorf("TotalBytes %d != original %d + derived %d",
			derivation.TotalBytes, derivation.Original.Size, derived)
	}
}

func TestDerive_AspectRatioWithinOnePixel(t *testing.T) {
	deriver := newTestDeriver()

	derivation, err := deriver.Derive(context.Background(), newTestImageBytes(t, 4000, 3000))
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	// 4:3 original: expect 1920x1440, 800x600, 300x225 within one pixel.
	expected := [][2]int{{1920, 1440}, {800, 600}, {300, 225}}
	for i, rendition := range derivation.Renditions {
		diffW := rendition.Width - expected[i][0]
		diffH := rendition.Height - expected[i][1]
		if diffW < -1 || diffW > 1 || diffH < -1 || diffH > 1 {
			t.Errorf("%s: expected ~%dx%d, got %dx%d",
				rendition.Kind, expected[i][0], expected[i][1], rendition.Width, rendition.Height)
		}
	}
}

func TestDerive_UndersizedOriginalCopyFills(t *testing.T) {
	deriver := newTestDeriver()

	derivation, err := deriver.Derive(context.Background(), newTestImageBytes(t, 200, 150))
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	if len(derivation.Renditions) != 3 {
		t.Fatalf("expected 3 tier renditions, got %d", len(derivation.Renditions))
	}
	for _, rendition := range derivation.Renditions {
		if rendition.Size != derivation.Original.Size {
			t.Errorf("%s: expected copy-fill size %d, got %d",
				rendition.Kind, derivation.Original.Size, rendition.Size)
		}
		if rendition.Width != 200 || rendition.Height != 150 {
			t.Errorf("%s: expected original dimensions 200x150, got %dx%d",
				rendition.Kind, rendition.Width, rendition.Height)
		}
		if !bytes.Equal(rendition.Bytes, derivation.Original.Bytes) {
			t.Errorf("%s: copy-fill bytes differ from original", rendition.Kind)
		}
	}
}

func TestDerive_GarbageInput(t *testing.T) {
	deriver := newTestDeriver()

	_, err := deriver.Derive(context.Background(), []byte("definitely not an image"))
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected *DecodeError, got %T", err)
	}
}

func TestDerive_CancelledContext(t *testing.T) {
	deriver := newTestDeriver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := deriver.Derive(ctx, newTestImageBytes(t, 4000, 3000))
	if err == nil {
		t.Fatalf("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

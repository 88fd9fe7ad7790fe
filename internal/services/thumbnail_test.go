package services

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

func encodePNG(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return &buf
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestThumbnailerScalesDown(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	th := NewThumbnailer(log, 300)

	out, err := th.Thumbnail(encodePNG(t, 800, 600))
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if w, h := decodeDims(t, out); w != 300 || h != 225 {
		t.Fatalf("landscape: got %dx%d, want 300x225", w, h)
	}

	out, err = th.Thumbnail(encodePNG(t, 600, 800))
	if err != nil {
		t.Fatalf("Thumbnail portrait: %v", err)
	}
	if w, h := decodeDims(t, out); w != 225 || h != 300 {
		t.Fatalf("portrait: got %dx%d, want 225x300", w, h)
	}
}

func TestThumbnailerNeverUpscales(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	th := NewThumbnailer(log, 300)

	out, err := th.Thumbnail(encodePNG(t, 120, 80))
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if w, h := decodeDims(t, out); w != 120 || h != 80 {
		t.Fatalf("small image resized: got %dx%d", w, h)
	}
}

func TestThumbnailerRejectsGarbage(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	th := NewThumbnailer(log, 300)
	if _, err := th.Thumbnail(strings.NewReader("definitely not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{800, 600, 300, 300, 225},
		{600, 800, 300, 225, 300},
		{100, 100, 300, 100, 100},
		{300, 300, 300, 300, 300},
		{10000, 2, 300, 300, 1},
	}
	for _, tc := range cases {
		gw, gh := fitWithin(tc.w, tc.h, tc.max)
		if gw != tc.wantW || gh != tc.wantH {
			t.Errorf("fitWithin(%d,%d,%d) = (%d,%d), want (%d,%d)",
				tc.w, tc.h, tc.max, gw, gh, tc.wantW, tc.wantH)
		}
	}
}

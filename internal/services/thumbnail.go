package services

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// Thumbnailer scales raster images down to a bounded square, preserving
// aspect ratio, and re-encodes as PNG.
type Thumbnailer interface {
	Thumbnail(r io.Reader) ([]byte, error)
}

type thumbnailer struct {
	log *logger.Logger
	dim int
}

func NewThumbnailer(log *logger.Logger, dim int) Thumbnailer {
	if dim <= 0 {
		dim = 300
	}
	return &thumbnailer{log: log.With("service", "Thumbnailer"), dim: dim}
}

func (t *thumbnailer) Thumbnail(r io.Reader) ([]byte, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	_ = format

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty image")
	}

	tw, th := fitWithin(w, h, t.dim)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}

// fitWithin scales (w,h) so the longer edge equals max, never upscaling.
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

package jp2view

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Surface receives decoded regions. PutRegion must copy pixels before it
// returns; the producer reuses the storage on its next call.
type Surface interface {
	PutRegion(viewW, viewH, regW, regH, offX, offY int, pixels []uint32) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(viewW, viewH, regW, regH, offX, offY int, pixels []uint32) error

func (f SurfaceFunc) PutRegion(viewW, viewH, regW, regH, offX, offY int, pixels []uint32) error {
	return f(viewW, viewH, regW, regH, offX, offY, pixels)
}

// ImageSurface accumulates regions into an NRGBA image the size of the view.
// The image is allocated on the first region.
type ImageSurface struct {
	img *image.NRGBA
}

// NewImageSurface returns an empty ImageSurface.
func NewImageSurface() *ImageSurface {
	return &ImageSurface{}
}

func (s *ImageSurface) PutRegion(viewW, viewH, regW, regH, offX, offY int, pixels []uint32) error {
	if s.img == nil || s.img.Rect.Dx() != viewW || s.img.Rect.Dy() != viewH {
		s.img = image.NewNRGBA(image.Rect(0, 0, viewW, viewH))
	}
	if offX < 0 || offY < 0 || offX+regW > viewW || offY+regH > viewH {
		return fmt.Errorf("%w: region %dx%d at (%d,%d) outside %dx%d view", ErrDegenerateView, regW, regH, offX, offY, viewW, viewH)
	}
	if len(pixels) < regW*regH {
		return fmt.Errorf("jp2view: region has %d pixels, want %d", len(pixels), regW*regH)
	}

	for y := range regH {
		row := s.img.Pix[s.img.PixOffset(offX, offY+y):]
		for x, p := range pixels[y*regW : (y+1)*regW] {
			a, r, g, b := unpackARGB(p)
			row[x*4+0] = r
			row[x*4+1] = g
			row[x*4+2] = b
			row[x*4+3] = a
		}
	}
	return nil
}

// Image returns the accumulated view, or nil before the first region.
func (s *ImageSurface) Image() *image.NRGBA {
	return s.img
}

// Encode writes the view in the named format: png, bmp or tiff.
func (s *ImageSurface) Encode(w io.Writer, format string) error {
	if s.img == nil {
		return fmt.Errorf("%w: no region was drawn", ErrDegenerateView)
	}
	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, s.img)
	case "bmp":
		return bmp.Encode(w, s.img)
	case "tif", "tiff":
		return tiff.Encode(w, s.img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("jp2view: unsupported output format %q", format)
	}
}

// WriteFile encodes the view to path, choosing the format from its extension.
func (s *ImageSurface) WriteFile(path string) (err error) {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.Encode(f, format)
}

package jp2view

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestImageSurfacePutRegion(t *testing.T) {
	s := NewImageSurface()
	if s.Image() != nil {
		t.Fatal("Image() before the first region is not nil")
	}

	pixels := []uint32{packARGB(0xFF, 1, 2, 3), packARGB(0x80, 4, 5, 6)}
	if err := s.PutRegion(4, 3, 2, 1, 1, 2, pixels); err != nil {
		t.Fatalf("PutRegion() failed: %v", err)
	}
	img := s.Image()
	if img.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Fatalf("Bounds() = %v, want (0,0)-(4,3)", img.Bounds())
	}
	if got, want := img.NRGBAAt(1, 2), (color.NRGBA{1, 2, 3, 0xFF}); got != want {
		t.Errorf("pixel (1,2) = %v, want %v", got, want)
	}
	if got, want := img.NRGBAAt(2, 2), (color.NRGBA{4, 5, 6, 0x80}); got != want {
		t.Errorf("pixel (2,2) = %v, want %v", got, want)
	}
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{}) {
		t.Errorf("untouched pixel = %v, want zero", got)
	}
}

func TestImageSurfaceBounds(t *testing.T) {
	tests := []struct {
		name                   string
		regW, regH, offX, offY int
	}{
		{"past right edge", 3, 1, 2, 0},
		{"past bottom edge", 1, 2, 0, 2},
		{"negative offset", 1, 1, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewImageSurface()
			pixels := make([]uint32, tt.regW*tt.regH)
			if err := s.PutRegion(4, 3, tt.regW, tt.regH, tt.offX, tt.offY, pixels); !errors.Is(err, ErrDegenerateView) {
				t.Errorf("PutRegion() error = %v, want ErrDegenerateView", err)
			}
		})
	}

	s := NewImageSurface()
	if err := s.PutRegion(4, 3, 2, 2, 0, 0, make([]uint32, 3)); err == nil {
		t.Error("PutRegion() with a short pixel slice succeeded")
	}
}

func TestImageSurfaceEncode(t *testing.T) {
	s := NewImageSurface()
	if err := s.Encode(new(bytes.Buffer), "png"); !errors.Is(err, ErrDegenerateView) {
		t.Errorf("Encode() before any region error = %v, want ErrDegenerateView", err)
	}

	pixels := make([]uint32, 6*5)
	for i := range pixels {
		pixels[i] = packARGB(0xFF, uint8(i*8), uint8(i), 0x40)
	}
	if err := s.PutRegion(6, 5, 6, 5, 0, 0, pixels); err != nil {
		t.Fatalf("PutRegion() failed: %v", err)
	}

	decoders := map[string]func(*bytes.Reader) (image.Image, error){
		"png":  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
		"bmp":  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
		"tiff": func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
	}
	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := s.Encode(&buf, format); err != nil {
				t.Fatalf("Encode(%s) failed: %v", format, err)
			}
			img, err := decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decoding %s output: %v", format, err)
			}
			for y := range 5 {
				for x := range 6 {
					got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
					if want := s.Image().NRGBAAt(x, y); got != want {
						t.Fatalf("%s pixel (%d,%d) = %v, want %v", format, x, y, got, want)
					}
				}
			}
		})
	}

	if err := s.Encode(new(bytes.Buffer), "gif"); err == nil {
		t.Error("Encode(gif) succeeded")
	}
}

func TestImageSurfaceWriteFile(t *testing.T) {
	s := NewImageSurface()
	if err := s.PutRegion(2, 2, 2, 2, 0, 0, []uint32{0xFF000000, 0xFFFFFFFF, 0xFFFF0000, 0xFF00FF00}); err != nil {
		t.Fatalf("PutRegion() failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "view.png")
	if err := s.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() failed: %v", err)
	}
	if got := color.NRGBAModel.Convert(img.At(0, 1)).(color.NRGBA); got != (color.NRGBA{0xFF, 0, 0, 0xFF}) {
		t.Errorf("pixel (0,1) = %v, want red", got)
	}
}

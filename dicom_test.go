package jp2view

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/cocosip/go-dicom/pkg/dicom/dataset"
	"github.com/cocosip/go-dicom/pkg/dicom/element"
	"github.com/cocosip/go-dicom/pkg/dicom/tag"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/dicom/vr"
	"github.com/cocosip/go-dicom/pkg/dicom/writer"
	"github.com/cocosip/go-dicom/pkg/io/buffer"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/mrjoshuak/go-jpeg2000"
)

// buildDICOM writes a single-frame grayscale DICOM object whose encapsulated
// pixel data holds codestream.
func buildDICOM(t *testing.T, codestream []byte, size image.Point, ts *transfer.Syntax) []byte {
	t.Helper()
	ds := dataset.New()
	add := func(e element.Element) {
		if err := ds.Add(e); err != nil {
			t.Fatalf("Add(%v) failed: %v", e.Tag(), err)
		}
	}
	add(element.NewString(tag.SOPClassUID, vr.UI, []string{"1.2.840.10008.5.1.4.1.1.7"}))
	add(element.NewString(tag.SOPInstanceUID, vr.UI, []string{"1.2.826.0.1.3680043.2.1125.1"}))
	add(element.NewUnsignedShort(tag.SamplesPerPixel, []uint16{1}))
	add(element.NewString(tag.PhotometricInterpretation, vr.CS, []string{"MONOCHROME2"}))
	add(element.NewUnsignedShort(tag.Rows, []uint16{uint16(size.Y)}))
	add(element.NewUnsignedShort(tag.Columns, []uint16{uint16(size.X)}))
	add(element.NewUnsignedShort(tag.BitsAllocated, []uint16{8}))
	add(element.NewUnsignedShort(tag.BitsStored, []uint16{8}))
	add(element.NewUnsignedShort(tag.HighBit, []uint16{7}))
	add(element.NewUnsignedShort(tag.PixelRepresentation, []uint16{0}))

	pixels := element.NewOtherByteFragment(tag.PixelData)
	pixels.AddFragment(buffer.NewMemory(codestream))
	add(pixels)

	var buf bytes.Buffer
	if err := writer.Write(&buf, ds, writer.WithTransferSyntax(ts)); err != nil {
		t.Fatalf("writer.Write() failed: %v", err)
	}
	return buf.Bytes()
}

func TestDICOMReaderRejectsOtherInput(t *testing.T) {
	tests := []struct {
		name string
		in   *Input
	}{
		{"short", &Input{Data: []byte("DICM")}},
		{"no magic", &Input{Data: make([]byte, 200)}},
		{"codestream", &Input{Path: "x.dcm", Data: buildCodestream(gray8(8, 8))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rd := NewDICOMReader()
			_, err := rd.Open(tt.in)
			if !errors.Is(err, ErrNotContainer) {
				t.Errorf("Open() error = %v, want ErrNotContainer", err)
			}
			if err := rd.Close(); err != nil {
				t.Errorf("Close() = %v", err)
			}
		})
	}
}

func TestDICOMReaderOtherSyntax(t *testing.T) {
	data := buildDICOM(t, buildCodestream(gray8(8, 8)), image.Pt(8, 8), transfer.JPEGBaseline8Bit)
	rd := NewDICOMReader()
	defer rd.Close()
	if _, err := rd.Open(&Input{Data: data}); !errors.Is(err, ErrNotContainer) {
		t.Errorf("Open() error = %v, want ErrNotContainer", err)
	}
}

func TestDICOMReaderOpen(t *testing.T) {
	cs := buildCodestream(gray8(24, 16))
	data := buildDICOM(t, cs, image.Pt(24, 16), transfer.JPEG2000Lossless)

	rd := NewDICOMReader()
	defer rd.Close()
	c, err := rd.Open(&Input{Data: data})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if c.Format != FormatDICOM {
		t.Errorf("Format = %v, want dicom", c.Format)
	}
	if !bytes.HasPrefix(c.Codestream, cs) {
		t.Errorf("frame 0 does not start with the codestream")
	}
	want := &ContainerInfo{
		Width:     24,
		Height:    16,
		NumComps:  1,
		Precision: 8,
		Method:    ColorEnumerated,
		Space:     ColorGrayscale,
	}
	if diff := cmp.Diff(want, c.Info); diff != "" {
		t.Errorf("Info mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenDICOMBytes(t *testing.T) {
	data := buildDICOM(t, buildCodestream(gray8(24, 16)), image.Pt(24, 16), transfer.JPEG2000Lossless)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(data)
	zw.Close()

	fake := WithDecoderFactory(func([]byte, *Header) (ComponentDecoder, error) { return &fakeDecoder{}, nil })
	for name, in := range map[string][]byte{"plain": data, "gzip": gz.Bytes()} {
		t.Run(name, func(t *testing.T) {
			src, err := OpenBytes(in, fake)
			if err != nil {
				t.Fatalf("OpenBytes() failed: %v", err)
			}
			defer src.Close()
			if src.Format != FormatDICOM {
				t.Errorf("Format = %v, want dicom", src.Format)
			}
			if got := src.Header.Area; got != image.Rect(0, 0, 24, 16) {
				t.Errorf("Area = %v, want (0,0)-(24,16)", got)
			}
			if !src.Info.IsGrayscale() {
				t.Errorf("Info is not grayscale")
			}
		})
	}
}

func TestRenderDICOM(t *testing.T) {
	img := testGray(48, 40)
	cs := encodeTestImage(t, img, jpeg2000.FormatJ2K)
	ref, err := jpeg2000.Decode(bytes.NewReader(cs))
	if err != nil {
		t.Fatalf("reference Decode() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "image.dcm")
	if err := os.WriteFile(path, buildDICOM(t, cs, image.Pt(48, 40), transfer.JPEG2000Lossless), 0o644); err != nil {
		t.Fatal(err)
	}

	surface := NewImageSurface()
	stats, err := Render(context.Background(), path, surface, DefaultOptions())
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if stats.Format != FormatDICOM {
		t.Errorf("Format = %v, want dicom", stats.Format)
	}
	compareRGB(t, surface.Image(), ref)
}

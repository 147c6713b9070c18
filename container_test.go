package jp2view

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func appendBox(buf []byte, typ uint32, body []byte) []byte {
	buf = appendUint32(buf, uint32(8+len(body)))
	buf = appendUint32(buf, typ)
	return append(buf, body...)
}

// buildJP2 wraps a codestream in signature, ftyp, jp2h and jp2c boxes.
func buildJP2(brand uint32, codestream []byte, header ...[]byte) []byte {
	buf := append([]byte(nil), jp2Signature...)

	var ftyp []byte
	ftyp = appendUint32(ftyp, brand)
	ftyp = appendUint32(ftyp, 0)
	ftyp = appendUint32(ftyp, brandJP2)
	buf = appendBox(buf, boxFileType, ftyp)

	var jp2h []byte
	for _, b := range header {
		jp2h = append(jp2h, b...)
	}
	buf = appendBox(buf, boxHeader, jp2h)
	return appendBox(buf, boxCodestream, codestream)
}

func ihdrBox(w, h, comps int, prec int) []byte {
	var body []byte
	body = appendUint32(body, uint32(h))
	body = appendUint32(body, uint32(w))
	body = appendUint16(body, uint16(comps))
	body = append(body, byte(prec-1), 7, 0, 0)
	return appendBox(nil, boxImageHeader, body)
}

func colrBox(space ColorSpace) []byte {
	body := []byte{byte(ColorEnumerated), 0, 0}
	body = appendUint32(body, uint32(space))
	return appendBox(nil, boxColorSpec, body)
}

func cdefBox(defs ...ChannelDef) []byte {
	body := appendUint16(nil, uint16(len(defs)))
	for _, d := range defs {
		body = appendUint16(body, uint16(d.Channel))
		body = appendUint16(body, uint16(d.Type))
		body = appendUint16(body, uint16(d.Association))
	}
	return appendBox(nil, boxChannelDef, body)
}

func pclrBox(prec []int, entries [][]int) []byte {
	body := appendUint16(nil, uint16(len(entries)))
	body = append(body, byte(len(prec)))
	for _, p := range prec {
		body = append(body, byte(p-1))
	}
	for _, row := range entries {
		for j, v := range row {
			if prec[j] <= 8 {
				body = append(body, byte(v))
			} else {
				body = appendUint16(body, uint16(v))
			}
		}
	}
	return appendBox(nil, boxPalette, body)
}

func cmapBox(maps ...ComponentMapping) []byte {
	var body []byte
	for _, m := range maps {
		body = appendUint16(body, uint16(m.Component))
		body = append(body, byte(m.Type), byte(m.Column))
	}
	return appendBox(nil, boxComponentMap, body)
}

func TestJP2ReaderNotContainer(t *testing.T) {
	rd := NewJP2Reader()
	defer rd.Close()
	_, err := rd.Open(&Input{Data: buildCodestream(gray8(8, 8))})
	if !errors.Is(err, ErrNotContainer) {
		t.Fatalf("Open(raw) error = %v, want ErrNotContainer", err)
	}
}

func TestJP2ReaderBoxes(t *testing.T) {
	cs := buildCodestream(gray8(8, 8))
	data := buildJP2(brandJP2, cs,
		ihdrBox(8, 8, 1, 8),
		colrBox(ColorGrayscale),
		pclrBox([]int{8, 12}, [][]int{{0, 100}, {255, 4095}}),
		cmapBox(ComponentMapping{Component: 0, Type: 1, Column: 0}, ComponentMapping{Component: 0, Type: 1, Column: 1}),
		cdefBox(ChannelDef{Channel: 0, Type: 0, Association: 1}, ChannelDef{Channel: 1, Type: 1, Association: 0}),
	)
	id := uuid.MustParse("be7acfcb-97a9-42e8-9c71-999491e3afac")
	data = appendBox(data, boxUUID, append(id[:], "xmp"...))
	data = appendBox(data, boxXML, []byte("<x/>"))

	rd := NewJP2Reader()
	defer rd.Close()
	c, err := rd.Open(&Input{Data: data})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if c.Format != FormatJP2 {
		t.Errorf("Format = %v, want jp2", c.Format)
	}
	if !cmp.Equal(c.Codestream, cs) {
		t.Errorf("Codestream differs from the jp2c box body")
	}

	want := &ContainerInfo{
		Width: 8, Height: 8, NumComps: 1, Precision: 8,
		Method: ColorEnumerated,
		Space:  ColorGrayscale,
		Palette: &Palette{
			Precision: []int{8, 12},
			Signed:    []bool{false, false},
			Entries:   [][]int{{0, 100}, {255, 4095}},
		},
		Mappings: []ComponentMapping{{Component: 0, Type: 1, Column: 0}, {Component: 0, Type: 1, Column: 1}},
		ChannelDefs: []ChannelDef{
			{Channel: 0, Type: 0, Association: 1},
			{Channel: 1, Type: 1, Association: 0},
		},
		UUIDs: []UUIDBox{{ID: id, Data: []byte("xmp")}},
		XML:   [][]byte{[]byte("<x/>")},
	}
	if diff := cmp.Diff(want, c.Info); diff != "" {
		t.Errorf("Info mismatch (-want +got):\n%s", diff)
	}
	if !c.Info.IsGrayscale() || c.Info.IsSYCC() {
		t.Errorf("IsGrayscale/IsSYCC = %v/%v, want true/false", c.Info.IsGrayscale(), c.Info.IsSYCC())
	}
}

func TestJP2ReaderJPXBrand(t *testing.T) {
	rd := NewJP2Reader()
	defer rd.Close()
	c, err := rd.Open(&Input{Data: buildJP2(brandJPX, buildCodestream(gray8(4, 4)))})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if c.Format != FormatJPX {
		t.Errorf("Format = %v, want jpx", c.Format)
	}
}

func TestJP2ReaderMissingCodestream(t *testing.T) {
	data := append([]byte(nil), jp2Signature...)
	data = appendBox(data, boxFileType, appendUint32(nil, brandJP2))

	rd := NewJP2Reader()
	defer rd.Close()
	_, err := rd.Open(&Input{Data: data})
	if !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("Open() error = %v, want ErrInvalidHeader", err)
	}
}

func TestWalkBoxesLengths(t *testing.T) {
	var data []byte
	// Extended length box
	data = appendUint32(data, 1)
	data = appendUint32(data, boxXML)
	data = append(data, 0, 0, 0, 0, 0, 0, 0, 19)
	data = append(data, "abc"...)
	// Box running to the end
	data = appendUint32(data, 0)
	data = appendUint32(data, boxUUID)
	data = append(data, "rest"...)

	var got []string
	err := walkBoxes(data, func(typ uint32, body []byte) error {
		got = append(got, boxName(typ)+"="+string(body))
		return nil
	})
	if err != nil {
		t.Fatalf("walkBoxes() failed: %v", err)
	}
	if want := []string{"xml =abc", "uuid=rest"}; !cmp.Equal(got, want) {
		t.Errorf("boxes = %q, want %q", got, want)
	}

	bad := appendUint32(nil, 64)
	bad = appendUint32(bad, boxXML)
	if err := walkBoxes(bad, func(uint32, []byte) error { return nil }); !errors.Is(err, ErrTruncatedData) {
		t.Errorf("walkBoxes(overlong) error = %v, want ErrTruncatedData", err)
	}
}

func TestParsePaletteSigned(t *testing.T) {
	body := appendUint16(nil, 2)
	body = append(body, 1, 0x80|3) // one signed 4-bit column
	body = append(body, 0x07, 0x0F)
	pal, err := parsePalette(body)
	if err != nil {
		t.Fatalf("parsePalette() failed: %v", err)
	}
	if want := [][]int{{7}, {-1}}; !cmp.Equal(pal.Entries, want) {
		t.Errorf("Entries = %v, want %v", pal.Entries, want)
	}
}

func TestParseResolution(t *testing.T) {
	var body []byte
	body = appendUint16(body, 3)  // VR_N
	body = appendUint16(body, 1)  // VR_D
	body = appendUint16(body, 72) // HR_N
	body = appendUint16(body, 1)  // HR_D
	body = append(body, 2, 0)     // VR_E, HR_E
	got := parseResolution(body)
	if got != [2]float64{72, 300} {
		t.Errorf("parseResolution() = %v, want [72 300]", got)
	}
}

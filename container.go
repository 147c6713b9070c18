package jp2view

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// JP2 box types
const (
	boxSignature    = 0x6A502020 // "jP  "
	boxFileType     = 0x66747970 // "ftyp"
	boxHeader       = 0x6A703268 // "jp2h"
	boxCodestream   = 0x6A703263 // "jp2c"
	boxImageHeader  = 0x69686472 // "ihdr"
	boxColorSpec    = 0x636F6C72 // "colr"
	boxResolution   = 0x72657320 // "res "
	boxCaptureRes   = 0x72657363 // "resc"
	boxDisplayRes   = 0x72657364 // "resd"
	boxPalette      = 0x70636C72 // "pclr"
	boxComponentMap = 0x636D6170 // "cmap"
	boxChannelDef   = 0x63646566 // "cdef"
	boxUUID         = 0x75756964 // "uuid"
	boxXML          = 0x786D6C20 // "xml "
)

// ftyp brands
const (
	brandJP2 = 0x6A703220 // "jp2 "
	brandJPX = 0x6A707820 // "jpx "
)

var jp2Signature = []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20, 0x0D, 0x0A, 0x87, 0x0A}

// ContainerFormat identifies the wrapper a codestream was found in.
type ContainerFormat int

const (
	FormatRaw ContainerFormat = iota
	FormatJP2
	FormatJPX
	FormatDICOM
)

func (f ContainerFormat) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatJP2:
		return "jp2"
	case FormatJPX:
		return "jpx"
	case FormatDICOM:
		return "dicom"
	default:
		return "unknown"
	}
}

// ColorMethod is the colr box specification method.
type ColorMethod uint8

const (
	ColorEnumerated ColorMethod = 1
	ColorICC        ColorMethod = 2
	ColorICCAny     ColorMethod = 3
)

// ColorSpace is an enumerated colour space from ITU-T T.800 Table I.10.
type ColorSpace uint32

const (
	ColorUnknown   ColorSpace = 0
	ColorBiLevel1  ColorSpace = 1
	ColorYCbCr1    ColorSpace = 3
	ColorYCbCr2    ColorSpace = 4
	ColorYCbCr3    ColorSpace = 5
	ColorPhotoYCC  ColorSpace = 9
	ColorCMY       ColorSpace = 11
	ColorCMYK      ColorSpace = 12
	ColorYCCK      ColorSpace = 13
	ColorCIELab    ColorSpace = 14
	ColorBiLevel2  ColorSpace = 15
	ColorSRGB      ColorSpace = 16
	ColorGrayscale ColorSpace = 17
	ColorSYCC      ColorSpace = 18
	ColorESRGB     ColorSpace = 20
	ColorESYCC     ColorSpace = 24
)

// Input is the byte source handed to container readers.
type Input struct {
	Path string
	Data []byte
}

// Container is a recognised wrapper and the first codestream it holds.
type Container struct {
	Format     ContainerFormat
	Codestream []byte
	Info       *ContainerInfo
}

// ContainerReader recognises and opens one container format.
// Open returns ErrNotContainer when the input is not in its format.
// Close releases whatever Open acquired, including after a failed Open.
type ContainerReader interface {
	Open(in *Input) (*Container, error)
	Close() error
}

// Palette holds pclr box data.
type Palette struct {
	Precision []int
	Signed    []bool
	Entries   [][]int // [entry][column]
}

// NumColumns returns the number of palette output columns.
func (p *Palette) NumColumns() int {
	return len(p.Precision)
}

// ComponentMapping is one cmap box entry.
type ComponentMapping struct {
	Component int
	Type      int // 0 direct, 1 palette
	Column    int
}

// ChannelDef is one cdef box entry.
type ChannelDef struct {
	Channel     int
	Type        int // 0 colour, 1 opacity, 2 premultiplied opacity
	Association int // 0 whole image, 1..n colour index
}

// UUIDBox is a vendor box identified by a UUID.
type UUIDBox struct {
	ID   uuid.UUID
	Data []byte
}

// ContainerInfo holds container level metadata relevant to display.
type ContainerInfo struct {
	// From ihdr
	Width     int
	Height    int
	NumComps  int
	Precision int
	Signed    bool

	// From colr
	Method     ColorMethod
	Space      ColorSpace
	ICCProfile []byte

	// From res, in grid points per metre
	CaptureRes [2]float64 // x, y
	DisplayRes [2]float64

	Palette     *Palette
	Mappings    []ComponentMapping
	ChannelDefs []ChannelDef

	UUIDs []UUIDBox
	XML   [][]byte
}

// IsGrayscale reports whether the enumerated colour space is a single luminance channel.
func (ci *ContainerInfo) IsGrayscale() bool {
	if ci == nil || ci.Method != ColorEnumerated {
		return false
	}
	return ci.Space == ColorGrayscale || ci.Space == ColorBiLevel1 || ci.Space == ColorBiLevel2
}

// IsSYCC reports whether colour channels carry sYCC that needs conversion to RGB.
func (ci *ContainerInfo) IsSYCC() bool {
	if ci == nil || ci.Method != ColorEnumerated {
		return false
	}
	return ci.Space == ColorSYCC || ci.Space == ColorESYCC
}

type jp2Reader struct {
	data []byte
}

// NewJP2Reader returns a ContainerReader for JP2 and JPX files.
func NewJP2Reader() ContainerReader {
	return &jp2Reader{}
}

func (r *jp2Reader) Open(in *Input) (*Container, error) {
	if !bytes.HasPrefix(in.Data, jp2Signature) {
		return nil, ErrNotContainer
	}
	r.data = in.Data

	c := &Container{Format: FormatJP2, Info: &ContainerInfo{}}
	err := walkBoxes(in.Data, func(typ uint32, body []byte) error {
		switch typ {
		case boxFileType:
			if len(body) >= 4 && binary.BigEndian.Uint32(body) == brandJPX {
				c.Format = FormatJPX
			}
		case boxHeader:
			return walkBoxes(body, func(typ uint32, body []byte) error {
				return parseHeaderBox(typ, body, c.Info)
			})
		case boxCodestream:
			if c.Codestream == nil {
				c.Codestream = body
			}
		case boxUUID:
			if len(body) >= 16 {
				id, _ := uuid.FromBytes(body[:16])
				c.Info.UUIDs = append(c.Info.UUIDs, UUIDBox{ID: id, Data: bytes.Clone(body[16:])})
			}
		case boxXML:
			c.Info.XML = append(c.Info.XML, bytes.Clone(body))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Codestream == nil {
		return nil, fmt.Errorf("%w: %s file has no contiguous codestream box", ErrInvalidHeader, c.Format)
	}
	return c, nil
}

func (r *jp2Reader) Close() error {
	r.data = nil
	return nil
}

// walkBoxes calls fn for every box at one nesting level of data.
// A box length of 1 means an 8-byte extended length follows the type,
// and 0 means the box runs to the end of data.
func walkBoxes(data []byte, fn func(typ uint32, body []byte) error) error {
	pos := 0
	for pos+8 <= len(data) {
		boxLen := uint64(binary.BigEndian.Uint32(data[pos:]))
		typ := binary.BigEndian.Uint32(data[pos+4:])
		hdrLen := uint64(8)

		switch boxLen {
		case 0:
			boxLen = uint64(len(data) - pos)
		case 1:
			if pos+16 > len(data) {
				return fmt.Errorf("%w: extended box length", ErrTruncatedData)
			}
			boxLen = binary.BigEndian.Uint64(data[pos+8:])
			hdrLen = 16
		}
		if boxLen < hdrLen || boxLen > math.MaxInt || uint64(len(data)-pos) < boxLen {
			return fmt.Errorf("%w: box %q length %d at offset %d", ErrTruncatedData, boxName(typ), boxLen, pos)
		}

		if err := fn(typ, data[pos+int(hdrLen):pos+int(boxLen)]); err != nil {
			return err
		}
		pos += int(boxLen)
	}
	return nil
}

func boxName(typ uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], typ)
	return string(b[:])
}

// parseHeaderBox handles one box nested in jp2h.
func parseHeaderBox(typ uint32, body []byte, info *ContainerInfo) error {
	switch typ {
	case boxImageHeader:
		if len(body) < 14 {
			return fmt.Errorf("%w: ihdr", ErrTruncatedData)
		}
		info.Height = int(binary.BigEndian.Uint32(body[0:4]))
		info.Width = int(binary.BigEndian.Uint32(body[4:8]))
		info.NumComps = int(binary.BigEndian.Uint16(body[8:10]))
		info.Signed = body[10]&0x80 != 0
		info.Precision = int(body[10]&0x7F) + 1

	case boxColorSpec:
		// Only the first colr box is authoritative.
		if info.Method != 0 || len(body) < 3 {
			return nil
		}
		info.Method = ColorMethod(body[0])
		switch info.Method {
		case ColorEnumerated:
			if len(body) >= 7 {
				info.Space = ColorSpace(binary.BigEndian.Uint32(body[3:7]))
			}
		case ColorICC, ColorICCAny:
			info.ICCProfile = bytes.Clone(body[3:])
		}

	case boxResolution:
		return walkBoxes(body, func(typ uint32, body []byte) error {
			switch typ {
			case boxCaptureRes:
				info.CaptureRes = parseResolution(body)
			case boxDisplayRes:
				info.DisplayRes = parseResolution(body)
			}
			return nil
		})

	case boxPalette:
		pal, err := parsePalette(body)
		if err != nil {
			return err
		}
		info.Palette = pal

	case boxComponentMap:
		n := len(body) / 4
		info.Mappings = make([]ComponentMapping, n)
		for i := range n {
			e := body[i*4:]
			info.Mappings[i] = ComponentMapping{
				Component: int(binary.BigEndian.Uint16(e[0:2])),
				Type:      int(e[2]),
				Column:    int(e[3]),
			}
		}

	case boxChannelDef:
		if len(body) < 2 {
			return fmt.Errorf("%w: cdef", ErrTruncatedData)
		}
		n := int(binary.BigEndian.Uint16(body[0:2]))
		if len(body) < 2+n*6 {
			return fmt.Errorf("%w: cdef with %d entries", ErrTruncatedData, n)
		}
		info.ChannelDefs = make([]ChannelDef, n)
		for i := range n {
			e := body[2+i*6:]
			info.ChannelDefs[i] = ChannelDef{
				Channel:     int(binary.BigEndian.Uint16(e[0:2])),
				Type:        int(binary.BigEndian.Uint16(e[2:4])),
				Association: int(binary.BigEndian.Uint16(e[4:6])),
			}
		}
	}
	return nil
}

// parseResolution decodes VR_N VR_D HR_N HR_D VR_E HR_E into x, y grid points per metre.
func parseResolution(body []byte) [2]float64 {
	var res [2]float64
	if len(body) < 10 {
		return res
	}
	vn, vd := binary.BigEndian.Uint16(body[0:2]), binary.BigEndian.Uint16(body[2:4])
	hn, hd := binary.BigEndian.Uint16(body[4:6]), binary.BigEndian.Uint16(body[6:8])
	ve, he := int8(body[8]), int8(body[9])
	if hd > 0 {
		res[0] = float64(hn) / float64(hd) * math.Pow10(int(he))
	}
	if vd > 0 {
		res[1] = float64(vn) / float64(vd) * math.Pow10(int(ve))
	}
	return res
}

// parsePalette decodes NE(2) NPC(1) B_i(NPC) followed by NE rows of entries,
// each entry one byte up to 8 bits of precision and two bytes above.
func parsePalette(body []byte) (*Palette, error) {
	if len(body) < 3 {
		return nil, fmt.Errorf("%w: pclr", ErrTruncatedData)
	}
	ne := int(binary.BigEndian.Uint16(body[0:2]))
	npc := int(body[2])
	if ne == 0 || npc == 0 || len(body) < 3+npc {
		return nil, fmt.Errorf("%w: pclr with %d entries and %d columns", ErrInvalidHeader, ne, npc)
	}

	pal := &Palette{
		Precision: make([]int, npc),
		Signed:    make([]bool, npc),
		Entries:   make([][]int, ne),
	}
	for i := range npc {
		pal.Signed[i] = body[3+i]&0x80 != 0
		pal.Precision[i] = int(body[3+i]&0x7F) + 1
	}

	pos := 3 + npc
	for i := range ne {
		row := make([]int, npc)
		for j := range npc {
			prec := pal.Precision[j]
			var v int
			if prec <= 8 {
				if pos >= len(body) {
					return nil, fmt.Errorf("%w: pclr entry %d", ErrTruncatedData, i)
				}
				v = int(body[pos])
				pos++
			} else {
				if pos+2 > len(body) {
					return nil, fmt.Errorf("%w: pclr entry %d", ErrTruncatedData, i)
				}
				v = int(binary.BigEndian.Uint16(body[pos:]))
				pos += 2
			}
			if pal.Signed[j] && v >= 1<<(prec-1) {
				v -= 1 << prec
			}
			row[j] = v
		}
		pal.Entries[i] = row
	}
	return pal, nil
}

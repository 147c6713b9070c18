package jp2view

import (
	"encoding/binary"
	"fmt"
	"image"

	"golang.org/x/text/encoding/charmap"
)

// JPEG2000 marker codes
const (
	markerSOC uint16 = 0xFF4F // Start of codestream
	markerSOT uint16 = 0xFF90 // Start of tile-part
	markerEOC uint16 = 0xFFD9 // End of codestream
	markerSIZ uint16 = 0xFF51 // Image and tile size
	markerCOD uint16 = 0xFF52 // Coding style default
	markerCOM uint16 = 0xFF64 // Comment
)

// Registration values of the COM marker
const (
	comBinary = 0
	comLatin  = 1
)

// ComponentDescriptor describes one codestream component.
type ComponentDescriptor struct {
	Index       int
	Subsampling image.Point // XRsiz, YRsiz
	Precision   int
	Signed      bool

	// Bounds is the component's sample rectangle on its own grid.
	Bounds image.Rectangle
}

// Header contains the parsed codestream main header.
type Header struct {
	// From SIZ marker
	Profile    uint16          // Rsiz
	Area       image.Rectangle // (XOsiz,YOsiz)-(Xsiz,Ysiz) on the reference grid
	TileSize   image.Point     // XTsiz, YTsiz
	TileOffset image.Point     // XTOsiz, YTOsiz
	Components []ComponentDescriptor

	// From COD marker
	ProgressionOrder byte
	NumLayers        int
	MCT              bool
	NumDecompLevels  int

	// From COM markers carrying Latin text
	Comments []string

	// Computed
	NumXTiles int
	NumYTiles int
}

// NumTiles returns the number of tiles in the tile grid.
func (h *Header) NumTiles() int {
	return h.NumXTiles * h.NumYTiles
}

// Component returns the descriptor of component c.
func (h *Header) Component(c int) (ComponentDescriptor, error) {
	if c < 0 || c >= len(h.Components) {
		return ComponentDescriptor{}, fmt.Errorf("%w: %d of %d", ErrBadComponent, c, len(h.Components))
	}
	return h.Components[c], nil
}

// TileRect returns tile t's rectangle on the reference grid, clipped to the image area.
func (h *Header) TileRect(t int) image.Rectangle {
	tx := t % h.NumXTiles
	ty := t / h.NumXTiles
	r := image.Rect(
		h.TileOffset.X+tx*h.TileSize.X,
		h.TileOffset.Y+ty*h.TileSize.Y,
		h.TileOffset.X+(tx+1)*h.TileSize.X,
		h.TileOffset.Y+(ty+1)*h.TileSize.Y,
	)
	return r.Intersect(h.Area)
}

// TilesIn returns the indices of the tiles that intersect r, given on the reference grid.
func (h *Header) TilesIn(r image.Rectangle) []int {
	r = r.Intersect(h.Area)
	if r.Empty() {
		return nil
	}
	tx0 := (r.Min.X - h.TileOffset.X) / h.TileSize.X
	ty0 := (r.Min.Y - h.TileOffset.Y) / h.TileSize.Y
	tx1 := min((r.Max.X-h.TileOffset.X+h.TileSize.X-1)/h.TileSize.X, h.NumXTiles)
	ty1 := min((r.Max.Y-h.TileOffset.Y+h.TileSize.Y-1)/h.TileSize.Y, h.NumYTiles)

	tiles := make([]int, 0, (tx1-tx0)*(ty1-ty0))
	for ty := ty0; ty < ty1; ty++ {
		for tx := tx0; tx < tx1; tx++ {
			tiles = append(tiles, ty*h.NumXTiles+tx)
		}
	}
	return tiles
}

// isCodestream reports whether data starts with SOC followed by SIZ.
func isCodestream(data []byte) bool {
	return len(data) >= 4 &&
		binary.BigEndian.Uint16(data[0:2]) == markerSOC &&
		binary.BigEndian.Uint16(data[2:4]) == markerSIZ
}

// ParseHeader parses the main header of a raw codestream up to the first tile-part.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < 2 {
		return nil, ErrTruncatedData
	}
	if binary.BigEndian.Uint16(data[0:2]) != markerSOC {
		return nil, ErrInvalidMarker
	}

	h := &Header{}
	hasSIZ := false
	pos := 2
	for pos+2 <= len(data) {
		marker := binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2

		if marker == markerSOT || marker == markerEOC {
			break
		}
		if marker>>8 != 0xFF {
			return nil, fmt.Errorf("%w: 0x%04X at offset %d", ErrInvalidMarker, marker, pos-2)
		}
		if pos+2 > len(data) {
			return nil, ErrTruncatedData
		}
		segLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if segLen < 2 || pos+segLen > len(data) {
			return nil, fmt.Errorf("%w: marker 0x%04X segment", ErrTruncatedData, marker)
		}
		seg := data[pos : pos+segLen]

		var err error
		switch marker {
		case markerSIZ:
			err = parseSIZ(seg, h)
			hasSIZ = err == nil
		case markerCOD:
			err = parseCOD(seg, h)
		case markerCOM:
			parseCOM(seg, h)
		}
		if err != nil {
			return nil, err
		}
		pos += segLen
	}

	if !hasSIZ {
		return nil, fmt.Errorf("%w: missing SIZ marker", ErrInvalidHeader)
	}
	return h, nil
}

// parseSIZ parses the image size segment. seg starts at the Lsiz field.
func parseSIZ(seg []byte, h *Header) error {
	if len(seg) < 38 {
		return ErrTruncatedData
	}

	h.Profile = binary.BigEndian.Uint16(seg[2:4])
	xsiz := int(binary.BigEndian.Uint32(seg[4:8]))
	ysiz := int(binary.BigEndian.Uint32(seg[8:12]))
	xosiz := int(binary.BigEndian.Uint32(seg[12:16]))
	yosiz := int(binary.BigEndian.Uint32(seg[16:20]))
	h.Area = image.Rect(xosiz, yosiz, xsiz, ysiz)
	h.TileSize = image.Pt(
		int(binary.BigEndian.Uint32(seg[20:24])),
		int(binary.BigEndian.Uint32(seg[24:28])),
	)
	h.TileOffset = image.Pt(
		int(binary.BigEndian.Uint32(seg[28:32])),
		int(binary.BigEndian.Uint32(seg[32:36])),
	)

	if xsiz <= xosiz || ysiz <= yosiz {
		return fmt.Errorf("%w: empty image area %v", ErrInvalidHeader, h.Area)
	}
	if h.TileSize.X <= 0 || h.TileSize.Y <= 0 {
		return fmt.Errorf("%w: invalid tile size %v", ErrInvalidHeader, h.TileSize)
	}
	if h.TileOffset.X > xosiz || h.TileOffset.Y > yosiz ||
		h.TileOffset.X+h.TileSize.X <= xosiz || h.TileOffset.Y+h.TileSize.Y <= yosiz {
		return fmt.Errorf("%w: tile grid offset %v does not cover image origin", ErrInvalidHeader, h.TileOffset)
	}

	numComps := int(binary.BigEndian.Uint16(seg[36:38]))
	if numComps < 1 || numComps > 16384 {
		return fmt.Errorf("%w: invalid component count: %d", ErrInvalidHeader, numComps)
	}
	if len(seg) < 38+3*numComps {
		return ErrTruncatedData
	}

	h.Components = make([]ComponentDescriptor, numComps)
	for i := range numComps {
		off := 38 + 3*i
		ssiz := seg[off]
		xr, yr := int(seg[off+1]), int(seg[off+2])
		if xr == 0 || yr == 0 {
			return fmt.Errorf("%w: component %d has zero subsampling", ErrInvalidHeader, i)
		}
		h.Components[i] = ComponentDescriptor{
			Index:       i,
			Subsampling: image.Pt(xr, yr),
			Precision:   int(ssiz&0x7F) + 1,
			Signed:      ssiz&0x80 != 0,
			Bounds: image.Rect(
				ceilDiv(xosiz, xr), ceilDiv(yosiz, yr),
				ceilDiv(xsiz, xr), ceilDiv(ysiz, yr),
			),
		}
	}

	// numXtiles = ceil((Xsiz - XTOsiz) / XTsiz)
	h.NumXTiles = ceilDiv(xsiz-h.TileOffset.X, h.TileSize.X)
	h.NumYTiles = ceilDiv(ysiz-h.TileOffset.Y, h.TileSize.Y)
	if n := h.NumTiles(); n < 1 || n > 65535 {
		return fmt.Errorf("%w: tile count %d", ErrInvalidHeader, n)
	}
	return nil
}

// parseCOD parses the coding style default segment.
func parseCOD(seg []byte, h *Header) error {
	if len(seg) < 12 {
		return ErrTruncatedData
	}
	progOrder := seg[3]
	if progOrder > 4 {
		return fmt.Errorf("%w: invalid progression order: %d", ErrInvalidHeader, progOrder)
	}
	h.ProgressionOrder = progOrder
	h.NumLayers = int(binary.BigEndian.Uint16(seg[4:6]))
	h.MCT = seg[6] != 0
	h.NumDecompLevels = int(seg[7])
	if h.NumDecompLevels > 32 {
		return fmt.Errorf("%w: too many decomposition levels: %d", ErrInvalidHeader, h.NumDecompLevels)
	}
	return nil
}

// parseCOM keeps Latin comments and ignores binary ones.
func parseCOM(seg []byte, h *Header) {
	if len(seg) < 4 {
		return
	}
	if binary.BigEndian.Uint16(seg[2:4]) != comLatin {
		return
	}
	text, err := charmap.ISO8859_15.NewDecoder().Bytes(seg[4:])
	if err != nil {
		return
	}
	h.Comments = append(h.Comments, string(text))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

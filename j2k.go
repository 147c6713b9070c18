package jp2view

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mrjoshuak/go-jpeg2000"
	"golang.org/x/sync/singleflight"
)

// DefaultTileCache is the number of decoded tiles a J2KDecoder keeps.
const DefaultTileCache = 64

// decodedTile is an engine output image and the reference grid area it covers.
type decodedTile struct {
	img    image.Image
	covers image.Rectangle
}

// J2KDecoder is the ComponentDecoder backed by github.com/mrjoshuak/go-jpeg2000.
// The codestream is decoded a tile at a time; decoded tiles are cached and
// concurrent requests for the same tile share one decode.
type J2KDecoder struct {
	codestream []byte
	hdr        *Header

	tiles *lru.Cache[int, *decodedTile]
	group singleflight.Group
	full  atomic.Pointer[decodedTile] // set when the engine returned the whole image
}

var _ ComponentDecoder = (*J2KDecoder)(nil)

// NewJ2KDecoder is the default DecoderFactory.
func NewJ2KDecoder(codestream []byte, hdr *Header) (ComponentDecoder, error) {
	cache, err := lru.New[int, *decodedTile](DefaultTileCache)
	if err != nil {
		return nil, err
	}
	return &J2KDecoder{codestream: codestream, hdr: hdr, tiles: cache}, nil
}

func (d *J2KDecoder) DecodeComponent(ctx context.Context, comp int, rect image.Rectangle, dst []int32) error {
	desc, err := d.hdr.Component(comp)
	if err != nil {
		return err
	}
	if !rect.In(desc.Bounds) {
		return fmt.Errorf("%w: rectangle %v outside component %d bounds %v", ErrInvalidHeader, rect, comp, desc.Bounds)
	}
	if comp >= d.carried() {
		return fmt.Errorf("%w: component %d of %d", ErrUnsupported, comp, len(d.hdr.Components))
	}
	if len(dst) < rect.Dx()*rect.Dy() {
		return fmt.Errorf("jp2view: sample buffer holds %d samples, need %d", len(dst), rect.Dx()*rect.Dy())
	}

	area := d.hdr.Area
	s := desc.Subsampling
	var cur *decodedTile
	i := 0
	for sy := rect.Min.Y; sy < rect.Max.Y; sy++ {
		py := min(max(sy*s.Y, area.Min.Y), area.Max.Y-1)
		for sx := rect.Min.X; sx < rect.Max.X; sx++ {
			p := image.Pt(min(max(sx*s.X, area.Min.X), area.Max.X-1), py)
			if cur == nil || !p.In(cur.covers) {
				if cur, err = d.tileAt(ctx, p); err != nil {
					return err
				}
			}
			dst[i] = d.sample(cur, p, comp, desc.Precision)
			i++
		}
	}
	return nil
}

// tileAt returns the decoded tile containing reference grid point p.
func (d *J2KDecoder) tileAt(ctx context.Context, p image.Point) (*decodedTile, error) {
	if full := d.full.Load(); full != nil {
		return full, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := (p.Y-d.hdr.TileOffset.Y)/d.hdr.TileSize.Y*d.hdr.NumXTiles + (p.X-d.hdr.TileOffset.X)/d.hdr.TileSize.X
	if dt, ok := d.tiles.Get(t); ok {
		return dt, nil
	}

	v, err, _ := d.group.Do(strconv.Itoa(t), func() (any, error) {
		if dt, ok := d.tiles.Get(t); ok {
			return dt, nil
		}
		dt, err := d.decodeTile(t)
		if err != nil {
			return nil, err
		}
		if dt.covers == d.hdr.Area {
			d.full.Store(dt)
		} else {
			d.tiles.Add(t, dt)
		}
		return dt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*decodedTile), nil
}

func (d *J2KDecoder) decodeTile(t int) (*decodedTile, error) {
	var cfg *jpeg2000.Config
	covers := d.hdr.Area
	if d.hdr.NumTiles() > 1 {
		covers = d.hdr.TileRect(t)
		region := covers.Sub(d.hdr.Area.Min)
		cfg = &jpeg2000.Config{DecodeArea: &region}
	}

	img, err := jpeg2000.DecodeConfig(bytes.NewReader(d.codestream), cfg)
	if err != nil {
		return nil, fmt.Errorf("tile %d: %w", t, err)
	}
	// Engines may ignore the decode area and return the whole image.
	if img.Bounds().Size() == d.hdr.Area.Size() {
		covers = d.hdr.Area
	}
	return &decodedTile{img: img, covers: covers}, nil
}

// carried is the number of components the engine's output image holds.
func (d *J2KDecoder) carried() int {
	return min(len(d.hdr.Components), 4)
}

// sample reads component comp at reference grid point p from a decoded
// tile, scaled back to the component's precision. Components are laid out
// as gray(+alpha) for one or two components and RGB(+alpha) otherwise.
func (d *J2KDecoder) sample(dt *decodedTile, p image.Point, comp, prec int) int32 {
	b := dt.img.Bounds()
	x := b.Min.X + (p.X-dt.covers.Min.X)*b.Dx()/dt.covers.Dx()
	y := b.Min.Y + (p.Y-dt.covers.Min.Y)*b.Dy()/dt.covers.Dy()
	c := color.NRGBA64Model.Convert(dt.img.At(x, y)).(color.NRGBA64)

	var v uint16
	switch n := len(d.hdr.Components); {
	case n <= 2 && comp == 0:
		v = c.R
	case n <= 2 && comp == 1:
		v = c.A
	case comp == 0:
		v = c.R
	case comp == 1:
		v = c.G
	case comp == 2:
		v = c.B
	case comp == 3:
		v = c.A
	}

	if prec <= 16 {
		return int32(v >> (16 - prec))
	}
	return int32(v) << (prec - 16)
}

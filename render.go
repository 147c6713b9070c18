package jp2view

import (
	"context"
	"fmt"
	"image"
)

// ComponentDecoder is the decoding engine behind a Source. DecodeComponent
// writes the samples of component comp inside rect, given on the component's
// own sample grid, to dst in row-major order. Samples are unsigned, in
// [0, 2^precision). Implementations must be safe for concurrent use.
type ComponentDecoder interface {
	DecodeComponent(ctx context.Context, comp int, rect image.Rectangle, dst []int32) error
}

// channelSampler maps view pixels of one channel to component samples.
// A component with subsampling s covers k = s*exp/ref view pixels per sample.
type channelSampler struct {
	Channel
	desc ComponentDescriptor
	k    image.Point
	prec int
}

// renderer turns view rectangles into packed pixels for one mapping.
type renderer struct {
	dec       ComponentDecoder
	geom      ViewGeometry
	channels  []channelSampler
	palette   *Palette
	transform ColorTransform
}

// scratch is per-goroutine working memory for renderer.render.
type scratch struct {
	samples []int32
	planes  [4][]uint8 // r, g, b, a
}

func (s *scratch) plane(i, n int) []uint8 {
	if cap(s.planes[i]) < n {
		s.planes[i] = make([]uint8, n)
	}
	return s.planes[i][:n]
}

func (s *scratch) sampleBuf(n int) []int32 {
	if cap(s.samples) < n {
		s.samples = make([]int32, n)
	}
	return s.samples[:n]
}

func newRenderer(src *Source, mapping ChannelMapping, geom ViewGeometry) (*renderer, error) {
	refDesc, err := src.Component(geom.Reference)
	if err != nil {
		return nil, err
	}
	refSubs := refDesc.Subsampling

	r := &renderer{
		dec:       src.Decoder(),
		geom:      geom,
		palette:   mapping.Palette,
		transform: mapping.Transform,
	}
	for _, ch := range mapping.Channels {
		d, err := src.Component(ch.Component)
		if err != nil {
			return nil, err
		}
		k := image.Pt(
			d.Subsampling.X*geom.Expansion.X/refSubs.X,
			d.Subsampling.Y*geom.Expansion.Y/refSubs.Y,
		)
		if k.X < 1 || k.Y < 1 {
			return nil, fmt.Errorf("%w: component %d", ErrSubsamplingMismatch, ch.Component)
		}
		prec := d.Precision
		if ch.PaletteColumn >= 0 {
			if mapping.Palette == nil {
				return nil, fmt.Errorf("%w: channel uses palette column %d without a palette", ErrInvalidHeader, ch.PaletteColumn)
			}
			prec = mapping.Palette.Precision[ch.PaletteColumn]
		}
		r.channels = append(r.channels, channelSampler{Channel: ch, desc: d, k: k, prec: prec})
	}
	return r, nil
}

// sampleSpan returns the component samples covering view pixels [v0, v1) on one axis.
func sampleSpan(origin, v0, v1, k, lo, hi int) (int, int) {
	s0 := min(max((origin+v0)/k, lo), hi-1)
	s1 := min(max((origin+v1-1)/k+1, s0+1), hi)
	return s0, s1
}

// render writes the pixels of view rectangle rect to dst, whose rows are
// stride pixels apart.
func (r *renderer) render(ctx context.Context, rect image.Rectangle, dst []uint32, stride int, s *scratch) error {
	w, h := rect.Dx(), rect.Dy()
	n := w * h
	red, green, blue, alpha := s.plane(0, n), s.plane(1, n), s.plane(2, n), s.plane(3, n)
	clear(red)
	clear(green)
	clear(blue)
	for i := range alpha {
		alpha[i] = 0xFF
	}
	premultiplied := false

	for _, ch := range r.channels {
		b := ch.desc.Bounds
		sx0, sx1 := sampleSpan(r.geom.Origin.X, rect.Min.X, rect.Max.X, ch.k.X, b.Min.X, b.Max.X)
		sy0, sy1 := sampleSpan(r.geom.Origin.Y, rect.Min.Y, rect.Max.Y, ch.k.Y, b.Min.Y, b.Max.Y)
		srect := image.Rect(sx0, sy0, sx1, sy1)
		sw := srect.Dx()

		samples := s.sampleBuf(sw * srect.Dy())
		if err := r.dec.DecodeComponent(ctx, ch.Component, srect, samples); err != nil {
			return fmt.Errorf("component %d %v: %w", ch.Component, srect, err)
		}

		var out []uint8
		switch ch.Role {
		case RoleRed:
			out = red
		case RoleGreen:
			out = green
		case RoleBlue:
			out = blue
		case RoleAlpha, RolePremultipliedAlpha:
			out = alpha
			premultiplied = premultiplied || ch.Role == RolePremultipliedAlpha
		default:
			out = red
		}

		for y := range h {
			sy := min(max((r.geom.Origin.Y+rect.Min.Y+y)/ch.k.Y, sy0), sy1-1) - sy0
			row := samples[sy*sw : (sy+1)*sw]
			o := out[y*w : (y+1)*w]
			for x := range w {
				sx := min(max((r.geom.Origin.X+rect.Min.X+x)/ch.k.X, sx0), sx1-1) - sx0
				v, prec := row[sx], ch.prec
				if ch.PaletteColumn >= 0 {
					v, prec = lookupPalette(r.palette, ch.PaletteColumn, v)
				}
				o[x] = to8(v, prec)
			}
		}

		if ch.Role == RoleGray || ch.Role == RoleGeneric {
			copy(green, red)
			copy(blue, red)
		}
	}

	if r.transform == TransformSYCC {
		inverseSYCC(red, green, blue, w, h)
	}

	for y := range h {
		row := dst[y*stride : y*stride+w]
		for x := range row {
			i := y*w + x
			rv, gv, bv, av := red[i], green[i], blue[i], alpha[i]
			if premultiplied && av != 0 && av != 0xFF {
				rv = unpremultiply(rv, av)
				gv = unpremultiply(gv, av)
				bv = unpremultiply(bv, av)
			}
			row[x] = packARGB(av, rv, gv, bv)
		}
	}
	return nil
}

func unpremultiply(c, a uint8) uint8 {
	v := (int(c)*255 + int(a)/2) / int(a)
	return uint8(min(v, 255))
}

package jp2view

import "context"

// DefaultRegionPixels is the Decompressor's per-call pixel budget.
const DefaultRegionPixels = 16384

// Decompressor decodes each region synchronously on the calling goroutine,
// straight into the caller's buffer.
type Decompressor struct {
	engine
	src     *Source
	mapping ChannelMapping
	r       *renderer
	scr     *scratch
}

var _ RegionProducer = (*Decompressor)(nil)

// NewDecompressor returns an idle Decompressor for src with the given mapping.
func NewDecompressor(src *Source, mapping ChannelMapping) *Decompressor {
	return &Decompressor{src: src, mapping: mapping}
}

func (d *Decompressor) Start(geom ViewGeometry, maxRegionPixels int) error {
	if err := d.start(geom, maxRegionPixels, DefaultRegionPixels); err != nil {
		return err
	}
	r, err := newRenderer(d.src, d.mapping, geom)
	if err != nil {
		d.fail(err)
		return d.err
	}
	d.r = r
	d.scr = new(scratch)
	return nil
}

func (d *Decompressor) Process(ctx context.Context, buf []uint32) (Region, bool, error) {
	rect, ok, err := d.next(ctx, d.budget)
	if !ok {
		return Region{}, false, err
	}

	pix := growBuf(buf, rect.Dx()*rect.Dy())
	if err := d.r.render(ctx, rect, pix, rect.Dx(), d.scr); err != nil {
		return Region{}, false, d.fail(err)
	}
	d.incomplete.Subtract(rect)
	return Region{Rect: rect, Pixels: pix}, true, nil
}

func (d *Decompressor) Finish() error {
	if d.state == stateIdle {
		return nil
	}
	d.finish()
	d.r = nil
	d.scr = nil
	return nil
}

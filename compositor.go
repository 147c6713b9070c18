package jp2view

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// DefaultCompositeBudget is the Compositor's per-call pixel budget.
const DefaultCompositeBudget = 100000

// compositeTile is the side of the square tiles a band is split into.
// Each tile is rendered by exactly one worker.
const compositeTile = 64

// Compositor renders the view into a composition buffer using a worker
// pool and copies regions out of it on request.
type Compositor struct {
	engine
	src     *Source
	mapping ChannelMapping
	pool    *Pool
	r       *renderer
	surface []uint32 // Size.X * Size.Y, row-major
	scratch sync.Pool
}

var _ RegionProducer = (*Compositor)(nil)

// NewCompositor returns an idle Compositor. A nil pool renders on the
// calling goroutine.
func NewCompositor(src *Source, mapping ChannelMapping, pool *Pool) *Compositor {
	c := &Compositor{src: src, mapping: mapping, pool: pool}
	c.scratch.New = func() any { return new(scratch) }
	return c
}

func (c *Compositor) Start(geom ViewGeometry, maxRegionPixels int) error {
	if err := c.start(geom, maxRegionPixels, DefaultCompositeBudget); err != nil {
		return err
	}
	r, err := newRenderer(c.src, c.mapping, geom)
	if err != nil {
		return c.fail(err)
	}
	c.r = r
	c.surface = make([]uint32, geom.Size.X*geom.Size.Y)
	return nil
}

// Composite renders the next band of at most the pixel budget into the
// composition buffer and returns its rectangle. It returns false once the
// view is complete.
func (c *Compositor) Composite(ctx context.Context) (image.Rectangle, bool, error) {
	rect, ok, err := c.next(ctx, c.budget)
	if !ok {
		return image.Rectangle{}, false, err
	}

	tiles := splitTiles(rect, compositeTile)
	stride := c.geom.Size.X
	jobs := make([]Job, len(tiles))
	for i, t := range tiles {
		jobs[i] = func(ctx context.Context) error {
			s := c.scratch.Get().(*scratch)
			defer c.scratch.Put(s)
			return c.r.render(ctx, t, c.surface[t.Min.Y*stride+t.Min.X:], stride, s)
		}
	}

	if c.pool != nil {
		err = c.pool.Run(ctx, jobs)
	} else {
		for _, j := range jobs {
			if err = j(ctx); err != nil {
				break
			}
		}
	}
	if err != nil {
		return image.Rectangle{}, false, c.fail(err)
	}
	c.incomplete.Subtract(rect)
	return rect, true, nil
}

// GetRegion copies rect of the composition buffer to dst, row-major.
func (c *Compositor) GetRegion(rect image.Rectangle, dst []uint32) error {
	if c.surface == nil {
		return ErrNotStarted
	}
	if !rect.In(c.geom.Rect()) {
		return fmt.Errorf("%w: region %v outside view %v", ErrDegenerateView, rect, c.geom.Rect())
	}
	w := rect.Dx()
	if len(dst) < w*rect.Dy() {
		return fmt.Errorf("jp2view: region buffer holds %d pixels, need %d", len(dst), w*rect.Dy())
	}
	stride := c.geom.Size.X
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		off := y*stride + rect.Min.X
		copy(dst[(y-rect.Min.Y)*w:], c.surface[off:off+w])
	}
	return nil
}

func (c *Compositor) Process(ctx context.Context, buf []uint32) (Region, bool, error) {
	rect, ok, err := c.Composite(ctx)
	if !ok {
		return Region{}, false, err
	}
	pix := growBuf(buf, rect.Dx()*rect.Dy())
	if err := c.GetRegion(rect, pix); err != nil {
		return Region{}, false, c.fail(err)
	}
	return Region{Rect: rect, Pixels: pix}, true, nil
}

func (c *Compositor) Finish() error {
	if c.state == stateIdle {
		return nil
	}
	c.finish()
	c.r = nil
	c.surface = nil
	return nil
}

// splitTiles splits r into tiles of at most size x size, aligned to the view grid.
func splitTiles(r image.Rectangle, size int) []image.Rectangle {
	var tiles []image.Rectangle
	for y := r.Min.Y; y < r.Max.Y; y = (y/size + 1) * size {
		for x := r.Min.X; x < r.Max.X; x = (x/size + 1) * size {
			t := image.Rect(x, y, (x/size+1)*size, (y/size+1)*size)
			tiles = append(tiles, t.Intersect(r))
		}
	}
	return tiles
}

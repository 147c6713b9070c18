package jp2view

import (
	"context"
	"image"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Variant selects the RegionProducer a session uses.
type Variant int

const (
	VariantComposited Variant = iota
	VariantDirect
)

func (v Variant) String() string {
	if v == VariantDirect {
		return "direct"
	}
	return "composited"
}

// Options configures Render.
type Options struct {
	Variant Variant

	// MaxRegionPixels is the Direct variant's per-call pixel budget.
	MaxRegionPixels int

	// CompositeBudget is the Composited variant's per-call pixel budget.
	CompositeBudget int

	// MaxView caps the view on each axis. Zero axes are unlimited.
	MaxView image.Point

	// Threads is the requested worker count of the Composited variant.
	Threads int

	Logger log.FieldLogger

	// Warn receives recoverable conditions such as subsampling mismatches.
	// Nil logs them at warn level.
	Warn WarningFunc

	// SourceOptions are passed to Open.
	SourceOptions []SourceOption
}

// DefaultOptions returns the options of the command line viewer.
func DefaultOptions() Options {
	return Options{
		Variant:         VariantComposited,
		MaxRegionPixels: DefaultRegionPixels,
		CompositeBudget: DefaultCompositeBudget,
		MaxView:         image.Pt(1600, 1200),
		Threads:         runtime.NumCPU(),
		Logger:          log.StandardLogger(),
	}
}

// Stats summarises a completed session.
type Stats struct {
	Format   ContainerFormat
	Mapping  ChannelMapping
	View     ViewGeometry
	Threads  int
	Regions  int
	Narrowed bool
}

// Render decodes the image at path region by region into surface.
// The producer is finished before the pool is destroyed, and the pool is
// destroyed before the source is closed, on every return path.
func Render(ctx context.Context, path string, surface Surface, opts Options) (stats Stats, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("path", path)

	src, err := Open(path, append([]SourceOption{WithSourceLogger(logger)}, opts.SourceOptions...)...)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := src.Close(); err == nil {
			err = cerr
		}
	}()
	opts.Logger = logger
	return RenderSource(ctx, src, surface, opts)
}

// RenderSource is Render for an already open source. The source stays open.
func RenderSource(ctx context.Context, src *Source, surface Surface, opts Options) (stats Stats, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	stats.Format = src.Format

	warn := opts.Warn
	if warn == nil {
		warn = func(err error) { logger.Warn(err) }
	}
	mapping := Resolve(src)
	exp, mapping := ComputeExpansion(src, mapping, func(err error) {
		stats.Narrowed = true
		warn(err)
	})
	stats.Mapping = mapping

	geom, err := RenderedGeometry(src, mapping.Reference(), exp)
	if err != nil {
		return stats, err
	}
	geom = geom.Clip(opts.MaxView)
	stats.View = geom
	logger.WithFields(log.Fields{
		"format":     src.Format,
		"components": src.NumComponents(),
		"channels":   len(mapping.Channels),
		"reference":  geom.Reference,
		"expansion":  geom.Expansion,
		"view":       geom.Size,
	}).Info("view resolved")

	var (
		producer RegionProducer
		budget   int
	)
	switch opts.Variant {
	case VariantDirect:
		producer = NewDecompressor(src, mapping)
		budget = opts.MaxRegionPixels
		stats.Threads = 1
	default:
		pool := NewPool(max(opts.Threads, 1), WithPoolLogger(logger))
		defer pool.Destroy()
		stats.Threads = pool.NumThreads()
		logger.WithFields(log.Fields{"requested": opts.Threads, "threads": stats.Threads}).Info("worker pool started")
		producer = NewCompositor(src, mapping, pool)
		budget = opts.CompositeBudget
	}

	if err := producer.Start(geom, budget); err != nil {
		return stats, err
	}
	defer producer.Finish()

	var buf []uint32
	for {
		region, ok, err := producer.Process(ctx, buf)
		if err != nil {
			return stats, err
		}
		if !ok {
			break
		}
		buf = region.Pixels
		r := region.Rect
		if err := surface.PutRegion(geom.Size.X, geom.Size.Y, r.Dx(), r.Dy(), r.Min.X, r.Min.Y, region.Pixels); err != nil {
			return stats, err
		}
		stats.Regions++
		logger.WithField("region", r).Debug("region decoded")
	}

	logger.WithFields(log.Fields{"regions": stats.Regions, "variant": opts.Variant}).Info("render complete")
	return stats, nil
}

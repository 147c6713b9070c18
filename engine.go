package jp2view

import (
	"context"
	"fmt"
	"image"
)

// Region is one decoded rectangle of the view. Pixels holds
// Rect.Dx()*Rect.Dy() packed 0xAARRGGBB values in row-major order and is
// only valid until the next Process call on the producer that returned it.
type Region struct {
	Rect   image.Rectangle
	Pixels []uint32
}

// RegionProducer incrementally decodes a view one region at a time.
//
// Start moves an idle producer to the active state. Process returns the
// next region and true, or false once the whole view has been produced;
// after that it keeps returning false. A decode error moves the producer to
// the failed state, and every later Process call returns the same error.
// Finish releases per-decode state; it never touches the Source or Pool.
// A producer is not safe for concurrent use.
type RegionProducer interface {
	Start(geom ViewGeometry, maxRegionPixels int) error
	Process(ctx context.Context, buf []uint32) (Region, bool, error)
	Finish() error
}

type engineState int

const (
	stateIdle engineState = iota
	stateActive
	stateDone
	stateFailed
	stateFinished
)

func (s engineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateActive:
		return "active"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	case stateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MaxViewPixels bounds the view a producer will allocate buffers for.
const MaxViewPixels = 1 << 28

// engine is the state machine shared by both producers.
type engine struct {
	state      engineState
	geom       ViewGeometry
	budget     int
	incomplete *IncompleteArea
	err        error
}

func (e *engine) start(geom ViewGeometry, budget, defaultBudget int) error {
	switch e.state {
	case stateIdle:
	case stateFinished:
		return fmt.Errorf("%w: engine already finished", ErrAlreadyStarted)
	default:
		return ErrAlreadyStarted
	}
	if geom.Size.X <= 0 || geom.Size.Y <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrDegenerateView, geom.Size.X, geom.Size.Y)
	}
	if geom.Size.X*geom.Size.Y > MaxViewPixels {
		return fmt.Errorf("%w: %dx%d", ErrViewTooLarge, geom.Size.X, geom.Size.Y)
	}
	if budget <= 0 {
		budget = defaultBudget
	}
	e.geom = geom
	e.budget = budget
	e.incomplete = NewIncompleteArea(geom.Rect())
	e.state = stateActive
	return nil
}

// next returns the next rectangle to produce. ok is false once the view
// is complete or when the engine cannot produce.
func (e *engine) next(ctx context.Context, budget int) (image.Rectangle, bool, error) {
	switch e.state {
	case stateIdle, stateFinished:
		return image.Rectangle{}, false, ErrNotStarted
	case stateFailed:
		return image.Rectangle{}, false, e.err
	case stateDone:
		return image.Rectangle{}, false, nil
	}
	if e.incomplete.Empty() {
		e.state = stateDone
		return image.Rectangle{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, false, e.fail(err)
	}
	return e.incomplete.Next(budget), true, nil
}

func (e *engine) fail(err error) error {
	e.state = stateFailed
	e.err = fmt.Errorf("%w: %w", ErrEngineFailed, err)
	return e.err
}

func (e *engine) finish() {
	e.state = stateFinished
	e.incomplete = nil
}

// growBuf returns buf resliced to n, or a new slice when buf is too small.
func growBuf(buf []uint32, n int) []uint32 {
	if cap(buf) < n {
		return make([]uint32, n)
	}
	return buf[:n]
}

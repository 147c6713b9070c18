package jp2view

import (
	"fmt"
	"image"
)

// ViewGeometry is the pixel grid regions are produced on. View pixel (0,0)
// is the top-left pixel of the expanded reference component.
type ViewGeometry struct {
	Reference int
	Expansion image.Point
	Origin    image.Point // expanded reference origin
	Size      image.Point
}

// Rect returns the view rectangle, anchored at (0,0).
func (g ViewGeometry) Rect() image.Rectangle {
	return image.Rectangle{Max: g.Size}
}

// Clip caps the view size at max on each axis. Non-positive axes of max are ignored.
func (g ViewGeometry) Clip(max image.Point) ViewGeometry {
	if max.X > 0 && g.Size.X > max.X {
		g.Size.X = max.X
	}
	if max.Y > 0 && g.Size.Y > max.Y {
		g.Size.Y = max.Y
	}
	return g
}

// RenderedGeometry returns the view of the reference component ref expanded by exp.
func RenderedGeometry(src *Source, ref int, exp image.Point) (ViewGeometry, error) {
	d, err := src.Component(ref)
	if err != nil {
		return ViewGeometry{}, err
	}
	if exp.X < 1 || exp.Y < 1 {
		return ViewGeometry{}, fmt.Errorf("%w: expansion %v", ErrDegenerateView, exp)
	}
	return ViewGeometry{
		Reference: ref,
		Expansion: exp,
		Origin:    image.Pt(d.Bounds.Min.X*exp.X, d.Bounds.Min.Y*exp.Y),
		Size:      image.Pt(d.Bounds.Dx()*exp.X, d.Bounds.Dy()*exp.Y),
	}, nil
}

// IncompleteArea is the part of a view not yet produced. It is consumed in
// row bands. When a single row is wider than the pixel budget, the row is
// consumed in pieces and the unfinished remainder is kept in partial.
type IncompleteArea struct {
	partial image.Rectangle // rest of a row band that was split
	rest    image.Rectangle // untouched rows below partial
}

// NewIncompleteArea returns an area covering r.
func NewIncompleteArea(r image.Rectangle) *IncompleteArea {
	return &IncompleteArea{rest: r.Canon()}
}

// Empty reports whether nothing remains.
func (a *IncompleteArea) Empty() bool {
	return a.partial.Empty() && a.rest.Empty()
}

// Area returns the number of remaining pixels.
func (a *IncompleteArea) Area() int {
	n := 0
	if !a.partial.Empty() {
		n += a.partial.Dx() * a.partial.Dy()
	}
	if !a.rest.Empty() {
		n += a.rest.Dx() * a.rest.Dy()
	}
	return n
}

// Next returns the next rectangle to produce, holding at most budget pixels
// and never less than one pixel. It returns an empty rectangle once the
// area is empty. Next does not change the area; see Subtract.
func (a *IncompleteArea) Next(budget int) image.Rectangle {
	budget = max(budget, 1)
	if !a.partial.Empty() {
		r := a.partial
		r.Max.X = min(r.Max.X, r.Min.X+budget)
		return r
	}
	if a.rest.Empty() {
		return image.Rectangle{}
	}

	r := a.rest
	if w := r.Dx(); w <= budget {
		r.Max.Y = min(r.Max.Y, r.Min.Y+budget/w)
	} else {
		r.Max.Y = r.Min.Y + 1
		r.Max.X = r.Min.X + budget
	}
	return r
}

// Subtract removes r, which must be the rectangle last returned by Next.
func (a *IncompleteArea) Subtract(r image.Rectangle) {
	if r.Empty() {
		return
	}
	if !a.partial.Empty() {
		a.partial.Min.X = r.Max.X
		if a.partial.Empty() {
			a.partial = image.Rectangle{}
		}
		return
	}

	if r.Max.X < a.rest.Max.X {
		a.partial = image.Rect(r.Max.X, r.Min.Y, a.rest.Max.X, r.Max.Y)
	}
	a.rest.Min.Y = r.Max.Y
	if a.rest.Empty() {
		a.rest = image.Rectangle{}
	}
}

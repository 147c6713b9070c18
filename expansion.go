package jp2view

import (
	"fmt"
	"image"
)

// WarningFunc receives recoverable conditions. It is called synchronously
// and has no effect on control flow.
type WarningFunc func(error)

// ComputeExpansion returns the integer factor by which the reference
// component's grid is expanded so that every mapped component lands on whole
// view pixels. If some component's subsampling is not an integer multiple of
// the expanded reference grid, warn is told, the mapping is narrowed to the
// reference component alone and the expansion is (1,1).
func ComputeExpansion(src *Source, mapping ChannelMapping, warn WarningFunc) (image.Point, ChannelMapping) {
	ref := mapping.Reference()
	refDesc, err := src.Component(ref)
	if err != nil {
		if warn != nil {
			warn(err)
		}
		return image.Pt(1, 1), narrow(0)
	}
	refSubs := refDesc.Subsampling

	minSubs := refSubs
	for _, c := range mapping.Components() {
		d, err := src.Component(c)
		if err != nil {
			if warn != nil {
				warn(err)
			}
			return image.Pt(1, 1), narrow(ref)
		}
		minSubs.X = min(minSubs.X, d.Subsampling.X)
		minSubs.Y = min(minSubs.Y, d.Subsampling.Y)
	}
	exp := image.Pt(refSubs.X/minSubs.X, refSubs.Y/minSubs.Y)

	for _, c := range mapping.Components() {
		d, _ := src.Component(c)
		s := d.Subsampling
		if (s.X*exp.X)%refSubs.X != 0 || (s.Y*exp.Y)%refSubs.Y != 0 {
			if warn != nil {
				warn(fmt.Errorf("%w: component %d has subsampling %dx%d, reference component %d has %dx%d; displaying component %d alone",
					ErrSubsamplingMismatch, c, s.X, s.Y, ref, refSubs.X, refSubs.Y, ref))
			}
			return image.Pt(1, 1), narrow(ref)
		}
	}
	return exp, mapping
}

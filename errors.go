package jp2view

import "errors"

var (
	ErrInvalidMarker       = errors.New("jp2view: invalid marker")
	ErrInvalidHeader       = errors.New("jp2view: invalid header")
	ErrTruncatedData       = errors.New("jp2view: truncated data")
	ErrNotContainer        = errors.New("jp2view: not a recognised container")
	ErrUnreadableSource    = errors.New("jp2view: unreadable source")
	ErrSubsamplingMismatch = errors.New("jp2view: subsampling is not an integer multiple of the reference")
	ErrDegenerateView      = errors.New("jp2view: degenerate view geometry")
	ErrViewTooLarge        = errors.New("jp2view: view exceeds pixel buffer limit")
	ErrNotStarted          = errors.New("jp2view: engine not started")
	ErrAlreadyStarted      = errors.New("jp2view: engine already started")
	ErrEngineFailed        = errors.New("jp2view: decode failed")
	ErrClosed              = errors.New("jp2view: source already closed")
	ErrBadComponent        = errors.New("jp2view: component index out of range")
	ErrUnsupported         = errors.New("jp2view: unsupported by the decoding engine")
)

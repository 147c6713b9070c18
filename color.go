package jp2view

import (
	hwyimage "github.com/ajroetker/go-highway/hwy/contrib/image"
)

// to8 rescales a sample of the given precision to 8 bits.
// n-bit samples are scaled by 255 / (2^n - 1), so 4-bit values are multiplied by 17.
func to8(v int32, prec int) uint8 {
	if prec == 8 || prec <= 0 {
		return clampToUint8(v)
	}
	maxVal := int64(1)<<prec - 1
	s := (int64(v)*255 + maxVal/2) / maxVal
	if s < 0 {
		return 0
	}
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// clampToUint8 clamps a value to [0, 255] range
func clampToUint8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// clampFloat clamps a float to [0, 255] and converts to uint8
func clampFloat(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// packARGB packs one 0xAARRGGBB pixel.
func packARGB(a, r, g, b uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// unpackARGB is the inverse of packARGB.
func unpackARGB(p uint32) (a, r, g, b uint8) {
	return uint8(p >> 24), uint8(p >> 16), uint8(p >> 8), uint8(p)
}

// lookupPalette returns column col of the palette entry indexed by idx,
// clamping idx to the palette, and the column's precision.
func lookupPalette(p *Palette, col int, idx int32) (int32, int) {
	i := int(idx)
	if i < 0 {
		i = 0
	}
	if i >= len(p.Entries) {
		i = len(p.Entries) - 1
	}
	v := int32(p.Entries[i][col])
	prec := p.Precision[col]
	if p.Signed[col] {
		v += 1 << (prec - 1)
	}
	return v, prec
}

// inverseSYCC converts w x h planes of 8-bit sYCC to RGB in place.
// Chroma is centred on 128.
//
//	R = Y + 1.402 * Cr
//	G = Y - 0.344136 * Cb - 0.714136 * Cr
//	B = Y + 1.772 * Cb
func inverseSYCC(y, cb, cr []uint8, w, h int) {
	if w == 0 || h == 0 {
		return
	}
	buf := getPlaneBuf(w, h)
	defer putPlaneBuf(buf)

	loadPlane(buf.imgs[0], y, w, 0)
	loadPlane(buf.imgs[1], cb, w, 128)
	loadPlane(buf.imgs[2], cr, w, 128)

	hwyimage.InverseICT(buf.imgs[0], buf.imgs[1], buf.imgs[2], buf.imgs[3], buf.imgs[4], buf.imgs[5])

	storePlane(buf.imgs[3], y, w)
	storePlane(buf.imgs[4], cb, w)
	storePlane(buf.imgs[5], cr, w)
}

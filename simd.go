// Copyright 2025 go-jpeg2000 Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jp2view

import (
	"sync"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
)

// planeBuf holds 6 pooled SIMD-aligned planes for a colour transform
// (3 input + 3 output) over one region.
type planeBuf struct {
	imgs [6]*image.Image[float64]
	w, h int
}

var planePool = sync.Pool{New: func() any { return new(planeBuf) }}

// getPlaneBuf returns pooled planes of at least w x h. Regions of one
// session mostly share a size, so planes are only reallocated when it changes.
func getPlaneBuf(w, h int) *planeBuf {
	buf := planePool.Get().(*planeBuf)
	if buf.w != w || buf.h != h {
		for i := range buf.imgs {
			buf.imgs[i] = image.NewImage[float64](w, h)
		}
		buf.w = w
		buf.h = h
	}
	return buf
}

func putPlaneBuf(buf *planeBuf) {
	planePool.Put(buf)
}

// loadPlane copies a w-wide row-major 8-bit plane into img, subtracting bias.
func loadPlane(img *image.Image[float64], src []uint8, w int, bias float64) {
	for y := range img.Height() {
		row := img.Row(y)
		for x, v := range src[y*w : (y+1)*w] {
			row[x] = float64(v) - bias
		}
	}
}

// storePlane rounds img back into a w-wide row-major 8-bit plane.
func storePlane(img *image.Image[float64], dst []uint8, w int) {
	for y := range img.Height() {
		row := img.Row(y)
		out := dst[y*w : (y+1)*w]
		for x := range out {
			out[x] = clampFloat(row[x])
		}
	}
}

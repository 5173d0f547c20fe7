// Copyright 2025 go-highway Authors
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

package synet

import (
	"github.com/ajroetker/go-synet/hwy"
	"github.com/grailbio/base/must"
)

// Tensor is a typed view of NHWC data.
type Tensor struct {
	typ TensorType
	f32 []float32
	b16 []hwy.BFloat16
}

// Float32Tensor wraps fp32 data.
func Float32Tensor(data []float32) Tensor {
	return Tensor{typ: Float32, f32: data}
}

// BFloat16Tensor wraps bf16 data.
func BFloat16Tensor(data []hwy.BFloat16) Tensor {
	return Tensor{typ: BFloat16, b16: data}
}

// Type returns the element type.
func (t Tensor) Type() TensorType { return t.typ }

// Len returns the number of elements.
func (t Tensor) Len() int {
	if t.typ == BFloat16 {
		return len(t.b16)
	}
	return len(t.f32)
}

// Float32s returns the fp32 data, nil for a bf16 tensor.
func (t Tensor) Float32s() []float32 { return t.f32 }

// BFloat16s returns the bf16 data, nil for an fp32 tensor.
func (t Tensor) BFloat16s() []hwy.BFloat16 { return t.b16 }

// slice returns elements [off, off+n).
func (t Tensor) slice(off, n int) Tensor {
	if t.typ == BFloat16 {
		return Tensor{typ: BFloat16, b16: t.b16[off : off+n]}
	}
	return Tensor{typ: t.typ, f32: t.f32[off : off+n]}
}

// at returns element i widened to fp32.
func (t Tensor) at(i int) float32 {
	if t.typ == BFloat16 {
		return hwy.BFloat16ToFloat32(t.b16[i])
	}
	return t.f32[i]
}

// AsFloat32 returns the data widened to fp32, shared when already fp32.
func (t Tensor) AsFloat32() []float32 {
	if t.typ != BFloat16 {
		return t.f32
	}
	out := make([]float32, len(t.b16))
	hwy.BFloat16ToFloat32Slice(out, t.b16)
	return out
}

// convertMode is how the input stage gets channel-aligned bf16 rows.
type convertMode int

const (
	// convertPassThrough reads aligned bf16 source rows in place.
	convertPassThrough convertMode = iota
	// convertReorder copies bf16 pixels and zero pads their channels.
	convertReorder
	// convertFloat32 rounds fp32 pixels to bf16 and zero pads.
	convertFloat32
	// convertPadFloat32 zero pads fp32 pixels and leaves them fp32; each
	// row is rounded to bf16 when the input stage loads it.
	convertPadFloat32
)

func (m convertMode) String() string {
	switch m {
	case convertPassThrough:
		return "passthrough"
	case convertReorder:
		return "reorder"
	case convertPadFloat32:
		return "pad-fp32"
	default:
		return "convert"
	}
}

// converter produces rows of width pixels of k bf16 channels, the first
// channels of which come from the source and the rest are zero.
type converter struct {
	mode     convertMode
	width    int
	channels int
	k        int
}

// newConverter picks the strategy for source c. bf16Load is false for
// tiers that keep an fp32 source as fp32 until they load it.
func newConverter(c ConvParam, miK int, bf16Load bool) converter {
	cv := converter{width: c.SrcW, channels: c.SrcC, k: AlignHi(c.SrcC, miK)}
	switch {
	case c.SrcT == BFloat16 && cv.k == cv.channels:
		cv.mode = convertPassThrough
	case c.SrcT == BFloat16:
		cv.mode = convertReorder
	case bf16Load:
		cv.mode = convertFloat32
	default:
		cv.mode = convertPadFloat32
	}
	return cv
}

// convRings are the buffers a converter fills: a ring of bf16 rows, or for
// convertPadFloat32 a ring of fp32 rows plus the bf16 row they are rounded
// into on load.
type convRings struct {
	b16 RingBuffer[hwy.BFloat16]
	f32 RingBuffer[float32]
	row []hwy.BFloat16
}

// roundingRows rounds fp32 rows to bf16 as they are read. Each Row call
// reuses row, so a row is only valid until the next call.
type roundingRows struct {
	src rowSource[float32]
	row []hwy.BFloat16
}

func (r roundingRows) Row(y int) []hwy.BFloat16 {
	hwy.Float32ToBFloat16Slice(r.row, r.src.Row(y))
	return r.row
}

// source returns the bf16 rows the input kernel reads: the image itself
// when it passes through, otherwise the rings after convert has filled them.
func (cv converter) source(img Tensor, rings convRings) rowSource[hwy.BFloat16] {
	switch cv.mode {
	case convertPassThrough:
		return linearRows[hwy.BFloat16]{data: img.b16, stride: cv.width * cv.k}
	case convertPadFloat32:
		must.Truef(len(rings.row) >= cv.width*cv.k, "synet: load row of %d elements, need %d", len(rings.row), cv.width*cv.k)
		return roundingRows{src: rings.f32, row: rings.row[:cv.width*cv.k]}
	default:
		return rings.b16
	}
}

// convert fills source rows [yBeg, yEnd) of img into rings.
func (cv converter) convert(img Tensor, yBeg, yEnd int, rings convRings) {
	rowLen := cv.width * cv.channels
	switch cv.mode {
	case convertPassThrough:
	case convertPadFloat32:
		must.Truef(rings.f32.Stride() >= cv.width*cv.k, "synet: conversion row of %d elements, need %d", rings.f32.Stride(), cv.width*cv.k)
		rings.f32.Write(yBeg, yEnd, func(y int, row []float32) {
			cv.pad(img.f32[y*rowLen:(y+1)*rowLen], row)
		})
	default:
		must.Truef(rings.b16.Stride() >= cv.width*cv.k, "synet: conversion row of %d elements, need %d", rings.b16.Stride(), cv.width*cv.k)
		rings.b16.Write(yBeg, yEnd, func(y int, row []hwy.BFloat16) {
			cv.row(img, y*rowLen, row)
		})
	}
}

// row converts the source row at offset off.
func (cv converter) row(img Tensor, off int, dst []hwy.BFloat16) {
	c, k := cv.channels, cv.k
	if c == k && cv.mode == convertFloat32 {
		hwy.Float32ToBFloat16Slice(dst[:cv.width*k], img.f32[off:off+cv.width*c])
		return
	}
	for x := range cv.width {
		d := dst[x*k : (x+1)*k]
		s := off + x*c
		if cv.mode == convertReorder {
			copy(d, img.b16[s:s+c])
		} else {
			hwy.Float32ToBFloat16Slice(d[:c], img.f32[s:s+c])
		}
		hwy.ZeroBFloat16(d[c:])
	}
}

// pad copies one fp32 source row into dst, zero padding every pixel to k
// channels.
func (cv converter) pad(src, dst []float32) {
	c, k := cv.channels, cv.k
	if c == k {
		copy(dst, src)
		return
	}
	for x := range cv.width {
		d := dst[x*k : (x+1)*k]
		copy(d, src[x*c:(x+1)*c])
		clear(d[c:])
	}
}

// widen copies channels [c, c+n) of source rows [yBeg, yEnd) into an fp32
// ring of pixels stride apart. It feeds a leading depthwise stage from a
// bf16 source.
func widen(img Tensor, p ConvParam, yBeg, yEnd, c, n, stride int, ring RingBuffer[float32]) {
	ring.Write(yBeg, yEnd, func(y int, row []float32) {
		for x := range p.SrcW {
			s := (y*p.SrcW+x)*p.SrcC + c
			if img.typ == BFloat16 {
				hwy.BFloat16ToFloat32Slice(row[x*stride:x*stride+n], img.b16[s:s+n])
			} else {
				copy(row[x*stride:x*stride+n], img.f32[s:s+n])
			}
		}
	})
}

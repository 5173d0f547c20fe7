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
)

// rowTiles walks the row tiles of one channel tile. Each stage advances by
// its YStep, the first tile reaching at least YStart, clamped to the
// stage's height.
type rowTiles struct {
	step, start, limit [3]int
	beg                [3]int
}

func newRowTiles(a *AlgParam, limit [3]int) rowTiles {
	return rowTiles{step: a.YStep, start: a.YStart, limit: limit}
}

func (t *rowTiles) done() bool { return t.beg[2] >= t.limit[2] }

// next returns the [beg, end) row range of every stage for the next tile.
func (t *rowTiles) next() (beg, end [3]int) {
	beg = t.beg
	for i := range end {
		end[i] = RestrictRange(beg[i]+t.step[i], t.start[i], t.limit[i])
	}
	t.beg = end
	return beg, end
}

// sumBuffer returns where the output stage keeps partial sums: the
// destination itself when it is fp32, else buf3 when the plan needs it.
func (m *MergedConvolution) sumBuffer(dst Tensor, s buffers) []float32 {
	if dst.typ == Float32 {
		return dst.f32
	}
	return s.buf3
}

// ringSink stores depthwise rows into the bf16 ring feeding the output
// stage, zero padding every pixel to whole MiK groups.
func (m *MergedConvolution) ringSink(ring RingBuffer[hwy.BFloat16], n int) *depthwiseSink {
	return &depthwiseSink{b16: ring, stride: m.plan.MaC, pad: AlignHi(n, m.plan.MiK)}
}

// convRings lays the conversion rings of source in over the arena.
func (m *MergedConvolution) convRings(in ConvParam, s buffers) convRings {
	pl := &m.plan
	stride := in.SrcW * m.conv.k
	var r convRings
	switch {
	case pl.BufH[0] == 0:
	case pl.padFloat32:
		r.f32 = NewRingBuffer(s.buf4, pl.BufH[0], stride)
		r.row = s.buf0[:stride]
	default:
		r.b16 = NewRingBuffer(s.buf0, pl.BufH[0], stride)
	}
	return r
}

// forwardCdc runs input 1×1, depthwise and output 1×1 on one image.
func (m *MergedConvolution) forwardCdc(src, dst Tensor, s buffers) {
	pl := &m.plan
	in, dw := m.param.Conv[0], m.param.Conv[1]
	rings0 := m.convRings(in, s)
	ring1 := NewRingBuffer(s.buf1, pl.BufH[1], dw.SrcW*pl.MaC)
	ring2 := NewRingBuffer(s.buf2, pl.BufH[2], dw.DstW*pl.MaC)
	rows0 := m.conv.source(src, rings0)
	sum := m.sumBuffer(dst, s)
	for c := 0; c < pl.channels; c += pl.MaC {
		n := min(pl.MaC, pl.channels-c)
		phase := phaseFor(c, pl.MaC, pl.channels)
		sink := m.ringSink(ring2, n)
		tiles := newRowTiles(&pl.AlgParam, [3]int{in.SrcH, dw.SrcH, dw.DstH})
		for !tiles.done() {
			beg, end := tiles.next()
			m.conv.convert(src, beg[0], end[0], rings0)
			m.input.run(rows0, beg[1], end[1], c, n, ring1)
			m.depthwise.run(ring1, pl.MaC, 0, beg[2], end[2], c, n, sink)
			m.output.run(ring2, beg[2], end[2], c, n, phase, sum, dst, src)
		}
	}
}

// forwardCd runs input 1×1 and depthwise on one image. The depthwise stage
// writes the destination directly, so there is nothing to accumulate.
func (m *MergedConvolution) forwardCd(src, dst Tensor, s buffers) {
	pl := &m.plan
	in, dw := m.param.Conv[0], m.param.Conv[1]
	rings0 := m.convRings(in, s)
	ring1 := NewRingBuffer(s.buf1, pl.BufH[1], dw.SrcW*pl.MaC)
	rows0 := m.conv.source(src, rings0)
	rowLen := dw.DstW * dw.DstC
	sink := &depthwiseSink{stride: dw.DstC}
	if dst.typ == BFloat16 {
		sink.b16 = linearRows[hwy.BFloat16]{data: dst.b16, stride: rowLen}
	} else {
		sink.f32 = linearRows[float32]{data: dst.f32, stride: rowLen}
	}
	if m.param.Add {
		sink.resid, sink.residRow = src, rowLen
	}
	for c := 0; c < pl.channels; c += pl.MaC {
		n := min(pl.MaC, pl.channels-c)
		sink.off = c
		tiles := newRowTiles(&pl.AlgParam, [3]int{in.SrcH, dw.SrcH, dw.DstH})
		for !tiles.done() {
			beg, end := tiles.next()
			m.conv.convert(src, beg[0], end[0], rings0)
			m.input.run(rows0, beg[1], end[1], c, n, ring1)
			m.depthwise.run(ring1, pl.MaC, 0, beg[2], end[2], c, n, sink)
		}
	}
}

// forwardDc runs depthwise and output 1×1 on one image. An fp32 source is
// read in place; a bf16 source is widened tile by tile into buf1.
func (m *MergedConvolution) forwardDc(src, dst Tensor, s buffers) {
	pl := &m.plan
	dw := m.param.Conv[0]
	ring2 := NewRingBuffer(s.buf2, pl.BufH[2], dw.DstW*pl.MaC)
	var ring1 RingBuffer[float32]
	var rows1 rowSource[float32]
	stride := dw.SrcC
	if pl.convertDw {
		ring1 = NewRingBuffer(s.buf1, pl.BufH[1], dw.SrcW*pl.MaC)
		rows1, stride = ring1, pl.MaC
	} else {
		rows1 = linearRows[float32]{data: src.f32, stride: dw.SrcW * dw.SrcC}
	}
	sum := m.sumBuffer(dst, s)
	for c := 0; c < pl.channels; c += pl.MaC {
		n := min(pl.MaC, pl.channels-c)
		phase := phaseFor(c, pl.MaC, pl.channels)
		sink := m.ringSink(ring2, n)
		off := c
		if pl.convertDw {
			off = 0
		}
		tiles := newRowTiles(&pl.AlgParam, [3]int{0, dw.SrcH, dw.DstH})
		for !tiles.done() {
			beg, end := tiles.next()
			if pl.convertDw {
				widen(src, dw, beg[1], end[1], c, n, pl.MaC, ring1)
			}
			m.depthwise.run(rows1, stride, off, beg[2], end[2], c, n, sink)
			m.output.run(ring2, beg[2], end[2], c, n, phase, sum, dst, src)
		}
	}
}

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
	"fmt"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/samber/lo"
)

// AlgParam is the cache plan of one instance. Stage indices are semantic:
// 0 is the input 1×1 convolution, 1 the depthwise one and 2 the output 1×1
// convolution.
type AlgParam struct {
	// MiC is the channel granularity of the backend and MiK the alignment
	// of the packed 1×1 reduction dimension.
	MiC, MiK int

	// MaC is the channel tile width.
	MaC int

	// YStep is the number of rows a stage advances per row tile and
	// YStart the row its first tile must reach.
	YStep, YStart [3]int

	// BufH is the ring height of each stage's buffer, a power of two, or 0
	// when the stage reads its input in place.
	BufH [3]int

	// DW are the packed weight strides per channel: aligned input channels
	// of the input stage, kernel taps of the depthwise stage and aligned
	// output channels of the output stage. DP is 1 for stages whose
	// activation takes per-channel parameters.
	DW, DP [3]int

	// Elem holds the element widths of the data the first kernel reads and
	// of the destination.
	Elem [2]int

	// Accumulate reports a dedicated fp32 accumulation buffer for output
	// sums spanning several channel tiles.
	Accumulate bool
}

func (a AlgParam) String() string {
	return fmt.Sprintf("miC=%d miK=%d maC=%d yStep=%v yStart=%v bufH=%v", a.MiC, a.MiK, a.MaC, a.YStep, a.YStart, a.BufH)
}

// plan is an AlgParam plus the derived scratch layout.
type plan struct {
	AlgParam

	st stageSet

	// channels is the width of the depthwise stage, the dimension MaC tiles.
	channels int

	// passThrough is set when the input stage reads bf16 source rows in
	// place; convertDw when the depthwise stage reads widened bf16 source
	// rows from buf1; padFloat32 when the source rows stay fp32 in buf4
	// and buf0 is the one bf16 row they are rounded into.
	passThrough, convertDw, padFloat32 bool

	// buf holds the element counts of buf0 (bf16), buf1 (f32), buf2 (bf16),
	// buf3 (f32) and buf4 (f32).
	buf [5]int
}

var bufElem = [5]int{2, 4, 2, 4, 4}

// externalBytes returns the arena size needed to carve every buffer.
func (p plan) externalBytes() int {
	n := 0
	for i, e := range p.buf {
		if e > 0 {
			n += e*bufElem[i] + hwy.ArenaSlack
		}
	}
	return n
}

// rowPlan is one candidate of the row sweep.
type rowPlan struct {
	yStep, yStart, bufH [3]int
}

// planTiled computes the cache plan of a tiled topology.
func planTiled(p MergConvParam, t Topology, be backendDesc, cache hwy.CacheSizes) plan {
	st := t.stages()
	dw := p.Conv[st.dw]
	first, last := p.First(), p.Last()

	pl := plan{st: st, channels: dw.SrcC}
	pl.MiC, pl.MiK = be.lanes, be.miK
	miC, miK := pl.MiC, pl.MiK

	weightBytes := lo.SumBy([]int{st.in, st.dw, st.out}, func(i int) int {
		if i < 0 {
			return 0
		}
		c := p.Conv[i]
		if i == st.dw {
			return c.KernelY * c.KernelX * AlignHi(c.SrcC, miC) * 4
		}
		return AlignHi(c.SrcC, miK) * AlignHi(c.DstC, 2*miC) * 2
	})
	count := weightBytes/max(cache.L3/2, 1) + 1
	step := max(2*miC, miK)
	// Rounding the share up keeps the tile count at most count.
	pl.MaC = min(AlignHi(DivHi(pl.channels, count), step), AlignHi(pl.channels, step))

	pl.passThrough = st.in >= 0 && first.SrcT == BFloat16 && first.SrcC%miK == 0
	pl.convertDw = st.in < 0 && first.SrcT == BFloat16
	pl.padFloat32 = st.in >= 0 && first.SrcT == Float32 && !be.bf16Load

	srcK := AlignHi(first.SrcC, miK)
	rows := func(yStep int) (rowPlan, int) {
		var r rowPlan
		r.yStep[2] = yStep
		r.yStart[2] = yStep
		if st.out >= 0 {
			r.bufH[2] = Pow2Hi(yStep)
		}
		kExt := dw.KernelExtentY()
		r.yStep[1] = yStep * dw.StrideY
		r.yStart[1] = min((r.yStart[2]-1)*dw.StrideY+kExt-dw.PadY, dw.SrcH)
		if st.in >= 0 || pl.convertDw {
			// The ring must hold the receptive field of one row tile
			// and everything a tile writes ahead of it.
			r.bufH[1] = Pow2Hi(max((yStep-1)*dw.StrideY+kExt, r.yStep[1]+dw.PadY, r.yStart[1]))
		}
		if st.in >= 0 {
			r.yStep[0] = r.yStep[1]
			r.yStart[0] = min(r.yStart[1], first.SrcH)
			if !pl.passThrough {
				r.bufH[0] = Pow2Hi(max(r.yStep[0], r.yStart[0]))
			}
		}
		bytes := r.bufH[0]*first.SrcW*srcK*2 + r.bufH[1]*dw.SrcW*pl.MaC*4 + r.bufH[2]*dw.DstW*pl.MaC*2
		if pl.padFloat32 && r.bufH[0] > 0 {
			bytes += r.bufH[0]*first.SrcW*srcK*2 + first.SrcW*srcK*2
		}
		return r, bytes
	}
	chosen, _ := rows(1)
	for yStep := dw.DstH; yStep >= 1; yStep-- {
		r, bytes := rows(yStep)
		if bytes <= cache.L2 {
			chosen = r
			break
		}
	}
	pl.YStep, pl.YStart, pl.BufH = chosen.yStep, chosen.yStart, chosen.bufH

	switch t {
	case TopologyCdc:
		pl.DW = [3]int{AlignHi(first.SrcC, miK), dw.KernelY * dw.KernelX, AlignHi(last.DstC, miC)}
	case TopologyCd:
		pl.DW = [3]int{AlignHi(first.SrcC, miK), dw.KernelY * dw.KernelX, 0}
	case TopologyDc:
		pl.DW = [3]int{0, dw.KernelY * dw.KernelX, AlignHi(last.DstC, miC)}
	}
	for sem, i := range [3]int{st.in, st.dw, st.out} {
		if i >= 0 && p.Conv[i].Activation.PerChannel() {
			pl.DP[sem] = 1
		}
	}
	pl.Elem[0] = 2
	if st.in < 0 {
		pl.Elem[0] = 4
	}
	pl.Elem[1] = last.DstT.Size()

	switch {
	case pl.BufH[0] == 0:
	case pl.padFloat32:
		pl.buf[0] = first.SrcW * srcK
		pl.buf[4] = pl.BufH[0] * first.SrcW * srcK
	default:
		pl.buf[0] = pl.BufH[0] * first.SrcW * srcK
	}
	pl.buf[1] = pl.BufH[1] * dw.SrcW * pl.MaC
	pl.buf[2] = pl.BufH[2] * dw.DstW * pl.MaC
	pl.Accumulate = st.out >= 0 && last.DstT == BFloat16 && pl.MaC < pl.channels
	if pl.Accumulate {
		pl.buf[3] = last.DstSize()
	}
	return pl
}

// planBase sizes the reference pipeline: the source widened to f32 plus
// every stage's f32 output for one image.
func planBase(p MergConvParam) plan {
	pl := plan{st: stageSet{in: -1, dw: -1, out: -1}}
	pl.MiC, pl.MiK = 1, 1
	pl.Elem = [2]int{4, p.Last().DstT.Size()}
	pl.buf[1] = p.SrcSize() + lo.SumBy(p.Conv, ConvParam.DstSize)
	return pl
}

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

// accumPhase is the state of the output stage's accumulation across
// channel tiles. A single-tile plan runs ZeroInit|Finalize in one call.
type accumPhase uint8

const (
	// phaseAccumulate loads the partial sums, adds this tile and stores
	// them back.
	phaseAccumulate accumPhase = 0
	// phaseZeroInit starts the sums from the bias.
	phaseZeroInit accumPhase = 1 << iota
	// phaseFinalize applies the activation and the residual add and
	// writes the destination type.
	phaseFinalize
)

func (ph accumPhase) String() string {
	switch ph {
	case phaseAccumulate:
		return "accumulate"
	case phaseZeroInit:
		return "zero"
	case phaseFinalize:
		return "finalize"
	default:
		return "zero|finalize"
	}
}

// phaseFor returns the phase of the channel tile starting at c.
func phaseFor(c, maC, channels int) accumPhase {
	var ph accumPhase
	if c == 0 {
		ph |= phaseZeroInit
	}
	if c+maC >= channels {
		ph |= phaseFinalize
	}
	return ph
}

// outputConv is the output 1×1 convolution stage. It reads one channel
// tile of bf16 depthwise rows and adds its contribution to every output
// channel.
type outputConv struct {
	p       ConvParam
	miK     int
	weights packedPairs
	bias    []float32
	table   kernelTable
	add     bool
}

func newOutputConv(p ConvParam, miK int, weights packedPairs, bias []float32, table kernelTable, add bool) *outputConv {
	return &outputConv{p: p, miK: miK, weights: weights, bias: bias, table: table, add: add}
}

// run handles rows [yBeg, yEnd) for input channels [c, c+n), read from src
// with pixels src.Stride()/DstW apart. Partial sums live in sum, laid out
// like the destination; it may be nil for a ZeroInit|Finalize phase. On
// Finalize the result, plus resid when adding, is written to dst.
func (oc *outputConv) run(src RingBuffer[hwy.BFloat16], yBeg, yEnd, c, n int, phase accumPhase, sum []float32, dst, resid Tensor) {
	kt := &oc.table
	lanes := kt.lanes
	w, channels := oc.p.DstW, oc.p.DstC
	aStride := src.Stride() / w
	pairs := AlignHi(n, oc.miK) / 2
	pair0 := c / 2
	tileStride := oc.weights.tileStride()
	var buf [maxAcc]float32
	src.Read(yBeg, yEnd, func(y int, a []hwy.BFloat16) {
		for x := 0; x < w; x += kt.rows {
			r := min(kt.rows, w-x)
			for d0 := 0; d0 < channels; d0 += kt.groups * lanes {
				g := min(kt.groups, DivHi(channels-d0, lanes))
				cw := g * lanes
				valid := min(cw, channels-d0)
				acc := buf[:r*cw]
				for i := range r {
					row := acc[i*cw : (i+1)*cw]
					if phase&phaseZeroInit != 0 {
						copy(row, oc.bias[d0:d0+cw])
						continue
					}
					off := (y*w+x+i)*channels + d0
					copy(row, sum[off:off+valid])
					clear(row[valid:])
				}
				kt.get(r, g)(a[x*aStride:], aStride, oc.weights.tile(d0/lanes, pair0), tileStride, pairs, acc)
				for i := range r {
					v := acc[i*cw : i*cw+valid]
					off := (y*w+x+i)*channels + d0
					if phase&phaseFinalize == 0 {
						copy(sum[off:off+valid], v)
						continue
					}
					oc.finalize(v, d0, off, dst, resid)
				}
			}
		}
	})
}

// finalize applies the activation and residual add to the sums of output
// channels [d0, d0+len(v)) and stores them at dst[off:].
func (oc *outputConv) finalize(v []float32, d0, off int, dst, resid Tensor) {
	oc.table.epilogue(v, d0)
	if oc.add {
		for f := range v {
			v[f] += resid.at(off + f)
		}
	}
	if dst.typ == BFloat16 {
		hwy.Float32ToBFloat16Slice(dst.b16[off:off+len(v)], v)
		return
	}
	copy(dst.f32[off:off+len(v)], v)
}

func (oc *outputConv) bytes() int {
	return oc.weights.bytes() + len(oc.bias)*4
}

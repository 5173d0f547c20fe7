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

// inputConv is the input 1×1 convolution stage: a bf16 matrix product of
// source pixels by packed weights, with bias and activation, producing
// fp32 rows of one channel tile.
type inputConv struct {
	width   int // pixels per row
	k       int // aligned input channels, the pixel stride of the source
	weights packedPairs
	bias    []float32
	table   kernelTable
}

func newInputConv(p ConvParam, k int, weights packedPairs, bias []float32, table kernelTable) *inputConv {
	return &inputConv{width: p.SrcW, k: k, weights: weights, bias: bias, table: table}
}

// run computes rows [yBeg, yEnd) for output channels [c, c+n) into dst,
// whose pixels are dst.Stride()/width elements apart. Lanes of the last
// group past n are written as zero.
func (ic *inputConv) run(src rowSource[hwy.BFloat16], yBeg, yEnd, c, n int, dst RingBuffer[float32]) {
	kt := &ic.table
	lanes := kt.lanes
	stride := dst.Stride() / ic.width
	tileStride := ic.weights.tileStride()
	var buf [maxAcc]float32
	dst.Write(yBeg, yEnd, func(y int, out []float32) {
		a := src.Row(y)
		for x := 0; x < ic.width; x += kt.rows {
			r := min(kt.rows, ic.width-x)
			for f0 := 0; f0 < n; f0 += kt.groups * lanes {
				g := min(kt.groups, DivHi(n-f0, lanes))
				cw := g * lanes
				acc := buf[:r*cw]
				for i := range r {
					copy(acc[i*cw:(i+1)*cw], ic.bias[c+f0:c+f0+cw])
				}
				kt.get(r, g)(a[x*ic.k:], ic.k, ic.weights.tile((c+f0)/lanes, 0), tileStride, ic.weights.pairs, acc)
				valid := min(cw, n-f0)
				for i := range r {
					o := out[(x+i)*stride+f0 : (x+i)*stride+f0+cw]
					copy(o, acc[i*cw:i*cw+valid])
					kt.epilogue(o[:valid], c+f0)
					clear(o[valid:])
				}
			}
		}
	})
}

func (ic *inputConv) bytes() int {
	return ic.weights.bytes() + len(ic.bias)*4
}

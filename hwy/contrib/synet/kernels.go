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
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/grailbio/base/must"
)

// maxAcc bounds the accumulator block of one micro-kernel call: the widest
// tier covers 16 pixels by two groups of 16 lanes.
const maxAcc = 2 * hwy.TileRows * hwy.TileCols

// gemm accumulates a block of a 1×1 convolution: rows pixels of a, pixel
// stride aStride, against groups weight tiles of w, tile stride wStride,
// over pairs input channel pairs. acc is laid out [rows][groups*lanes] and
// holds the starting sums.
type gemm func(a []hwy.BFloat16, aStride int, w []hwy.BFloat16, wStride, pairs int, acc []float32)

// maxAccVecs bounds the accumulator registers of one lane-tier call.
const maxAccVecs = 2 * hwy.TileRows

// lanesGemm returns the register-tier kernel for one block shape. The
// rows×groups sums stay in lanes-wide vectors for the whole reduction;
// each step adds one input channel pair through hwy.DotPairsBF16, in
// increasing pair order.
func lanesGemm(lanes, rows, groups int) gemm {
	must.Truef(rows*groups <= maxAccVecs && groups <= 2, "synet: %dx%d block exceeds the accumulator registers", rows, groups)
	cw := groups * lanes
	return func(a []hwy.BFloat16, aStride int, w []hwy.BFloat16, wStride, pairs int, acc []float32) {
		var sums [maxAccVecs]hwy.Vec[float32]
		for i := range rows {
			for j := range groups {
				sums[i*groups+j] = hwy.LoadN(acc[i*cw+j*lanes:], lanes)
			}
		}
		var w0, w1 [2]hwy.Vec[float32]
		for p := range pairs {
			for j := range groups {
				w0[j], w1[j] = hwy.PromoteEvenOddBF16(w[j*wStride+2*p*lanes:], lanes)
			}
			for i := range rows {
				a0 := hwy.SetN(hwy.BFloat16ToFloat32(a[i*aStride+2*p]), lanes)
				a1 := hwy.SetN(hwy.BFloat16ToFloat32(a[i*aStride+2*p+1]), lanes)
				for j := range groups {
					k := i*groups + j
					sums[k] = hwy.DotPairsBF16(sums[k], a0, w0[j], a1, w1[j])
				}
			}
		}
		for i := range rows {
			for j := range groups {
				hwy.Store(sums[i*groups+j], acc[i*cw+j*lanes:])
			}
		}
	}
}

// tileGemm returns the matrix-tile kernel for rows pixels: one 16-lane
// group, pairs a multiple of TileDepth/2.
func tileGemm(rows int) gemm {
	const depthPairs = hwy.TileDepth / 2
	return func(a []hwy.BFloat16, aStride int, w []hwy.BFloat16, _, pairs int, acc []float32) {
		must.Truef(pairs%depthPairs == 0, "synet: tile kernel needs pairs in multiples of %d, got %d", depthPairs, pairs)
		var t hwy.Tile
		t.Load(acc, hwy.TileCols, rows, hwy.TileCols)
		for p := 0; p < pairs; p += depthPairs {
			t.DotBF16(a[2*p:], aStride, rows, w[2*p*hwy.TileCols:], hwy.TileDepth)
		}
		t.Store(acc, hwy.TileCols, rows, hwy.TileCols)
	}
}

// microKey selects a micro-kernel: the activation of the stage it serves,
// pixels per call and channel groups per call.
type microKey struct {
	act    activation.Kind
	rows   int
	groups int
}

func (k microKey) String() string {
	return fmt.Sprintf("%s/%dx%d", k.act, k.rows, k.groups)
}

// kernelTable holds every micro-kernel shape a stage can call, built once.
type kernelTable struct {
	act      activation.Kind
	rows     int
	groups   int
	lanes    int
	kernels  map[microKey]gemm
	epilogue activation.Func
}

// newKernelTable builds the kernels of tier be for a stage with activation
// act: full blocks plus every tail of fewer pixels or one group.
func newKernelTable(be backendDesc, act activation.Params) kernelTable {
	kt := kernelTable{
		act:      act.Kind,
		rows:     be.rows,
		groups:   2,
		lanes:    be.lanes,
		kernels:  make(map[microKey]gemm),
		epilogue: act.Resolve(),
	}
	if be.tile {
		kt.groups = 1
	}
	for r := 1; r <= kt.rows; r++ {
		for g := 1; g <= kt.groups; g++ {
			key := microKey{act: act.Kind, rows: r, groups: g}
			if be.tile {
				kt.kernels[key] = tileGemm(r)
			} else {
				kt.kernels[key] = lanesGemm(be.lanes, r, g)
			}
		}
	}
	return kt
}

func (kt kernelTable) get(rows, groups int) gemm {
	k, ok := kt.kernels[microKey{act: kt.act, rows: rows, groups: groups}]
	must.Truef(ok, "synet: no micro-kernel for %s", microKey{kt.act, rows, groups})
	return k
}

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
	"testing"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isPow2OrZero(v int) bool {
	return v >= 0 && v&(v-1) == 0
}

func TestPlanInvariants(t *testing.T) {
	shapes := map[string]MergConvParam{
		"cdc":          cdc(14, 13, 8, 48, 16, 3, 1),
		"cdc-stride2":  cdc(15, 14, 8, 40, 16, 3, 2),
		"cdc-5x5":      cdc(12, 12, 6, 72, 24, 5, 1),
		"cdc-bf16":     withTypes(cdc(14, 13, 32, 48, 16, 3, 1), BFloat16, BFloat16),
		"cd":           cd(14, 13, 8, 33, 3, 1),
		"cd-stride2":   cd(14, 13, 8, 33, 3, 2),
		"dc":           dc(14, 13, 40, 17, 3, 1),
		"dc-bf16":      withTypes(dc(14, 13, 40, 17, 5, 2), BFloat16, Float32),
		"dc-1x1-strd2": dc(14, 13, 16, 16, 1, 2),
	}
	caches := []hwy.CacheSizes{
		tinyCaches,
		{L1: 1 << 10, L2: 16 << 10, L3: 8 << 10},
		bigCaches,
	}
	for name, p := range shapes {
		for _, be := range allBackends {
			for _, c := range caches {
				t.Run(fmt.Sprintf("%s/%s/%s", name, be, c), func(t *testing.T) {
					topo := SelectTopology(p)
					require.NotEqual(t, TopologyBase, topo)
					desc := be.desc()
					pl := planTiled(p, topo, desc, c)
					st := topo.stages()
					dw := p.Conv[st.dw]

					for i, h := range pl.BufH {
						assert.True(t, isPow2OrZero(h), "BufH[%d] = %d", i, h)
					}
					step := max(2*desc.lanes, desc.miK)
					assert.Zero(t, pl.MaC%step, "MaC %d not a multiple of %d", pl.MaC, step)
					assert.LessOrEqual(t, pl.MaC, AlignHi(pl.channels, step))
					assert.Positive(t, pl.MaC)
					assert.Zero(t, pl.MaC%desc.miK)

					assert.Equal(t, st.out >= 0, pl.BufH[2] > 0)
					assert.Equal(t, st.in >= 0 || p.First().SrcT == BFloat16, pl.BufH[1] > 0)
					assert.Equal(t, st.in >= 0 && !pl.passThrough, pl.BufH[0] > 0)
					assert.Equal(t, st.out >= 0 && p.Last().DstT == BFloat16 && pl.MaC < pl.channels, pl.Accumulate)

					assert.Equal(t, st.in >= 0 && p.First().SrcT == Float32 && !desc.bf16Load, pl.padFloat32)
					if pl.padFloat32 && pl.BufH[0] > 0 {
						assert.Equal(t, p.First().SrcW*AlignHi(p.First().SrcC, desc.miK), pl.buf[0])
					}

					bytes := pl.buf[0]*2 + pl.buf[1]*4 + pl.buf[2]*2 + pl.buf[4]*4
					if pl.YStep[2] > 1 {
						assert.LessOrEqual(t, bytes, c.L2)
					}
					checkRowTiles(t, pl, p, dw)
				})
			}
		}
	}
}

// checkRowTiles walks the row tiles of a plan and checks that every stage
// range fits its ring and that the depthwise stage only reads rows the
// input stage has produced and the ring still holds.
func checkRowTiles(t *testing.T, pl plan, p MergConvParam, dw ConvParam) {
	t.Helper()
	tiles := newRowTiles(&pl.AlgParam, [3]int{p.First().SrcH * boolInt(pl.st.in >= 0), dw.SrcH, dw.DstH})
	var count int
	for !tiles.done() {
		beg, end := tiles.next()
		count++
		require.Less(t, beg[2], end[2], "no progress at tile %d", count)
		if pl.BufH[0] > 0 {
			assert.LessOrEqual(t, end[0]-beg[0], pl.BufH[0])
			assert.Equal(t, beg[1], beg[0])
			assert.Equal(t, end[1], end[0])
		}
		if pl.BufH[2] > 0 {
			assert.LessOrEqual(t, end[2]-beg[2], pl.BufH[2])
		}
		if pl.BufH[1] > 0 {
			first := max(0, beg[2]*dw.StrideY-dw.PadY)
			last := min(dw.SrcH, (end[2]-1)*dw.StrideY-dw.PadY+dw.KernelExtentY())
			assert.LessOrEqual(t, last, end[1], "tile %d needs row %d, produced %d", count, last, end[1])
			assert.LessOrEqual(t, end[1]-first, pl.BufH[1], "tile %d window [%d, %d) exceeds ring", count, first, end[1])
		}
	}
	assert.Equal(t, DivHi(dw.DstH, pl.YStep[2]), count)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestPlanFallsBackToSingleRows(t *testing.T) {
	p := cdc(16, 16, 16, 64, 16, 3, 1)
	pl := planTiled(p, TopologyCdc, BackendLanes8.desc(), hwy.CacheSizes{L1: 1, L2: 1, L3: 1})
	assert.Equal(t, 1, pl.YStep[2])
	assert.Equal(t, 16, pl.MaC)
}

func TestPlanWholeImageWhenItFits(t *testing.T) {
	p := cdc(8, 8, 16, 32, 16, 3, 1)
	pl := planTiled(p, TopologyCdc, BackendLanes8.desc(), bigCaches)
	assert.Equal(t, 8, pl.YStep[2])
	assert.Equal(t, 32, pl.MaC)
	assert.Equal(t, [3]int{16, 9, 16}, pl.DW)
	assert.Equal(t, [2]int{2, 4}, pl.Elem)
	assert.False(t, pl.Accumulate)
}

// TestPlanChannelShareRoundsUp uses 33 channels whose weights need two L3
// halves. A floored share of 16 would leave a third tile of one channel.
func TestPlanChannelShareRoundsUp(t *testing.T) {
	p := cdc(8, 8, 8, 33, 16, 3, 1)
	pl := planTiled(p, TopologyCdc, BackendLanes8.desc(), hwy.CacheSizes{L1: 1 << 10, L2: 1 << 20, L3: 4 << 10})
	assert.Equal(t, 32, pl.MaC)
	assert.Equal(t, 2, DivHi(pl.channels, pl.MaC))
}

func TestPlanPerChannelParams(t *testing.T) {
	p := cdc(8, 8, 16, 32, 16, 3, 1)
	p.Conv[0].Activation = activation.Prelu
	pl := planTiled(p, TopologyCdc, BackendLanes8.desc(), bigCaches)
	assert.Equal(t, [3]int{1, 0, 0}, pl.DP)
}

func TestPlanExternalBytes(t *testing.T) {
	pl := plan{buf: [5]int{10, 0, 20, 5, 3}}
	assert.Equal(t, 10*2+20*2+5*4+3*4+4*hwy.ArenaSlack, pl.externalBytes())

	// Carving never runs past the arena, wherever it starts.
	raw := make([]byte, pl.externalBytes()+7)
	for off := range 7 {
		b := pl.carve(raw[off : off+pl.externalBytes()])
		assert.Len(t, b.buf0, 10)
		assert.Nil(t, b.buf1)
		assert.Len(t, b.buf2, 20)
		assert.Len(t, b.buf3, 5)
		assert.Len(t, b.buf4, 3)
	}
}

func TestPlanPadFloat32(t *testing.T) {
	p := cdc(8, 8, 16, 32, 16, 3, 1)
	avx2 := hwy.Capabilities{Level: hwy.DispatchAVX2, Width: 32}
	padded := planTiled(p, TopologyCdc, BackendLanes8.descFor(avx2), bigCaches)
	avx2.NativeBF16 = true
	native := planTiled(p, TopologyCdc, BackendLanes8.descFor(avx2), bigCaches)

	require.True(t, padded.padFloat32)
	require.False(t, native.padFloat32)
	assert.Equal(t, native.BufH, padded.BufH)
	assert.Equal(t, native.buf[0], padded.buf[4], "fp32 rows take the place of bf16 rows")
	assert.Equal(t, 8*16, padded.buf[0], "one bf16 row to round into")
	assert.Zero(t, native.buf[4])
	assert.Greater(t, padded.externalBytes(), native.externalBytes())

	// A bf16 source has nothing to keep in fp32.
	bf := withTypes(p, BFloat16, Float32)
	avx2.NativeBF16 = false
	assert.False(t, planTiled(bf, TopologyCdc, BackendLanes8.descFor(avx2), bigCaches).padFloat32)
}

func TestPlanBase(t *testing.T) {
	p := cdc(4, 5, 3, 8, 6, 3, 1)
	pl := planBase(p)
	assert.Equal(t, 4*5*3+4*5*8+4*5*8+4*5*6, pl.buf[1])
	assert.Equal(t, 4*(4*5*3+4*5*8+4*5*8+4*5*6)+hwy.ArenaSlack, pl.externalBytes())
}

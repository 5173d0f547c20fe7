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

package hwy

// Tile is a TileRows × TileCols float32 accumulator fed by bf16 pair dot
// products, the shape of an AMX-BF16 TDPBF16PS step. In this portable form
// it wraps a flat array and steps each row with DotPairsBF16, pair by pair,
// so it agrees exactly with the register kernels.
//
// The primary operation is DotBF16 which accumulates
//
//	tile[i][j] += Σ_p a[i][2p]*b[p][j][0] + a[i][2p+1]*b[p][j][1]
//
// where a is row-major M × K bf16 and b is the pair-interleaved K/2 × N × 2
// layout produced by the convolution weight packers.
type Tile struct {
	data [TileRows * TileCols]float32
}

// Zero clears all accumulators.
func (t *Tile) Zero() {
	clear(t.data[:])
}

// Row returns accumulator row i as a TileCols-long slice.
func (t *Tile) Row(i int) []float32 {
	return t.data[i*TileCols : (i+1)*TileCols : (i+1)*TileCols]
}

// Load fills rows [0, m) and columns [0, n) from src with row stride
// stride, zeroing everything else.
func (t *Tile) Load(src []float32, stride, m, n int) {
	t.Zero()
	for i := range m {
		copy(t.data[i*TileCols:i*TileCols+n], src[i*stride:i*stride+n])
	}
}

// Broadcast sets every row to v[:TileCols].
func (t *Tile) Broadcast(v []float32) {
	for i := range TileRows {
		copy(t.data[i*TileCols:(i+1)*TileCols], v[:TileCols])
	}
}

// Store writes rows [0, m) and columns [0, n) to dst with row stride stride.
func (t *Tile) Store(dst []float32, stride, m, n int) {
	for i := range m {
		copy(dst[i*stride:i*stride+n], t.data[i*TileCols:i*TileCols+n])
	}
}

// DotBF16 accumulates a (m rows, k bf16 columns, row stride aStride) times
// b (k/2 pairs of TileCols pair-interleaved columns) into rows [0, m).
// k must be even and at most TileDepth.
func (t *Tile) DotBF16(a []BFloat16, aStride, m int, b []BFloat16, k int) {
	pairs := k / 2
	for i := range m {
		arow := a[i*aStride : i*aStride+k]
		acc := LoadN(t.data[i*TileCols:], TileCols)
		for p := range pairs {
			b0, b1 := PromoteEvenOddBF16(b[p*2*TileCols:], TileCols)
			a0 := SetN(BFloat16ToFloat32(arow[2*p]), TileCols)
			a1 := SetN(BFloat16ToFloat32(arow[2*p+1]), TileCols)
			acc = DotPairsBF16(acc, a0, b0, a1, b1)
		}
		Store(acc, t.data[i*TileCols:])
	}
}

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

// packedPairs is the bf16 weight view of a dense 1×1 convolution, with
// logical shape (tiles, pairs, width, 2): output channels are split into
// tiles of width lanes and the input channels are interleaved in pairs, so
// a kernel reads both weights of one pair for every lane at once. Input
// channels are zero padded to an even (MiK aligned) count and output
// channels to whole tiles.
type packedPairs struct {
	data  []hwy.BFloat16
	tiles int
	pairs int
	width int
}

// packPairs packs w, laid out [srcC][dstC], with the reduction dimension
// padded to k.
func packPairs(w []float32, srcC, dstC, k, width int) packedPairs {
	must.Truef(k >= srcC && k%2 == 0, "synet: reduction %d cannot hold %d channels in pairs", k, srcC)
	p := packedPairs{
		tiles: DivHi(dstC, width),
		pairs: k / 2,
		width: width,
	}
	p.data = make([]hwy.BFloat16, p.tiles*p.pairs*p.width*2)
	for t := range p.tiles {
		for pr := range p.pairs {
			for f := range p.width {
				co := t*width + f
				if co >= dstC {
					continue
				}
				for i := range 2 {
					if ci := 2*pr + i; ci < srcC {
						p.data[p.index(t, pr, f, i)] = hwy.Float32ToBFloat16(w[ci*dstC+co])
					}
				}
			}
		}
	}
	return p
}

func (p packedPairs) index(t, pair, f, i int) int {
	if debugChecks {
		must.Truef(t >= 0 && t < p.tiles && pair >= 0 && pair < p.pairs && f >= 0 && f < p.width && i >= 0 && i < 2,
			"synet: packed index (%d, %d, %d, %d) outside (%d, %d, %d, 2)", t, pair, f, i, p.tiles, p.pairs, p.width)
	}
	return ((t*p.pairs+pair)*p.width+f)*2 + i
}

// at returns the weight of input channel 2*pair+i, output channel
// t*width+f.
func (p packedPairs) at(t, pair, f, i int) hwy.BFloat16 {
	return p.data[p.index(t, pair, f, i)]
}

// tileStride is the number of elements between consecutive tiles.
func (p packedPairs) tileStride() int {
	return p.pairs * p.width * 2
}

// tile returns the weights of tile t starting at pair.
func (p packedPairs) tile(t, pair int) []hwy.BFloat16 {
	return p.data[p.index(t, pair, 0, 0):]
}

func (p packedPairs) bytes() int { return len(p.data) * 2 }

// packedDepthwise is the fp32 weight view of a depthwise convolution, with
// logical shape (tiles, taps, width), taps being KernelY*KernelX in row
// major order. Channels past the last are zero.
type packedDepthwise struct {
	data  []float32
	tiles int
	taps  int
	width int
}

// packDepthwise packs w, laid out [KernelY][KernelX][1][channels].
func packDepthwise(w []float32, taps, channels, width int) packedDepthwise {
	p := packedDepthwise{
		tiles: DivHi(channels, width),
		taps:  taps,
		width: width,
	}
	p.data = make([]float32, p.tiles*p.taps*p.width)
	for t := range p.tiles {
		for k := range taps {
			for f := range width {
				if c := t*width + f; c < channels {
					p.data[p.index(t, k, f)] = w[k*channels+c]
				}
			}
		}
	}
	return p
}

func (p packedDepthwise) index(t, tap, f int) int {
	if debugChecks {
		must.Truef(t >= 0 && t < p.tiles && tap >= 0 && tap < p.taps && f >= 0 && f < p.width,
			"synet: depthwise index (%d, %d, %d) outside (%d, %d, %d)", t, tap, f, p.tiles, p.taps, p.width)
	}
	return (t*p.taps+tap)*p.width + f
}

func (p packedDepthwise) at(t, tap, f int) float32 {
	return p.data[p.index(t, tap, f)]
}

// tile returns the taps of tile t, taps*width values.
func (p packedDepthwise) tile(t int) []float32 {
	off := p.index(t, 0, 0)
	return p.data[off : off+p.taps*p.width]
}

func (p packedDepthwise) bytes() int { return len(p.data) * 4 }

// padded copies v into a zeroed slice of n elements; nil v stays zero.
func padded(v []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, v)
	return out
}

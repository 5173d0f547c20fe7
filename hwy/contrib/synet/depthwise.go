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
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
)

// depthwiseConv is the depthwise stage. Each output channel convolves its
// own input channel; positions outside the source contribute zero.
type depthwiseConv struct {
	p       ConvParam
	lanes   int
	weights packedDepthwise
	bias    []float32
	act     activation.Func

	// noseW and bodyW bound the output columns whose receptive field lies
	// inside the source horizontally.
	noseW, bodyW int

	// body computes one interior pixel without column bounds tests, nil
	// when the kernel has no specialized variant.
	body func(d *depthwiseConv, src rowSource[float32], stride, off, sx0, y int, wt []float32, acc hwy.Vec[float32]) hwy.Vec[float32]
}

func newDepthwiseConv(p ConvParam, lanes int, weights packedDepthwise, bias []float32, act activation.Func) *depthwiseConv {
	d := &depthwiseConv{
		p:       p,
		lanes:   lanes,
		weights: weights,
		bias:    bias,
		act:     act,
		noseW:   p.NoseW(),
		bodyW:   p.BodyW(),
	}
	if p.dilationX() == 1 {
		switch p.KernelX {
		case 3:
			d.body = bodyRow3
		case 5:
			d.body = bodyRow5
		}
	}
	return d
}

// depthwiseSink is where the depthwise stage stores its output: either a
// bf16 ring feeding the output stage or the destination image.
type depthwiseSink struct {
	f32 rowSource[float32]
	b16 rowSource[hwy.BFloat16]

	// stride is the pixel stride and off the channel of the tile's first
	// lane within a pixel.
	stride, off int

	// pad zeroes channels [n, pad) of every pixel, for consumers that
	// read whole channel pairs.
	pad int

	// resid, when typed, is added after the activation, indexed like a
	// dense destination with rows of residRow elements.
	resid    Tensor
	residRow int
}

func (s *depthwiseSink) store(y, x, f0 int, v []float32) {
	i := x*s.stride + s.off + f0
	if s.resid.typ != Unknown {
		r := y*s.residRow + i
		for f := range v {
			v[f] += s.resid.at(r + f)
		}
	}
	if s.b16 != nil {
		hwy.Float32ToBFloat16Slice(s.b16.Row(y)[i:i+len(v)], v)
		return
	}
	copy(s.f32.Row(y)[i:i+len(v)], v)
}

func (s *depthwiseSink) zeroTail(y, x, n int) {
	if s.pad <= n || s.b16 == nil {
		return
	}
	i := x*s.stride + s.off
	hwy.ZeroBFloat16(s.b16.Row(y)[i+n : i+s.pad])
}

// run computes output rows [yBeg, yEnd) of channels [c, c+n). Source pixels
// are srcStride elements apart with channel c at srcOff.
func (d *depthwiseConv) run(src rowSource[float32], srcStride, srcOff, yBeg, yEnd, c, n int, dst *depthwiseSink) {
	p := &d.p
	var buf [hwy.MaxVecLanes]float32
	for y := yBeg; y < yEnd; y++ {
		for x := range p.DstW {
			sx0 := x*p.StrideX - p.PadX
			interior := d.body != nil && x >= d.noseW && x < d.bodyW
			for f0 := 0; f0 < n; f0 += d.lanes {
				nf := min(d.lanes, n-f0)
				acc := hwy.LoadN(d.bias[c+f0:], nf)
				wt := d.weights.tile((c + f0) / d.lanes)
				if interior {
					acc = d.body(d, src, srcStride, srcOff+f0, sx0, y, wt, acc)
				} else {
					acc = d.pixel(src, srcStride, srcOff+f0, sx0, y, wt, acc)
				}
				out := buf[:nf]
				hwy.Store(acc, out)
				d.act(out, c+f0)
				dst.store(y, x, f0, out)
			}
			dst.zeroTail(y, x, n)
		}
	}
}

// srcRowY returns the source row of tap ky for output row y, or -1 when it
// falls into the padding.
func (d *depthwiseConv) srcRowY(y, ky int) int {
	sy := y*d.p.StrideY - d.p.PadY + ky*d.p.dilationY()
	if sy < 0 || sy >= d.p.SrcH {
		return -1
	}
	return sy
}

// pixel is the generic path, testing every tap against the source bounds.
// Lane f of acc reads channel off+f of each source pixel and tap weight
// wt[tap*lanes+f].
func (d *depthwiseConv) pixel(src rowSource[float32], stride, off, sx0, y int, wt []float32, acc hwy.Vec[float32]) hwy.Vec[float32] {
	p := &d.p
	n := acc.NumLanes()
	dx := p.dilationX()
	for ky := range p.KernelY {
		sy := d.srcRowY(y, ky)
		if sy < 0 {
			continue
		}
		row := src.Row(sy)
		for kx := range p.KernelX {
			sx := sx0 + kx*dx
			if sx < 0 || sx >= p.SrcW {
				continue
			}
			s := hwy.LoadN(row[sx*stride+off:], n)
			w := hwy.LoadN(wt[(ky*p.KernelX+kx)*d.lanes:], n)
			acc = hwy.MulAdd(s, w, acc)
		}
	}
	return acc
}

// bodyRow3 is pixel for a 3-wide kernel whose columns are all inside the
// source. Taps accumulate in the same order as the generic path.
func bodyRow3(d *depthwiseConv, src rowSource[float32], stride, off, sx0, y int, wt []float32, acc hwy.Vec[float32]) hwy.Vec[float32] {
	lanes, n := d.lanes, acc.NumLanes()
	for ky := range d.p.KernelY {
		sy := d.srcRowY(y, ky)
		if sy < 0 {
			continue
		}
		row := src.Row(sy)[sx0*stride+off:]
		w := wt[ky*3*lanes:]
		acc = hwy.MulAdd(hwy.LoadN(row, n), hwy.LoadN(w, n), acc)
		acc = hwy.MulAdd(hwy.LoadN(row[stride:], n), hwy.LoadN(w[lanes:], n), acc)
		acc = hwy.MulAdd(hwy.LoadN(row[2*stride:], n), hwy.LoadN(w[2*lanes:], n), acc)
	}
	return acc
}

// bodyRow5 is bodyRow3 for a 5-wide kernel.
func bodyRow5(d *depthwiseConv, src rowSource[float32], stride, off, sx0, y int, wt []float32, acc hwy.Vec[float32]) hwy.Vec[float32] {
	lanes, n := d.lanes, acc.NumLanes()
	for ky := range d.p.KernelY {
		sy := d.srcRowY(y, ky)
		if sy < 0 {
			continue
		}
		row := src.Row(sy)[sx0*stride+off:]
		w := wt[ky*5*lanes:]
		for kx := range 5 {
			acc = hwy.MulAdd(hwy.LoadN(row[kx*stride:], n), hwy.LoadN(w[kx*lanes:], n), acc)
		}
	}
	return acc
}

func (d *depthwiseConv) bytes() int {
	return d.weights.bytes() + len(d.bias)*4
}

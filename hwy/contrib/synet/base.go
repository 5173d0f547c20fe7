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

// baseStage is one convolution of the reference pipeline.
type baseStage struct {
	p       ConvParam
	weights []float32
	bias    []float32
	act     activation.Func

	// dense stages read bf16-rounded inputs and weights, like the tiled
	// 1×1 kernels; depthwise and other grouped stages stay fp32.
	dense bool
}

func newBaseStage(p ConvParam, weights, bias []float32, act activation.Params, dense bool) baseStage {
	s := baseStage{p: p, act: act.Resolve(), dense: dense}
	s.weights = make([]float32, p.WeightSize())
	copy(s.weights, weights)
	if s.dense {
		for i, w := range s.weights {
			s.weights[i] = hwy.RoundBFloat16(w)
		}
	}
	s.bias = padded(bias, p.DstC)
	return s
}

// baseDense reports which stages of p the reference rounds like a 1×1
// kernel: all but the depthwise stage of a tiled topology, and every
// ungrouped stage otherwise.
func baseDense(p MergConvParam) []bool {
	dw := SelectTopology(p).stages().dw
	dense := make([]bool, len(p.Conv))
	for i, c := range p.Conv {
		if dw >= 0 {
			dense[i] = i != dw
		} else {
			dense[i] = c.Group == 1 || !c.IsDepthwise()
		}
	}
	return dense
}

// forward convolves one image. src is the stage input, already rounded
// when the stage is dense. Products are rounded before they are summed.
// Dense stages add input channels in pairs, (a0*w0 + a1*w1), and every
// activation goes through the row kernels, so the reference and the tiled
// kernels agree exactly on the chains both can run.
func (s *baseStage) forward(src, dst []float32) {
	p := &s.p
	inC, outC := p.SrcC/p.Group, p.DstC/p.Group
	dy, dx := p.dilationY(), p.dilationX()
	for y := range p.DstH {
		for x := range p.DstW {
			o := dst[(y*p.DstW+x)*p.DstC:]
			for g := range p.Group {
				for oc := range outC {
					co := g*outC + oc
					sum := s.bias[co]
					for ky := range p.KernelY {
						sy := y*p.StrideY - p.PadY + ky*dy
						if sy < 0 || sy >= p.SrcH {
							continue
						}
						for kx := range p.KernelX {
							sx := x*p.StrideX - p.PadX + kx*dx
							if sx < 0 || sx >= p.SrcW {
								continue
							}
							in := src[(sy*p.SrcW+sx)*p.SrcC+g*inC:]
							w := s.weights[(ky*p.KernelX+kx)*inC*p.DstC+co:]
							sum = s.dot(sum, in[:inC], w, p.DstC)
						}
					}
					o[co] = sum
				}
			}
			s.act(o[:p.DstC], 0)
		}
	}
}

// dot adds in·w to sum, w strided by stride.
func (s *baseStage) dot(sum float32, in, w []float32, stride int) float32 {
	if !s.dense {
		for ic, v := range in {
			sum += float32(v * w[ic*stride])
		}
		return sum
	}
	ic := 0
	for ; ic+1 < len(in); ic += 2 {
		sum += float32(in[ic]*w[ic*stride]) + float32(in[ic+1]*w[(ic+1)*stride])
	}
	if ic < len(in) {
		sum += float32(in[ic]*w[ic*stride]) + 0
	}
	return sum
}

// forwardBase runs the reference pipeline on one image. Every stage output
// is materialized in fp32; the input of a dense stage is rounded to bf16
// first, which reproduces the rounding points of the tiled pipelines.
func (m *MergedConvolution) forwardBase(src, dst Tensor, buf []float32) {
	cur := buf[:src.Len()]
	buf = buf[src.Len():]
	if src.typ == BFloat16 {
		hwy.BFloat16ToFloat32Slice(cur, src.b16)
	} else {
		copy(cur, src.f32)
	}
	for i := range m.base {
		s := &m.base[i]
		if s.dense {
			for j, v := range cur {
				cur[j] = hwy.RoundBFloat16(v)
			}
		}
		out := buf[:s.p.DstSize()]
		buf = buf[s.p.DstSize():]
		s.forward(cur, out)
		cur = out
	}
	if m.param.Add {
		for i := range cur {
			cur[i] += src.at(i)
		}
	}
	if dst.typ == BFloat16 {
		hwy.Float32ToBFloat16Slice(dst.b16, cur)
		return
	}
	copy(dst.f32, cur)
}

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

	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/grailbio/base/errors"
)

// TensorType is the element type of a tensor.
type TensorType int

const (
	Unknown TensorType = iota
	Float32
	BFloat16
)

// Size returns the element width in bytes, 0 for Unknown.
func (t TensorType) Size() int {
	switch t {
	case Float32:
		return 4
	case BFloat16:
		return 2
	default:
		return 0
	}
}

func (t TensorType) String() string {
	switch t {
	case Float32:
		return "f32"
	case BFloat16:
		return "bf16"
	default:
		return "unknown"
	}
}

// ConvParam describes one convolution of a merged chain. Tensors are NHWC
// and weights are laid out [KernelY, KernelX, SrcC/Group, DstC].
//
// PadY and PadX pad the top and left edges, PadH and PadW the bottom and
// right ones. Zero dilations are treated as 1.
type ConvParam struct {
	SrcH, SrcW, SrcC int
	DstH, DstW, DstC int

	KernelY, KernelX     int
	DilationY, DilationX int
	StrideY, StrideX     int
	PadY, PadX           int
	PadH, PadW           int
	Group                int

	Activation activation.Kind
	SrcT, DstT TensorType
}

// Pointwise returns a dense 1×1 convolution over an h×w image with fp32
// source and destination.
func Pointwise(h, w, srcC, dstC int, act activation.Kind) ConvParam {
	return ConvParam{
		SrcH: h, SrcW: w, SrcC: srcC,
		DstH: h, DstW: w, DstC: dstC,
		KernelY: 1, KernelX: 1,
		DilationY: 1, DilationX: 1,
		StrideY: 1, StrideX: 1,
		Group:      1,
		Activation: act,
		SrcT:       Float32, DstT: Float32,
	}
}

// Depthwise returns a square depthwise convolution over c channels with
// symmetric padding and fp32 source and destination.
func Depthwise(h, w, c, kernel, stride, pad int, act activation.Kind) ConvParam {
	p := ConvParam{
		SrcH: h, SrcW: w, SrcC: c,
		DstC:    c,
		KernelY: kernel, KernelX: kernel,
		DilationY: 1, DilationX: 1,
		StrideY: stride, StrideX: stride,
		PadY: pad, PadX: pad, PadH: pad, PadW: pad,
		Group:      c,
		Activation: act,
		SrcT:       Float32, DstT: Float32,
	}
	p.DstH, p.DstW = p.OutputSize()
	return p
}

func (p ConvParam) dilationY() int { return max(p.DilationY, 1) }
func (p ConvParam) dilationX() int { return max(p.DilationX, 1) }

// KernelExtentY returns the receptive field height (KernelY-1)*DilationY+1.
func (p ConvParam) KernelExtentY() int { return (p.KernelY-1)*p.dilationY() + 1 }

// KernelExtentX returns the receptive field width.
func (p ConvParam) KernelExtentX() int { return (p.KernelX-1)*p.dilationX() + 1 }

// OutputSize returns the destination extent implied by the source, kernel,
// stride and padding.
func (p ConvParam) OutputSize() (h, w int) {
	if p.StrideY <= 0 || p.StrideX <= 0 {
		return 0, 0
	}
	h = (p.SrcH+p.PadY+p.PadH-p.KernelExtentY())/p.StrideY + 1
	w = (p.SrcW+p.PadX+p.PadW-p.KernelExtentX())/p.StrideX + 1
	return h, w
}

// Is1x1 reports whether p is a 1×1 convolution with unit stride and no
// padding.
func (p ConvParam) Is1x1() bool {
	return p.KernelY == 1 && p.KernelX == 1 &&
		p.dilationY() == 1 && p.dilationX() == 1 &&
		p.StrideY == 1 && p.StrideX == 1 &&
		p.PadY == 0 && p.PadX == 0 && p.PadH == 0 && p.PadW == 0
}

// IsDepthwise reports whether every channel is convolved on its own.
func (p ConvParam) IsDepthwise() bool {
	return p.Group == p.SrcC && p.Group == p.DstC
}

// WeightSize returns the number of unpacked weights.
func (p ConvParam) WeightSize() int {
	if p.Group <= 0 {
		return 0
	}
	return p.KernelY * p.KernelX * p.SrcC / p.Group * p.DstC
}

// SrcSize and DstSize return the per-image element counts.
func (p ConvParam) SrcSize() int { return p.SrcH * p.SrcW * p.SrcC }
func (p ConvParam) DstSize() int { return p.DstH * p.DstW * p.DstC }

// Valid reports the first inconsistency in p.
func (p ConvParam) Valid() error {
	switch {
	case p.SrcH <= 0 || p.SrcW <= 0 || p.SrcC <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: non-positive source shape %dx%dx%d", p.SrcH, p.SrcW, p.SrcC))
	case p.DstH <= 0 || p.DstW <= 0 || p.DstC <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: non-positive destination shape %dx%dx%d", p.DstH, p.DstW, p.DstC))
	case p.KernelY <= 0 || p.KernelX <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: non-positive kernel %dx%d", p.KernelY, p.KernelX))
	case p.StrideY <= 0 || p.StrideX <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: non-positive stride %dx%d", p.StrideY, p.StrideX))
	case p.DilationY < 0 || p.DilationX < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: negative dilation %dx%d", p.DilationY, p.DilationX))
	case p.PadY < 0 || p.PadX < 0 || p.PadH < 0 || p.PadW < 0:
		return errors.E(errors.Invalid, "synet: negative padding")
	case p.Group <= 0 || p.SrcC%p.Group != 0 || p.DstC%p.Group != 0:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: group %d does not divide %d and %d channels", p.Group, p.SrcC, p.DstC))
	case p.Group > 1 && p.Group == p.SrcC && p.Group != p.DstC:
		return errors.E(errors.Invalid, fmt.Sprintf("synet: depthwise convolution needs group == srcC == dstC, got %d/%d/%d", p.Group, p.SrcC, p.DstC))
	case !p.Activation.Valid():
		return errors.E(errors.Invalid, fmt.Sprintf("synet: invalid activation %d", int(p.Activation)))
	}
	if h, w := p.OutputSize(); h != p.DstH || w != p.DstW {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: destination %dx%d does not match kernel geometry (want %dx%d)", p.DstH, p.DstW, h, w))
	}
	return nil
}

// NoseH returns the first output row whose receptive field starts inside
// the source.
func (p ConvParam) NoseH() int {
	return min(DivHi(p.PadY, p.StrideY), p.DstH)
}

// BodyH returns the first output row past the last one whose receptive
// field ends inside the source.
func (p ConvParam) BodyH() int {
	n := p.PadY + p.SrcH - p.KernelExtentY()
	if n < 0 {
		return p.NoseH()
	}
	return RestrictRange(n/p.StrideY+1, p.NoseH(), p.DstH)
}

// NoseW returns the first output column whose receptive field starts
// inside the source.
func (p ConvParam) NoseW() int {
	return min(DivHi(p.PadX, p.StrideX), p.DstW)
}

// BodyW returns the first output column past the last one whose receptive
// field ends inside the source.
func (p ConvParam) BodyW() int {
	n := p.PadX + p.SrcW - p.KernelExtentX()
	if n < 0 {
		return p.NoseW()
	}
	return RestrictRange(n/p.StrideX+1, p.NoseW(), p.DstW)
}

func (p ConvParam) String() string {
	return fmt.Sprintf("%dx%dx%d-%dx%dx%d-%dx%d-s%dx%d-d%dx%d-p%d,%d,%d,%d-g%d-%s-%s-%s",
		p.SrcH, p.SrcW, p.SrcC, p.DstH, p.DstW, p.DstC,
		p.KernelY, p.KernelX, p.StrideY, p.StrideX, p.dilationY(), p.dilationX(),
		p.PadY, p.PadX, p.PadH, p.PadW, p.Group, p.Activation, p.SrcT, p.DstT)
}

// MergConvParam describes a merged chain of two or three convolutions.
// With Add the chain's source is added to its destination after the last
// activation.
type MergConvParam struct {
	Batch int
	Conv  []ConvParam
	Add   bool
}

// First and Last return the chain's outer convolutions.
func (p MergConvParam) First() ConvParam { return p.Conv[0] }
func (p MergConvParam) Last() ConvParam  { return p.Conv[len(p.Conv)-1] }

// SrcSize and DstSize return the per-image element counts of the chain's
// source and destination.
func (p MergConvParam) SrcSize() int { return p.First().SrcSize() }
func (p MergConvParam) DstSize() int { return p.Last().DstSize() }

// Valid reports the first inconsistency in the chain.
func (p MergConvParam) Valid() error {
	if p.Batch <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: non-positive batch %d", p.Batch))
	}
	if n := len(p.Conv); n < 2 || n > 3 {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: merged convolution needs 2 or 3 stages, got %d", n))
	}
	for i, c := range p.Conv {
		if err := c.Valid(); err != nil {
			return errors.E(err, fmt.Sprintf("stage %d", i))
		}
	}
	first, last := p.First(), p.Last()
	if first.SrcT != Float32 && first.SrcT != BFloat16 {
		return errors.E(errors.NotSupported, fmt.Sprintf("synet: unsupported source type %s", first.SrcT))
	}
	if last.DstT != Float32 && last.DstT != BFloat16 {
		return errors.E(errors.NotSupported, fmt.Sprintf("synet: unsupported destination type %s", last.DstT))
	}
	for i := 0; i+1 < len(p.Conv); i++ {
		a, b := p.Conv[i], p.Conv[i+1]
		if a.DstT != Float32 || b.SrcT != Float32 {
			return errors.E(errors.NotSupported, fmt.Sprintf("synet: stage %d to %d link must be declared f32, got %s/%s", i, i+1, a.DstT, b.SrcT))
		}
		if a.DstC != b.SrcC || a.DstH != b.SrcH || a.DstW != b.SrcW {
			return errors.E(errors.Invalid, fmt.Sprintf("synet: stage %d output %dx%dx%d does not chain into stage %d input %dx%dx%d",
				i, a.DstH, a.DstW, a.DstC, i+1, b.SrcH, b.SrcW, b.SrcC))
		}
	}
	if p.Add && (first.SrcH != last.DstH || first.SrcW != last.DstW || first.SrcC != last.DstC) {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: residual add needs equal source and destination shapes, got %dx%dx%d and %dx%dx%d",
			first.SrcH, first.SrcW, first.SrcC, last.DstH, last.DstW, last.DstC))
	}
	return nil
}

func (p MergConvParam) String() string {
	s := fmt.Sprintf("b%d", p.Batch)
	for _, c := range p.Conv {
		s += "|" + c.String()
	}
	if p.Add {
		s += "|add"
	}
	return s
}

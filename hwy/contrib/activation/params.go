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

package activation

import (
	"fmt"
	stdmath "math"

	"github.com/grailbio/base/errors"
)

// Params are the prepared parameters of one layer's activation.
//
// Uniform kinds keep two scalars in A and B (Identity and Relu carry their
// implicit clamp bounds so they can share the RestrictRange path).
// LeakyRelu and Prelu keep one slope per channel in Slopes, padded with
// zeros to the requested alignment.
type Params struct {
	Kind   Kind
	A, B   float32
	Slopes []float32
}

// NewParams validates raw against kind and prepares it for channels output
// channels. Slopes are padded to a multiple of align (align <= 1 disables
// padding).
func NewParams(kind Kind, raw []float32, channels, align int) (Params, error) {
	if !kind.Valid() {
		return Params{}, errors.E(errors.Invalid, fmt.Sprintf("activation: invalid kind %d", int(kind)))
	}
	want := kind.NumParams()
	if want < 0 {
		want = channels
	}
	if len(raw) < want {
		return Params{}, errors.E(errors.Invalid, fmt.Sprintf("activation: %s needs %d parameters, got %d", kind, want, len(raw)))
	}
	p := Params{Kind: kind}
	switch kind {
	case Identity:
		p.A, p.B = -stdmath.MaxFloat32, stdmath.MaxFloat32
	case Relu:
		p.A, p.B = 0, stdmath.MaxFloat32
	case LeakyRelu, Prelu:
		n := channels
		if align > 1 {
			n = (channels + align - 1) / align * align
		}
		p.Slopes = make([]float32, n)
		if kind == LeakyRelu {
			for i := range channels {
				p.Slopes[i] = raw[0]
			}
			p.A = raw[0]
		} else {
			copy(p.Slopes, raw[:channels])
		}
	case RestrictRange:
		if raw[0] > raw[1] {
			return Params{}, errors.E(errors.Invalid, fmt.Sprintf("activation: restrictrange lower bound %v above upper bound %v", raw[0], raw[1]))
		}
		p.A, p.B = raw[0], raw[1]
	case Elu, Mish, Swish:
		p.A = raw[0]
	case Hswish, HardSigmoid:
		p.A, p.B = raw[0], raw[1]
	}
	return p, nil
}

// Size returns the number of float32 values the prepared parameters occupy.
func (p Params) Size() int {
	if p.Kind.PerChannel() {
		return len(p.Slopes)
	}
	return 2
}

// Apply computes the activation of one value of channel c, through the
// same row kernel Resolve selects, so it matches the rows bit for bit.
func (p Params) Apply(x float32, c int) float32 {
	row := [1]float32{x}
	p.Resolve()(row[:], c)
	return row[0]
}

// Func applies an activation in place to row, whose first element belongs
// to channel c.
type Func func(row []float32, c int)

// Resolve selects the row kernel for p.Kind once. The returned Func shares
// p.Slopes and must not outlive modifications to it.
func (p Params) Resolve() Func {
	switch p.Kind {
	case Identity:
		return func([]float32, int) {}
	case Relu:
		return func(row []float32, _ int) { BaseRelu(row, row) }
	case RestrictRange:
		lo, hi := p.A, p.B
		return func(row []float32, _ int) { BaseRestrictRange(row, row, lo, hi) }
	case LeakyRelu, Prelu:
		slopes := p.Slopes
		return func(row []float32, c int) { BaseLeakyRelu(row, row, slopes[c:]) }
	case Elu:
		alpha := p.A
		return func(row []float32, _ int) { BaseElu(row, row, alpha) }
	case Hswish:
		shift, scale := p.A, p.B
		return func(row []float32, _ int) { BaseHswish(row, row, shift, scale) }
	case Mish:
		threshold := p.A
		return func(row []float32, _ int) { BaseMish(row, row, threshold) }
	case HardSigmoid:
		scale, shift := p.A, p.B
		return func(row []float32, _ int) { BaseHardSigmoid(row, row, scale, shift) }
	case Swish:
		slope := p.A
		return func(row []float32, _ int) { BaseSwish(row, row, slope) }
	case Gelu:
		return func(row []float32, _ int) { BaseGelu(row, row) }
	default:
		return func([]float32, int) {}
	}
}

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

// Package activation provides the element-wise activation functions that
// convolution layers fuse into their epilogue.
//
// A layer's activation is described by a Kind and its raw parameters.
// NewParams validates and prepares them once (broadcasting per-channel
// slopes, filling the implicit bounds of clamping kinds), and Resolve turns
// the prepared parameters into a Func whose kind dispatch has already been
// done, so kernels call it per output row without branching on the kind.
//
//	p, err := activation.NewParams(activation.LeakyRelu, []float32{0.1}, channels, 16)
//	act := p.Resolve()
//	act(row[c:c+n], c) // applies to channels [c, c+n)
package activation

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/samber/lo"
)

// Kind identifies an activation function.
type Kind int

const (
	// Identity passes values through.
	Identity Kind = iota
	// Relu computes max(0, x).
	Relu
	// LeakyRelu computes max(0, x) + slope*min(0, x) with one slope.
	LeakyRelu
	// RestrictRange clamps to [lo, hi].
	RestrictRange
	// Prelu is LeakyRelu with a slope per channel.
	Prelu
	// Elu computes x for x >= 0, alpha*(exp(x)-1) otherwise.
	Elu
	// Hswish computes max(min(x, shift)+shift, 0)*scale*x.
	Hswish
	// Mish computes x*tanh(softplus(x)), passing x through above a threshold.
	Mish
	// HardSigmoid computes max(0, min(scale*x+shift, 1)).
	HardSigmoid
	// Swish computes x*sigmoid(slope*x).
	Swish
	// Gelu computes x*0.5*(1+erf(x/sqrt(2))).
	Gelu

	numKinds
)

var kindNames = map[Kind]string{
	Identity:      "identity",
	Relu:          "relu",
	LeakyRelu:     "leakyrelu",
	RestrictRange: "restrictrange",
	Prelu:         "prelu",
	Elu:           "elu",
	Hswish:        "hswish",
	Mish:          "mish",
	HardSigmoid:   "hardsigmoid",
	Swish:         "swish",
	Gelu:          "gelu",
}

var kindsByName = lo.Invert(kindNames)

// String returns the lower-case name of k.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("activation(%d)", int(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= Identity && k < numKinds
}

// NumParams returns how many raw parameters the kind takes. Prelu takes one
// per channel and reports -1.
func (k Kind) NumParams() int {
	switch k {
	case Identity, Relu, Gelu:
		return 0
	case LeakyRelu, Elu, Mish, Swish:
		return 1
	case RestrictRange, Hswish, HardSigmoid:
		return 2
	case Prelu:
		return -1
	default:
		return 0
	}
}

// PerChannel reports whether prepared parameters hold one value per channel.
func (k Kind) PerChannel() bool {
	return k == LeakyRelu || k == Prelu
}

// ParseKind looks a kind up by name, case-insensitively.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindsByName[strings.ToLower(name)]; ok {
		return k, nil
	}
	return Identity, errors.E(errors.Invalid, fmt.Sprintf("activation: unknown kind %q (want one of %s)", name, strings.Join(Names(), ", ")))
}

// Names lists every kind name in Kind order.
func Names() []string {
	return lo.Map(lo.Range(int(numKinds)), func(i int, _ int) string {
		return Kind(i).String()
	})
}

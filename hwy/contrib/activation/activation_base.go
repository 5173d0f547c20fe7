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
	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/math"
)

// The Base* row kernels apply one activation to a slice. input and output
// may alias. Full vectors are processed first, then the tail in one masked
// vector, so an element's result does not depend on where it sits in the
// row. Per-channel kinds take the slopes of the channels the row covers,
// slopes[i] for input[i].

type vecFunc func(x hwy.Vec[float32]) hwy.Vec[float32]

// transform runs fn over input in registers of the current level.
func transform(input, output []float32, fn vecFunc) {
	size := min(len(input), len(output))
	lanes := hwy.MaxLanes[float32]()
	ii := 0

	// Process full vectors
	for ; ii+lanes <= size; ii += lanes {
		hwy.Store(fn(hwy.Load(input[ii:])), output[ii:])
	}

	// Handle the tail with a masked vector
	if ii < size {
		mask := hwy.TailMask[float32](size - ii)
		hwy.MaskStore(mask, fn(hwy.MaskLoad(mask, input[ii:size])), output[ii:size])
	}
}

// BaseRelu computes max(0, x).
func BaseRelu(input, output []float32) {
	vZero := hwy.Zero[float32]()
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		return hwy.Max(x, vZero)
	})
}

// BaseRestrictRange clamps to [lo, hi].
func BaseRestrictRange(input, output []float32, lo, hi float32) {
	vLo, vHi := hwy.Set(lo), hwy.Set(hi)
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		return hwy.Min(hwy.Max(x, vLo), vHi)
	})
}

// BaseLeakyRelu computes max(0, x) + slope*min(0, x) with a per-element slope.
// Both LeakyRelu (broadcast slope) and Prelu use it.
func BaseLeakyRelu(input, output, slopes []float32) {
	size := min(len(input), len(output), len(slopes))
	vZero := hwy.Zero[float32]()
	leaky := func(x, slope hwy.Vec[float32]) hwy.Vec[float32] {
		return hwy.MulAdd(slope, hwy.Min(x, vZero), hwy.Max(x, vZero))
	}

	lanes := vZero.NumLanes()
	ii := 0
	for ; ii+lanes <= size; ii += lanes {
		hwy.Store(leaky(hwy.Load(input[ii:]), hwy.Load(slopes[ii:])), output[ii:])
	}
	if ii < size {
		mask := hwy.TailMask[float32](size - ii)
		x := hwy.MaskLoad(mask, input[ii:size])
		hwy.MaskStore(mask, leaky(x, hwy.MaskLoad(mask, slopes[ii:size])), output[ii:size])
	}
}

// BaseElu computes the Exponential Linear Unit.
//
// ELU(x) = x if x >= 0, else alpha * (exp(x) - 1)
func BaseElu(input, output []float32, alpha float32) {
	vAlpha, vZero := hwy.Set(alpha), hwy.Zero[float32]()
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		neg := hwy.Mul(vAlpha, math.BaseExpm1Vec(x))
		return hwy.Merge(neg, x, hwy.Less(x, vZero))
	})
}

// BaseHswish computes the hard swish used by MobileNetV3.
//
// Hswish(x) = max(min(x, shift) + shift, 0) * scale * x
func BaseHswish(input, output []float32, shift, scale float32) {
	vShift, vScale, vZero := hwy.Set(shift), hwy.Set(scale), hwy.Zero[float32]()
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		gate := hwy.Max(hwy.Add(hwy.Min(x, vShift), vShift), vZero)
		return hwy.Mul(hwy.Mul(gate, vScale), x)
	})
}

// BaseMish computes x * tanh(ln(1 + exp(x))), or x above threshold where the
// softplus saturates.
func BaseMish(input, output []float32, threshold float32) {
	vThreshold := hwy.Set(threshold)
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		softplus := math.BaseLog1pVec(math.BaseExpVec(x))
		mish := hwy.Mul(x, math.BaseTanhVec(softplus))
		return hwy.Merge(x, mish, hwy.Greater(x, vThreshold))
	})
}

// BaseHardSigmoid computes max(0, min(scale*x + shift, 1)).
func BaseHardSigmoid(input, output []float32, scale, shift float32) {
	vScale, vShift := hwy.Set(scale), hwy.Set(shift)
	vZero, vOne := hwy.Zero[float32](), hwy.Const[float32](1)
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		return hwy.Max(hwy.Min(hwy.MulAdd(x, vScale, vShift), vOne), vZero)
	})
}

// BaseSwish computes x * sigmoid(slope*x).
func BaseSwish(input, output []float32, slope float32) {
	vSlope := hwy.Set(slope)
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		return hwy.Mul(x, math.BaseSigmoidVec(hwy.Mul(vSlope, x)))
	})
}

// BaseGelu computes the Gaussian Error Linear Unit activation function.
//
// GELU(x) = x * 0.5 * (1 + erf(x / sqrt(2)))
func BaseGelu(input, output []float32) {
	vHalf := hwy.Const[float32](0.5)
	vOne := hwy.Const[float32](1.0)
	vInvSqrt2 := hwy.Const[float32](0.7071067811865476)
	transform(input, output, func(x hwy.Vec[float32]) hwy.Vec[float32] {
		erfX := math.BaseErfVec(hwy.Mul(x, vInvSqrt2))
		return hwy.Mul(x, hwy.Mul(vHalf, hwy.Add(vOne, erfX)))
	})
}

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

package math

import (
	stdmath "math"

	"github.com/ajroetker/go-synet/hwy"
)

// splat broadcasts c to as many lanes as like has, so constants follow the
// width of the vector they are combined with.
func splat[T hwy.Floats](c float32, like hwy.Vec[T]) hwy.Vec[T] {
	return hwy.SetN(T(c), like.NumLanes())
}

// BaseExpVec computes e^x for a single vector, returning the result.
//
// Algorithm:
// 1. Range reduction: x = k*ln(2) + r, where |r| <= ln(2)/2
// 2. Polynomial approximation: e^r ≈ 1 + r + r²/2! + r³/3! + ...
// 3. Reconstruction: e^x = 2^k * e^r, scaling by 2^k in two halves so
// results just below the overflow bound stay finite
func BaseExpVec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	overflow := splat(expOverflow_f32, x)
	underflow := splat(expUnderflow_f32, x)
	one := splat(1, x)
	half := splat(0.5, x)
	zero := splat(0, x)
	inf := hwy.SetN(T(stdmath.Inf(1)), x.NumLanes())
	invLn2 := splat(expInvLn2_f32, x)
	ln2Hi := splat(expLn2Hi_f32, x)
	ln2Lo := splat(expLn2Lo_f32, x)

	c1 := splat(expC1_f32, x)
	c2 := splat(expC2_f32, x)
	c3 := splat(expC3_f32, x)
	c4 := splat(expC4_f32, x)
	c5 := splat(expC5_f32, x)
	c6 := splat(expC6_f32, x)

	overflowMask := hwy.Greater(x, overflow)
	underflowMask := hwy.Less(x, underflow)

	// Range reduction: k = round(x / ln(2)), r = x - k * ln(2)
	kFloat := hwy.RoundToEven(hwy.Mul(x, invLn2))
	r := hwy.Sub(x, hwy.Mul(kFloat, ln2Hi))
	r = hwy.Sub(r, hwy.Mul(kFloat, ln2Lo))

	// Horner's method
	p := hwy.MulAdd(c6, r, c5)
	p = hwy.MulAdd(p, r, c4)
	p = hwy.MulAdd(p, r, c3)
	p = hwy.MulAdd(p, r, c2)
	p = hwy.MulAdd(p, r, c1)
	p = hwy.MulAdd(p, r, one)

	kHi := hwy.RoundToEven(hwy.Mul(kFloat, half))
	kLo := hwy.Sub(kFloat, kHi)
	result := hwy.Mul(p, hwy.Pow2[T](hwy.ConvertToInt32(kHi)))
	result = hwy.Mul(result, hwy.Pow2[T](hwy.ConvertToInt32(kLo)))

	result = hwy.Merge(inf, result, overflowMask)
	result = hwy.Merge(zero, result, underflowMask)
	return result
}

// BaseExpm1Vec computes e^x - 1. Near zero it sums the Taylor series
// directly instead of cancelling against 1.
func BaseExpm1Vec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	one := splat(1, x)
	small := hwy.Less(hwy.Abs(x), splat(expm1Small_f32, x))

	p := hwy.MulAdd(splat(expm1C7_f32, x), x, splat(expC6_f32, x))
	p = hwy.MulAdd(p, x, splat(expC5_f32, x))
	p = hwy.MulAdd(p, x, splat(expC4_f32, x))
	p = hwy.MulAdd(p, x, splat(expC3_f32, x))
	p = hwy.MulAdd(p, x, splat(expC2_f32, x))
	series := hwy.MulAdd(hwy.Mul(p, x), x, x)

	return hwy.Merge(series, hwy.Sub(BaseExpVec(x), one), small)
}

// BaseLogVec computes ln(x) for a single vector. ln(0) is -Inf, negative
// inputs give NaN.
func BaseLogVec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	one := splat(1, x)
	two := splat(2, x)
	half := splat(0.5, x)
	zero := splat(0, x)
	inf := hwy.SetN(T(stdmath.Inf(1)), x.NumLanes())
	nan := hwy.SetN(T(stdmath.NaN()), x.NumLanes())
	ln2Hi := splat(logLn2Hi_f32, x)
	ln2Lo := splat(logLn2Lo_f32, x)

	c1 := splat(logC1_f32, x)
	c2 := splat(logC2_f32, x)
	c3 := splat(logC3_f32, x)
	c4 := splat(logC4_f32, x)
	c5 := splat(logC5_f32, x)

	// x = m * 2^e, then fold m into [sqrt(2)/2, sqrt(2))
	e := hwy.ConvertFromInt32[T](hwy.GetExponent(x))
	m := hwy.GetMantissa(x)
	mLarge := hwy.Greater(m, splat(logSqrt2_f32, x))
	m = hwy.Merge(hwy.Mul(m, half), m, mLarge)
	e = hwy.Merge(hwy.Add(e, one), e, mLarge)

	// log(m) = 2*atanh(y), y = (m-1)/(m+1)
	y := hwy.Div(hwy.Sub(m, one), hwy.Add(m, one))
	y2 := hwy.Mul(y, y)
	poly := hwy.MulAdd(c5, y2, c4)
	poly = hwy.MulAdd(poly, y2, c3)
	poly = hwy.MulAdd(poly, y2, c2)
	poly = hwy.MulAdd(poly, y2, c1)
	logM := hwy.Mul(hwy.Mul(two, y), poly)

	// log(x) = e*ln(2) + log(m)
	result := hwy.Add(hwy.MulAdd(e, ln2Hi, logM), hwy.Mul(e, ln2Lo))

	result = hwy.Merge(inf, result, hwy.Equal(x, inf))
	result = hwy.Merge(hwy.Neg(inf), result, hwy.Equal(x, zero))
	result = hwy.Merge(nan, result, hwy.Less(x, zero))
	return result
}

// BaseLog1pVec computes ln(1 + x), correcting the rounding of 1 + x so
// small x keep their precision.
func BaseLog1pVec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	one := splat(1, x)
	inf := hwy.SetN(T(stdmath.Inf(1)), x.NumLanes())

	w := hwy.Add(one, x)
	lw := BaseLogVec(w)
	// log(w) * x / (w - 1) cancels the error made forming w.
	result := hwy.Mul(lw, hwy.Div(x, hwy.Sub(w, one)))

	result = hwy.Merge(x, result, hwy.Equal(w, one))
	result = hwy.Merge(lw, result, hwy.Equal(w, inf))
	return result
}

// BaseSigmoidVec computes sigmoid(x) = 1 / (1 + e^(-x)) using BaseExpVec.
func BaseSigmoidVec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	one := splat(1, x)
	zero := splat(0, x)
	satHi := splat(sigmoidSat_f32, x)
	satLo := hwy.Neg(satHi)

	// Clamp to avoid exp overflow
	clampedX := hwy.Max(hwy.Min(x, satHi), satLo)
	expNegX := BaseExpVec(hwy.Neg(clampedX))
	result := hwy.Div(one, hwy.Add(one, expNegX))

	result = hwy.Merge(one, result, hwy.Greater(x, satHi))
	result = hwy.Merge(zero, result, hwy.Less(x, satLo))
	return result
}

// BaseTanhVec computes tanh(x) = 2*sigmoid(2x) - 1 using BaseSigmoidVec,
// with an odd polynomial near zero where that form cancels.
func BaseTanhVec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	two := splat(2, x)
	one := splat(1, x)
	negOne := splat(-1, x)
	threshold := splat(tanhClamp_f32, x)

	sigTwoX := BaseSigmoidVec(hwy.Mul(two, x))
	result := hwy.Sub(hwy.Mul(two, sigTwoX), one)

	// tanh(x) ≈ x + x³(-1/3 + x²(2/15 - 17x²/315))
	x2 := hwy.Mul(x, x)
	poly := hwy.MulAdd(splat(tanhC7_f32, x), x2, splat(tanhC5_f32, x))
	poly = hwy.MulAdd(poly, x2, splat(tanhC3_f32, x))
	series := hwy.MulAdd(hwy.Mul(poly, x2), x, x)
	result = hwy.Merge(series, result, hwy.Less(hwy.Abs(x), splat(tanhSmall_f32, x)))

	result = hwy.Merge(one, result, hwy.Greater(x, threshold))
	result = hwy.Merge(negOne, result, hwy.Less(x, hwy.Neg(threshold)))
	return result
}

// BaseErfVec computes erf(x) for a single vector.
func BaseErfVec[T hwy.Floats](x hwy.Vec[T]) hwy.Vec[T] {
	a1 := splat(erfA1_f32, x)
	a2 := splat(erfA2_f32, x)
	a3 := splat(erfA3_f32, x)
	a4 := splat(erfA4_f32, x)
	a5 := splat(erfA5_f32, x)
	p := splat(erfP_f32, x)
	one := splat(1, x)
	zero := splat(0, x)

	// erf(-x) = -erf(x)
	absX := hwy.Abs(x)
	signMask := hwy.Less(x, zero)

	// t = 1 / (1 + p * |x|)
	t := hwy.Div(one, hwy.Add(one, hwy.Mul(p, absX)))

	poly := hwy.MulAdd(a5, t, a4)
	poly = hwy.MulAdd(poly, t, a3)
	poly = hwy.MulAdd(poly, t, a2)
	poly = hwy.MulAdd(poly, t, a1)
	poly = hwy.Mul(poly, t)

	// erf(|x|) = 1 - poly * exp(-x²)
	expNegX2 := BaseExpVec(hwy.Neg(hwy.Mul(absX, absX)))
	erfAbs := hwy.Sub(one, hwy.Mul(poly, expNegX2))
	erfAbs = hwy.Max(hwy.Min(erfAbs, one), zero)

	return hwy.Merge(hwy.Neg(erfAbs), erfAbs, signMask)
}

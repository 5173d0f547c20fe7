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

import "math"

// This file provides the pure Go implementations of the vector operations.
// Every operation works lane by lane on the live lanes of its operands; a
// binary operation on vectors of different widths yields the narrower one.

// Load creates a vector by loading data from a slice, one register of the
// current level wide (fewer lanes if src is shorter).
func Load[T Lanes](src []T) Vec[T] {
	return LoadN(src, min(len(src), MaxLanes[T]()))
}

// LoadN loads exactly n lanes from src. Kernels whose register width is
// fixed by a packed data layout rather than by the host use it.
func LoadN[T Lanes](src []T, n int) Vec[T] {
	v := Vec[T]{n: n}
	copy(v.data[:n], src[:n])
	return v
}

// Store writes a vector's data to a slice.
func Store[T Lanes](v Vec[T], dst []T) {
	n := min(len(dst), v.n)
	copy(dst[:n], v.data[:n])
}

// Set creates a vector with all lanes set to the same value.
func Set[T Lanes](value T) Vec[T] {
	return SetN(value, MaxLanes[T]())
}

// SetN creates an n-lane vector with all lanes set to value.
func SetN[T Lanes](value T, n int) Vec[T] {
	v := Vec[T]{n: n}
	for i := range n {
		v.data[i] = value
	}
	return v
}

// Const creates a vector with all lanes set to the given float32 constant.
// This allows writing generic code without T(constant) conversions.
func Const[T Floats](val float32) Vec[T] {
	return Set(T(val))
}

// Zero creates a vector with all lanes set to zero.
func Zero[T Lanes]() Vec[T] {
	return Vec[T]{n: MaxLanes[T]()}
}

// ZeroN creates an n-lane vector of zeros.
func ZeroN[T Lanes](n int) Vec[T] {
	return Vec[T]{n: n}
}

// Add performs element-wise addition.
func Add[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = a.data[i] + b.data[i]
	}
	return r
}

// Sub performs element-wise subtraction.
func Sub[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = a.data[i] - b.data[i]
	}
	return r
}

// Mul performs element-wise multiplication. Each product is rounded to T.
func Mul[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = T(a.data[i] * b.data[i])
	}
	return r
}

// Div performs element-wise division.
func Div[T Floats](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = a.data[i] / b.data[i]
	}
	return r
}

// MulAdd computes a*b + c. The product is rounded before the add, so the
// result is the same whether or not the target fuses multiply-add.
func MulAdd[T Floats](a, b, c Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n, c.n)}
	for i := range r.n {
		r.data[i] = T(a.data[i]*b.data[i]) + c.data[i]
	}
	return r
}

// Neg negates each lane.
func Neg[T Lanes](v Vec[T]) Vec[T] {
	for i := range v.n {
		v.data[i] = -v.data[i]
	}
	return v
}

// Abs computes the absolute value of each lane.
func Abs[T Lanes](v Vec[T]) Vec[T] {
	for i := range v.n {
		if v.data[i] < 0 {
			v.data[i] = -v.data[i]
		}
	}
	return v
}

// Min returns the element-wise minimum.
func Min[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		if a.data[i] < b.data[i] {
			r.data[i] = a.data[i]
		} else {
			r.data[i] = b.data[i]
		}
	}
	return r
}

// Max returns the element-wise maximum.
func Max[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		if a.data[i] > b.data[i] {
			r.data[i] = a.data[i]
		} else {
			r.data[i] = b.data[i]
		}
	}
	return r
}

// RoundToEven rounds each lane to the nearest integer, ties to even.
func RoundToEven[T Floats](v Vec[T]) Vec[T] {
	for i := range v.n {
		v.data[i] = T(math.RoundToEven(float64(v.data[i])))
	}
	return v
}

// ConvertToInt32 truncates each lane to int32.
func ConvertToInt32[T Floats](v Vec[T]) Vec[int32] {
	r := Vec[int32]{n: v.n}
	for i := range v.n {
		r.data[i] = int32(v.data[i])
	}
	return r
}

// ConvertFromInt32 converts int32 lanes to T.
func ConvertFromInt32[T Floats](v Vec[int32]) Vec[T] {
	r := Vec[T]{n: v.n}
	for i := range v.n {
		r.data[i] = T(v.data[i])
	}
	return r
}

// Pow2 computes 2^k for each lane by building the IEEE 754 exponent.
// Exponents below the normal range give 0, above it +Inf.
func Pow2[T Floats](k Vec[int32]) Vec[T] {
	r := Vec[T]{n: k.n}
	var zero T
	_, isF32 := any(zero).(float32)
	for i := range k.n {
		e := k.data[i]
		switch {
		case isF32 && e < -126, !isF32 && e < -1022:
			r.data[i] = 0
		case isF32 && e > 127, !isF32 && e > 1023:
			r.data[i] = T(math.Inf(1))
		case isF32:
			r.data[i] = T(math.Float32frombits(uint32(e+127) << 23))
		default:
			r.data[i] = T(math.Float64frombits(uint64(e+1023) << 52))
		}
	}
	return r
}

// GetExponent returns the unbiased binary exponent of each lane, such that
// x = m * 2^e with m in [1, 2).
func GetExponent[T Floats](v Vec[T]) Vec[int32] {
	r := Vec[int32]{n: v.n}
	for i := range v.n {
		_, e := math.Frexp(float64(v.data[i]))
		r.data[i] = int32(e - 1)
	}
	return r
}

// GetMantissa returns the significand of each lane scaled into [1, 2).
func GetMantissa[T Floats](v Vec[T]) Vec[T] {
	for i := range v.n {
		m, _ := math.Frexp(float64(v.data[i]))
		v.data[i] = T(2 * m)
	}
	return v
}

// Equal returns a mask of lanes where a == b.
func Equal[T Lanes](a, b Vec[T]) Mask[T] {
	m := Mask[T]{n: min(a.n, b.n)}
	for i := range m.n {
		m.set(i, a.data[i] == b.data[i])
	}
	return m
}

// Greater returns a mask of lanes where a > b.
func Greater[T Lanes](a, b Vec[T]) Mask[T] {
	m := Mask[T]{n: min(a.n, b.n)}
	for i := range m.n {
		m.set(i, a.data[i] > b.data[i])
	}
	return m
}

// Less returns a mask of lanes where a < b.
func Less[T Lanes](a, b Vec[T]) Mask[T] {
	m := Mask[T]{n: min(a.n, b.n)}
	for i := range m.n {
		m.set(i, a.data[i] < b.data[i])
	}
	return m
}

// IfThenElse selects a where the mask is set and b elsewhere.
func IfThenElse[T Lanes](mask Mask[T], a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		if mask.GetBit(i) {
			r.data[i] = a.data[i]
		} else {
			r.data[i] = b.data[i]
		}
	}
	return r
}

// Merge is IfThenElse with the mask last.
func Merge[T Lanes](a, b Vec[T], mask Mask[T]) Vec[T] {
	return IfThenElse(mask, a, b)
}

// MaskLoad loads the active lanes of mask from src and zeroes the others.
// Inactive lanes are never read, so src may be shorter than the mask.
func MaskLoad[T Lanes](mask Mask[T], src []T) Vec[T] {
	v := Vec[T]{n: mask.n}
	for i := range min(len(src), mask.n) {
		if mask.GetBit(i) {
			v.data[i] = src[i]
		}
	}
	return v
}

// MaskStore stores vector data to a slice only for lanes where the mask is true.
func MaskStore[T Lanes](mask Mask[T], v Vec[T], dst []T) {
	for i := range min(len(dst), v.n, mask.n) {
		if mask.GetBit(i) {
			dst[i] = v.data[i]
		}
	}
}

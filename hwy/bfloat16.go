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

// BFloat16 is a brain float: the upper half of a float32, sign, 8 exponent
// bits and 7 mantissa bits. It keeps the float32 range at about 2.4
// decimal digits of precision. Activations and 1×1 convolution weights are
// stored in this format while every accumulation happens in float32.
//
//	S | EEEEEEEE | MMMMMMM
type BFloat16 uint16

const (
	BFloat16Zero BFloat16 = 0x0000
	BFloat16One  BFloat16 = 0x3F80
	BFloat16Inf  BFloat16 = 0x7F80
	BFloat16NaN  BFloat16 = 0x7FC0 // canonical quiet NaN
)

// BFloat16ToFloat32 widens b. The conversion is exact.
func BFloat16ToFloat32(b BFloat16) float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// Float32ToBFloat16 rounds f to the nearest bfloat16, ties to even. NaNs
// stay NaN (quieted, sign kept) and overflow rounds to infinity.
func Float32ToBFloat16(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if bits&0x7FFFFFFF > 0x7F800000 {
		return BFloat16((bits >> 16) | 0x0040)
	}
	// Adding 0x7FFF rounds up when the dropped half is above the midpoint;
	// the low kept bit breaks the tie.
	bits += 0x7FFF + (bits>>16)&1
	return BFloat16(bits >> 16)
}

// IsNaN reports whether b is a NaN.
func (b BFloat16) IsNaN() bool {
	return b&0x7F80 == 0x7F80 && b&0x7F != 0
}

// IsInf reports whether b is an infinity of either sign.
func (b BFloat16) IsInf() bool {
	return b&0x7FFF == 0x7F80
}

// Float32 widens b.
func (b BFloat16) Float32() float32 {
	return BFloat16ToFloat32(b)
}

// RoundBFloat16 rounds f to the nearest bfloat16 and returns it widened
// back to float32. Reference kernels use it to reproduce the precision
// loss of a bf16 store without changing the element type.
func RoundBFloat16(f float32) float32 {
	return BFloat16ToFloat32(Float32ToBFloat16(f))
}

// Float32ToBFloat16Slice converts src into dst with round-to-nearest-even.
// It converts min(len(dst), len(src)) elements and returns that count.
func Float32ToBFloat16Slice(dst []BFloat16, src []float32) int {
	n := min(len(dst), len(src))
	dst = dst[:n]
	for i, v := range src[:n] {
		dst[i] = Float32ToBFloat16(v)
	}
	return n
}

// BFloat16ToFloat32Slice widens src into dst. The conversion is exact.
// It converts min(len(dst), len(src)) elements and returns that count.
func BFloat16ToFloat32Slice(dst []float32, src []BFloat16) int {
	n := min(len(dst), len(src))
	dst = dst[:n]
	for i, v := range src[:n] {
		dst[i] = math.Float32frombits(uint32(v) << 16)
	}
	return n
}

// ZeroBFloat16 clears s.
func ZeroBFloat16(s []BFloat16) {
	clear(s)
}

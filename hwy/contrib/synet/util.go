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

import "math/bits"

// AlignHi rounds v up to a multiple of align.
func AlignHi(v, align int) int {
	return (v + align - 1) / align * align
}

// AlignLo rounds v down to a multiple of align.
func AlignLo(v, align int) int {
	return v / align * align
}

// DivHi divides rounding up.
func DivHi(v, d int) int {
	return (v + d - 1) / d
}

// Pow2Hi returns the smallest power of two >= v, or 0 for v <= 0.
func Pow2Hi(v int) int {
	if v <= 0 {
		return 0
	}
	return 1 << bits.Len(uint(v-1))
}

// RestrictRange clamps v to [lo, hi].
func RestrictRange(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

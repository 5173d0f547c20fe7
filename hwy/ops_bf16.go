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

// PromoteEvenOddBF16 widens n bf16 pairs to float32: even holds src[2i]
// and odd holds src[2i+1]. Pair-interleaved weights load this way, the
// layout consumed by VDPBF16PS and BFMMLA.
func PromoteEvenOddBF16(src []BFloat16, n int) (even, odd Vec[float32]) {
	even.n, odd.n = n, n
	src = src[:2*n]
	for i := range n {
		even.data[i] = BFloat16ToFloat32(src[2*i])
		odd.data[i] = BFloat16ToFloat32(src[2*i+1])
	}
	return even, odd
}

// DotPairsBF16 accumulates one bf16 pair step of a dot product into acc:
//
//	acc += a0*b0 + a1*b1
//
// with both products rounded before they are summed. Every bf16 kernel
// goes through it, so all of them see identical sums.
func DotPairsBF16(acc, a0, b0, a1, b1 Vec[float32]) Vec[float32] {
	return Add(acc, MulAdd(a0, b0, Mul(a1, b1)))
}

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

import (
	"math"
	"testing"
)

func TestLoad(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}
	v := Load(data)
	if got, want := v.NumLanes(), MaxLanes[float32](); got != want {
		t.Fatalf("Load: %d lanes, want %d", got, want)
	}
	for i, x := range v.Data() {
		if x != data[i] {
			t.Errorf("Load: lane %d: got %v, want %v", i, x, data[i])
		}
	}

	// A short source gives a short vector.
	if got := Load(data[:2]).NumLanes(); got != 2 {
		t.Errorf("Load of 2 elements: %d lanes", got)
	}
}

func TestLoadN(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	v := LoadN(data, 5)
	if v.NumLanes() != 5 {
		t.Fatalf("LoadN: %d lanes, want 5", v.NumLanes())
	}
	dst := make([]float32, 6)
	v.Store(dst)
	if dst[4] != 5 || dst[5] != 0 {
		t.Errorf("Store after LoadN(5): %v", dst)
	}
	if got := SetN[float32](2, 3).Data(); len(got) != 3 || got[2] != 2 {
		t.Errorf("SetN: %v", got)
	}
	if got := ZeroN[float32](7).NumLanes(); got != 7 {
		t.Errorf("ZeroN: %d lanes", got)
	}
}

func TestBinaryOpsUseNarrowerWidth(t *testing.T) {
	a := SetN[float32](1, 8)
	b := SetN[float32](2, 3)
	if got := Add(a, b).NumLanes(); got != 3 {
		t.Errorf("Add: %d lanes, want 3", got)
	}
	if got := MulAdd(a, a, b).NumLanes(); got != 3 {
		t.Errorf("MulAdd: %d lanes, want 3", got)
	}
}

func TestArithmetic(t *testing.T) {
	a := Set[float32](10)
	b := Set[float32](4)
	tests := []struct {
		name string
		v    Vec[float32]
		want float32
	}{
		{"Add", Add(a, b), 14},
		{"Sub", Sub(a, b), 6},
		{"Mul", Mul(a, b), 40},
		{"Div", Div(a, b), 2.5},
		{"MulAdd", MulAdd(a, b, b), 44},
		{"Neg", Neg(a), -10},
		{"Abs", Abs(Neg(a)), 10},
		{"Min", Min(a, b), 4},
		{"Max", Max(a, b), 10},
	}
	for _, tt := range tests {
		for i, x := range tt.v.Data() {
			if x != tt.want {
				t.Errorf("%s: lane %d: got %v, want %v", tt.name, i, x, tt.want)
			}
		}
	}
}

// TestMulAddRoundsProduct uses a product whose exact value is half an ulp
// off a float32: a fused multiply-add would keep that half ulp.
func TestMulAddRoundsProduct(t *testing.T) {
	x := float32(1 + 1.0/4096)
	a := Set(x)
	c := Set(-float32(1 + 1.0/2048))
	for i, got := range MulAdd(a, a, c).Data() {
		if got != 0 {
			t.Errorf("MulAdd: lane %d: got %g, want 0", i, got)
		}
	}
}

func TestRoundAndConvert(t *testing.T) {
	v := LoadN([]float32{0.5, 1.5, 2.5, -1.5}, 4)
	want := []float32{0, 2, 2, -2}
	for i, x := range RoundToEven(v).Data() {
		if x != want[i] {
			t.Errorf("RoundToEven: lane %d: got %v, want %v", i, x, want[i])
		}
	}
	ints := ConvertToInt32(LoadN([]float32{2.9, -2.9, 0}, 3)).Data()
	if ints[0] != 2 || ints[1] != -2 || ints[2] != 0 {
		t.Errorf("ConvertToInt32: %v", ints)
	}
	back := ConvertFromInt32[float32](LoadN([]int32{-3, 7}, 2)).Data()
	if back[0] != -3 || back[1] != 7 {
		t.Errorf("ConvertFromInt32: %v", back)
	}
}

func TestPow2(t *testing.T) {
	k := LoadN([]int32{-127, -126, 0, 1, 127, 128}, 6)
	want := []float32{0, float32(math.Ldexp(1, -126)), 1, 2, float32(math.Ldexp(1, 127)), float32(math.Inf(1))}
	for i, x := range Pow2[float32](k).Data() {
		if x != want[i] {
			t.Errorf("Pow2[float32](%d) = %g, want %g", k.Data()[i], x, want[i])
		}
	}
	k64 := LoadN([]int32{-1023, 0, 1000, 1024}, 4)
	want64 := []float64{0, 1, math.Ldexp(1, 1000), math.Inf(1)}
	for i, x := range Pow2[float64](k64).Data() {
		if x != want64[i] {
			t.Errorf("Pow2[float64](%d) = %g, want %g", k64.Data()[i], x, want64[i])
		}
	}
}

func TestExponentAndMantissa(t *testing.T) {
	v := LoadN([]float32{1, 3, 0.375, 1024}, 4)
	wantE := []int32{0, 1, -2, 10}
	wantM := []float32{1, 1.5, 1.5, 1}
	e, m := GetExponent(v).Data(), GetMantissa(v).Data()
	for i := range wantE {
		if e[i] != wantE[i] || m[i] != wantM[i] {
			t.Errorf("lane %d: exponent %d mantissa %v, want %d %v", i, e[i], m[i], wantE[i], wantM[i])
		}
	}
}

func TestCompareAndSelect(t *testing.T) {
	a := LoadN([]float32{1, 5, 3, 7}, 4)
	b := SetN[float32](4, 4)
	gt := Greater(a, b)
	if gt.CountTrue() != 2 || !gt.GetBit(1) || gt.GetBit(0) {
		t.Errorf("Greater: count %d", gt.CountTrue())
	}
	if Less(a, b).CountTrue() != 2 || !Equal(a, a).AllTrue() {
		t.Error("Less or Equal mask is wrong")
	}
	got := IfThenElse(gt, a, b).Data()
	want := []float32{4, 5, 4, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IfThenElse: lane %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if m := Merge(b, a, gt).Data(); m[1] != 4 || m[0] != 1 {
		t.Errorf("Merge: %v", m)
	}
}

func TestTailMask(t *testing.T) {
	lanes := MaxLanes[float32]()
	tests := []struct {
		count, want int
	}{
		{-1, 0},
		{0, 0},
		{3, 3},
		{lanes, lanes},
		{lanes + 5, lanes},
	}
	for _, tt := range tests {
		m := TailMask[float32](tt.count)
		if m.NumLanes() != lanes || m.CountTrue() != tt.want {
			t.Errorf("TailMask(%d): %d of %d lanes, want %d of %d", tt.count, m.CountTrue(), m.NumLanes(), tt.want, lanes)
		}
		if m.AnyTrue() != (tt.want > 0) {
			t.Errorf("TailMask(%d).AnyTrue() = %t", tt.count, m.AnyTrue())
		}
	}
}

func TestMaskLoadStore(t *testing.T) {
	src := []float32{1, 2, 3}
	mask := TailMask[float32](len(src))
	v := MaskLoad(mask, src)
	if v.NumLanes() != MaxLanes[float32]() {
		t.Fatalf("MaskLoad: %d lanes", v.NumLanes())
	}
	for i, x := range v.Data() {
		want := float32(0)
		if i < len(src) {
			want = src[i]
		}
		if x != want {
			t.Errorf("MaskLoad: lane %d: got %v, want %v", i, x, want)
		}
	}

	dst := []float32{-1, -1, -1}
	MaskStore(TailMask[float32](2), Set[float32](9), dst)
	if dst[0] != 9 || dst[1] != 9 || dst[2] != -1 {
		t.Errorf("MaskStore: %v", dst)
	}
}

func TestPromoteEvenOddBF16(t *testing.T) {
	src := make([]BFloat16, 8)
	for i := range src {
		src[i] = Float32ToBFloat16(float32(i + 1))
	}
	even, odd := PromoteEvenOddBF16(src, 4)
	for i := range 4 {
		if even.Data()[i] != float32(2*i+1) || odd.Data()[i] != float32(2*i+2) {
			t.Errorf("pair %d: even %v odd %v", i, even.Data()[i], odd.Data()[i])
		}
	}
}

func TestDotPairsBF16(t *testing.T) {
	acc := LoadN([]float32{1, 2}, 2)
	a0, b0 := SetN[float32](2, 2), LoadN([]float32{3, 4}, 2)
	a1, b1 := SetN[float32](-1, 2), LoadN([]float32{5, 6}, 2)
	got := DotPairsBF16(acc, a0, b0, a1, b1).Data()
	if got[0] != 1+6-5 || got[1] != 2+8-6 {
		t.Errorf("DotPairsBF16: %v", got)
	}
}

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
	stdmath "math"
	"math/rand/v2"
	"testing"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

// tinyCaches forces several channel tiles and short row tiles on the test
// shapes.
var tinyCaches = hwy.CacheSizes{L1: 1 << 10, L2: 4 << 10, L3: 2 << 10}

// bigCaches fits every test shape in one tile.
var bigCaches = hwy.CacheSizes{L1: 32 << 10, L2: 1 << 20, L3: 32 << 20}

var allBackends = []Backend{BackendScalar, BackendLanes4, BackendLanes8, BackendLanes16, BackendTile}

func rng(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// layerParams holds SetParams arguments.
type layerParams struct {
	weights, biases, params [][]float32
}

// activationParams returns typical raw parameters for kind.
func activationParams(rng *rand.Rand, kind activation.Kind, channels int) []float32 {
	switch kind {
	case activation.LeakyRelu:
		return []float32{0.1}
	case activation.RestrictRange:
		return []float32{-1, 1.5}
	case activation.Prelu:
		s := make([]float32, channels)
		for i := range s {
			s[i] = rng.Float32() * 0.3
		}
		return s
	case activation.Elu:
		return []float32{1}
	case activation.Hswish:
		return []float32{3, 1.0 / 6}
	case activation.Mish:
		return []float32{20}
	case activation.HardSigmoid:
		return []float32{1.0 / 6, 0.5}
	case activation.Swish:
		return []float32{1}
	default:
		return nil
	}
}

// randomLayer draws weights scaled by fan-in, small biases and the usual
// activation parameters for every stage of p.
func randomLayer(rng *rand.Rand, p MergConvParam) layerParams {
	var lp layerParams
	for _, c := range p.Conv {
		w := make([]float32, c.WeightSize())
		scale := float32(1 / stdmath.Sqrt(float64(c.KernelY*c.KernelX*c.SrcC/c.Group)))
		for i := range w {
			w[i] = (rng.Float32()*2 - 1) * scale
		}
		b := make([]float32, c.DstC)
		for i := range b {
			b[i] = rng.Float32() - 0.5
		}
		lp.weights = append(lp.weights, w)
		lp.biases = append(lp.biases, b)
		lp.params = append(lp.params, activationParams(rng, c.Activation, c.DstC))
	}
	return lp
}

// randomTensor returns n values in [-1, 1) of type typ.
func randomTensor(rng *rand.Rand, typ TensorType, n int) Tensor {
	f := make([]float32, n)
	for i := range f {
		f[i] = rng.Float32()*2 - 1
	}
	return tensorOf(typ, f)
}

func tensorOf(typ TensorType, f []float32) Tensor {
	if typ == BFloat16 {
		b := make([]hwy.BFloat16, len(f))
		hwy.Float32ToBFloat16Slice(b, f)
		return BFloat16Tensor(b)
	}
	return Float32Tensor(f)
}

func newTensor(typ TensorType, n int) Tensor {
	if typ == BFloat16 {
		return BFloat16Tensor(make([]hwy.BFloat16, n))
	}
	return Float32Tensor(make([]float32, n))
}

// build creates and loads a merged convolution.
func build(t testing.TB, p MergConvParam, lp layerParams, opts ...Option) *MergedConvolution {
	t.Helper()
	mc, err := New(p, opts...)
	require.NoError(t, err)
	require.NoError(t, mc.SetParams(lp.weights, lp.biases, lp.params))
	return mc
}

// run applies mc to src with a fresh caller arena and returns the output
// widened to fp32.
func run(t testing.TB, mc *MergedConvolution, src Tensor) []float32 {
	t.Helper()
	p := mc.Param()
	dst := newTensor(p.Last().DstT, p.Batch*p.DstSize())
	require.NoError(t, mc.Forward(src, dst, make([]byte, mc.ExternalBufferSize())))
	return dst.AsFloat32()
}

// approx allows for reduction-order rounding only. The tiled kernels and the
// reference round to bf16 at the same points and sum in the same order, so
// in practice they agree exactly.
var approx = cmpopts.EquateApprox(1e-5, 1e-5)

func requireClose(t testing.TB, want, got []float32, msg string) {
	t.Helper()
	require.Len(t, got, len(want), msg)
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("%s: mismatch (-want +got):\n%s", msg, diff)
	}
}

// cdc returns an input+depthwise+output chain on an h×w image.
func cdc(h, w, srcC, midC, dstC int, kernel, stride int) MergConvParam {
	dw := Depthwise(h, w, midC, kernel, stride, kernel/2, activation.RestrictRange)
	return MergConvParam{
		Batch: 1,
		Conv: []ConvParam{
			Pointwise(h, w, srcC, midC, activation.Relu),
			dw,
			Pointwise(dw.DstH, dw.DstW, midC, dstC, activation.Identity),
		},
	}
}

// cd returns an input+depthwise chain.
func cd(h, w, srcC, dstC int, kernel, stride int) MergConvParam {
	return MergConvParam{
		Batch: 1,
		Conv: []ConvParam{
			Pointwise(h, w, srcC, dstC, activation.Prelu),
			Depthwise(h, w, dstC, kernel, stride, kernel/2, activation.Hswish),
		},
	}
}

// dc returns a depthwise+output chain.
func dc(h, w, srcC, dstC int, kernel, stride int) MergConvParam {
	dw := Depthwise(h, w, srcC, kernel, stride, kernel/2, activation.Relu)
	return MergConvParam{
		Batch: 1,
		Conv: []ConvParam{
			dw,
			Pointwise(dw.DstH, dw.DstW, srcC, dstC, activation.LeakyRelu),
		},
	}
}

// withTypes sets the chain's outer tensor types.
func withTypes(p MergConvParam, src, dst TensorType) MergConvParam {
	p.Conv = append([]ConvParam(nil), p.Conv...)
	p.Conv[0].SrcT = src
	p.Conv[len(p.Conv)-1].DstT = dst
	return p
}

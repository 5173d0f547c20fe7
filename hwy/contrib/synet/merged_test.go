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
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/google/go-cmp/cmp"
	"github.com/grailbio/base/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkAgainstBase runs p tiled with opts and untiled, on the same random
// weights and source, and requires matching outputs.
func checkAgainstBase(t *testing.T, p MergConvParam, opts ...Option) *MergedConvolution {
	t.Helper()
	rng := rand.New(rand.NewPCG(uint64(p.Last().DstC), 7))
	lp := randomLayer(rng, p)
	src := randomTensor(rng, p.First().SrcT, p.Batch*p.SrcSize())

	tiled := build(t, p, lp, opts...)
	ref := build(t, p, lp, WithBase())
	require.NotEqual(t, TopologyBase, tiled.Topology(), "chain %s should tile", p)
	requireClose(t, run(t, ref, src), run(t, tiled, src), tiled.Info())
	return tiled
}

func TestTopologyEquivalence(t *testing.T) {
	shapes := map[string]func(dstC int) MergConvParam{
		"Cdc": func(dstC int) MergConvParam { return cdc(7, 9, 5, 40, dstC, 3, 1) },
		"Cd":  func(dstC int) MergConvParam { return cd(7, 9, 6, dstC, 3, 1) },
		"Dc":  func(dstC int) MergConvParam { return dc(7, 9, 40, dstC, 3, 1) },
	}
	for name, shape := range shapes {
		for _, be := range allBackends {
			for _, dstC := range []int{1, 15, 16, 17, 32, 33} {
				for cname, caches := range map[string]hwy.CacheSizes{"tiny": tinyCaches, "big": bigCaches} {
					t.Run(fmt.Sprintf("%s/%s/dstC=%d/%s", name, be, dstC, cname), func(t *testing.T) {
						checkAgainstBase(t, shape(dstC), WithBackend(be), WithCacheSizes(caches))
					})
				}
			}
		}
	}
}

func TestTopologyEquivalenceShapes(t *testing.T) {
	cases := []struct {
		name string
		p    MergConvParam
	}{
		{"cdc-5x5", cdc(10, 8, 8, 24, 8, 5, 1)},
		{"cdc-stride2", cdc(11, 12, 6, 33, 10, 3, 2)},
		{"cdc-5x5-stride2", cdc(9, 9, 4, 20, 4, 5, 2)},
		{"cdc-1x1-dw", cdc(5, 6, 8, 16, 8, 1, 1)},
		{"cdc-7x7", cdc(9, 10, 3, 16, 5, 7, 1)},
		{"cd-stride2", cd(9, 10, 7, 19, 3, 2)},
		{"cd-5x5", cd(8, 8, 16, 32, 5, 1)},
		{"dc-stride2", dc(10, 11, 21, 9, 3, 2)},
		{"dc-5x5", dc(8, 7, 16, 16, 5, 1)},
		{"single-column", cdc(9, 1, 4, 12, 4, 3, 1)},
		{"single-row", cdc(1, 13, 4, 12, 4, 3, 1)},
	}
	for _, tc := range cases {
		for _, be := range allBackends {
			t.Run(tc.name+"/"+be.String(), func(t *testing.T) {
				checkAgainstBase(t, tc.p, WithBackend(be), WithCacheSizes(tinyCaches))
			})
		}
	}
}

func TestTopologyEquivalenceDilation(t *testing.T) {
	p := dc(12, 12, 18, 8, 3, 1)
	p.Conv[0].DilationY, p.Conv[0].DilationX = 2, 2
	p.Conv[0].PadY, p.Conv[0].PadX, p.Conv[0].PadH, p.Conv[0].PadW = 2, 2, 2, 2
	for _, be := range allBackends {
		t.Run(be.String(), func(t *testing.T) {
			checkAgainstBase(t, p, WithBackend(be), WithCacheSizes(tinyCaches))
		})
	}
}

func TestTopologyEquivalenceTypes(t *testing.T) {
	types := []TensorType{Float32, BFloat16}
	shapes := map[string]MergConvParam{
		"Cdc":         cdc(6, 7, 6, 24, 17, 3, 1),
		"Cdc-oddSrcC": cdc(6, 7, 5, 24, 17, 3, 1),
		"Cd":          cd(6, 7, 6, 17, 3, 1),
		"Dc":          dc(6, 7, 24, 17, 3, 1),
	}
	for name, shape := range shapes {
		for _, srcT := range types {
			for _, dstT := range types {
				for _, be := range []Backend{BackendScalar, BackendLanes8, BackendTile} {
					p := withTypes(shape, srcT, dstT)
					t.Run(fmt.Sprintf("%s/%s-%s/%s", name, srcT, dstT, be), func(t *testing.T) {
						mc := checkAgainstBase(t, p, WithBackend(be), WithCacheSizes(tinyCaches))
						alg := mc.Alg()
						if mc.Topology() != TopologyCd {
							assert.Equal(t, dstT == BFloat16 && alg.MaC < 24, alg.Accumulate)
						}
					})
				}
			}
		}
	}
}

func TestTopologyEquivalenceBatch(t *testing.T) {
	p := cdc(5, 6, 8, 24, 9, 3, 1)
	p.Batch = 3
	for _, be := range allBackends {
		t.Run(be.String(), func(t *testing.T) {
			checkAgainstBase(t, p, WithBackend(be), WithCacheSizes(tinyCaches))
		})
	}
}

func TestActivations(t *testing.T) {
	for _, kind := range []activation.Kind{
		activation.Identity, activation.Relu, activation.LeakyRelu, activation.RestrictRange,
		activation.Prelu, activation.Elu, activation.Hswish, activation.Mish,
		activation.HardSigmoid, activation.Swish, activation.Gelu,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			p := cdc(5, 6, 6, 20, 11, 3, 1)
			for i := range p.Conv {
				p.Conv[i].Activation = kind
			}
			checkAgainstBase(t, p, WithBackend(BackendLanes4), WithCacheSizes(tinyCaches))
		})
	}
}

// TestAccumulationAcrossTiles finalizes the same layer with 1, 2 and many
// channel tiles: the sums differ only by reduction order.
func TestAccumulationAcrossTiles(t *testing.T) {
	for _, dstT := range []TensorType{Float32, BFloat16} {
		p := withTypes(cdc(6, 6, 8, 64, 24, 3, 1), Float32, dstT)
		rng := rand.New(rand.NewPCG(1, 2))
		lp := randomLayer(rng, p)
		src := randomTensor(rng, Float32, p.SrcSize())

		caches := []hwy.CacheSizes{
			bigCaches,
			{L1: 1 << 10, L2: 64 << 10, L3: 8 << 10},
			{L1: 1 << 10, L2: 64 << 10, L3: 1 << 10},
		}
		var outs [][]float32
		var tiles []int
		for _, c := range caches {
			mc := build(t, p, lp, WithBackend(BackendLanes4), WithCacheSizes(c))
			tiles = append(tiles, DivHi(64, mc.Alg().MaC))
			outs = append(outs, run(t, mc, src))
		}
		require.Equal(t, 1, tiles[0])
		require.Equal(t, 2, tiles[1], "caches %s", caches[1])
		require.Greater(t, tiles[2], 2, "caches %s", caches[2])
		requireClose(t, outs[0], outs[1], "2 tiles")
		requireClose(t, outs[0], outs[2], "many tiles")
	}
}

// TestSmallChannelTileCounts gives the last mid channels output weights a
// thousand times smaller than the rest. Their share of each fp32 output is
// tiny but must survive accumulation across channel tiles, and losing it
// must not pass requireClose.
func TestSmallChannelTileCounts(t *testing.T) {
	p := cdc(6, 6, 8, 64, 24, 3, 1)
	rng := rand.New(rand.NewPCG(11, 12))
	lp := randomLayer(rng, p)
	out := lp.weights[2]
	for ic := 48; ic < 64; ic++ {
		for co := range 24 {
			out[ic*24+co] *= 1e-3
		}
	}
	src := randomTensor(rng, Float32, p.SrcSize())

	caches := hwy.CacheSizes{L1: 1 << 10, L2: 64 << 10, L3: 1 << 10}
	mc := build(t, p, lp, WithBackend(BackendLanes8), WithCacheSizes(caches))
	require.Greater(t, DivHi(64, mc.Alg().MaC), 2)
	got := run(t, mc, src)
	want := run(t, build(t, p, lp, WithBase()), src)
	requireClose(t, want, got, mc.Info())

	dropped := lp
	dropped.weights = [][]float32{lp.weights[0], lp.weights[1], append([]float32(nil), out...)}
	clear(dropped.weights[2][48*24:])
	without := run(t, build(t, p, dropped, WithBase()), src)
	require.False(t, cmp.Equal(want, without, approx), "dropping the small tile went unnoticed")
}

// TestBorderPadding compares a padded depthwise stage on a source bounded
// exactly to the image with the same stage on an explicitly zero padded
// source.
func TestBorderPadding(t *testing.T) {
	const h, w, c, pad = 6, 5, 20, 2
	dw := Depthwise(h+2*pad, w+2*pad, c, 5, 1, 0, activation.Relu)
	padded := MergConvParam{
		Batch: 1,
		Conv:  []ConvParam{dw, Pointwise(dw.DstH, dw.DstW, c, 8, activation.LeakyRelu)},
	}
	bordered := dc(h, w, c, 8, 5, 1)
	require.Equal(t, padded.Conv[0].DstH, bordered.Conv[0].DstH)
	require.Equal(t, padded.Conv[0].DstW, bordered.Conv[0].DstW)
	require.Equal(t, pad, bordered.Conv[0].PadY)

	rng := rand.New(rand.NewPCG(5, 6))
	lp := randomLayer(rng, bordered)
	img := randomTensor(rng, Float32, bordered.SrcSize()).Float32s()
	img = img[:len(img):len(img)]
	big := make([]float32, padded.SrcSize())
	for y := range h {
		copy(big[((y+pad)*(w+2*pad)+pad)*c:], img[y*w*c:(y+1)*w*c])
	}

	for _, be := range allBackends {
		t.Run(be.String(), func(t *testing.T) {
			want := run(t, build(t, padded, lp, WithBackend(be)), Float32Tensor(big))
			got := run(t, build(t, bordered, lp, WithBackend(be), WithCacheSizes(tinyCaches)), Float32Tensor(img))
			requireClose(t, want, got, be.String())
		})
	}
}

func TestResidualAdd(t *testing.T) {
	shapes := map[string]MergConvParam{
		"Cdc": cdc(6, 7, 16, 48, 16, 3, 1),
		"Cd":  cd(6, 7, 24, 24, 3, 1),
		"Dc":  dc(6, 7, 24, 24, 3, 1),
	}
	for name, p := range shapes {
		for _, be := range allBackends {
			t.Run(name+"/"+be.String(), func(t *testing.T) {
				rng := rand.New(rand.NewPCG(9, 9))
				lp := randomLayer(rng, p)
				src := randomTensor(rng, Float32, p.SrcSize())
				plain := run(t, build(t, p, lp, WithBackend(be), WithCacheSizes(tinyCaches)), src)

				pa := p
				pa.Add = true
				added := build(t, pa, lp, WithBackend(be), WithCacheSizes(tinyCaches))
				got := run(t, added, src)
				want := make([]float32, len(plain))
				for i := range want {
					want[i] = plain[i] + src.Float32s()[i]
				}
				requireClose(t, want, got, added.Info())
				requireClose(t, run(t, build(t, pa, lp, WithBase()), src), got, "reference")
			})
		}
	}
}

// TestIdentityDepthwise convolves with a kernel whose only non-zero tap is
// the center one, followed by an identity projection: the output is the
// input.
func TestIdentityDepthwise(t *testing.T) {
	const h, w, c = 8, 8, 64
	p := MergConvParam{
		Batch: 1,
		Conv: []ConvParam{
			Depthwise(h, w, c, 3, 1, 1, activation.Identity),
			Pointwise(h, w, c, c, activation.Identity),
		},
	}
	dw := make([]float32, 9*c)
	for i := range c {
		dw[4*c+i] = 1
	}
	eye := make([]float32, c*c)
	for i := range c {
		eye[i*c+i] = 1
	}
	rng := rand.New(rand.NewPCG(3, 3))
	src := make([]float32, p.SrcSize())
	for i := range src {
		src[i] = hwy.RoundBFloat16(rng.Float32()*4 - 2)
	}
	for _, be := range allBackends {
		for _, caches := range []hwy.CacheSizes{bigCaches, tinyCaches} {
			mc, err := New(p, WithBackend(be), WithCacheSizes(caches))
			require.NoError(t, err)
			require.Equal(t, TopologyDc, mc.Topology())
			require.NoError(t, mc.SetParams([][]float32{dw, eye}, nil, nil))
			dst := make([]float32, p.DstSize())
			require.NoError(t, mc.Forward(Float32Tensor(src), Float32Tensor(dst), nil))
			require.Equal(t, src, dst, mc.Info())
		}
	}
}

// TestInputSelection feeds a 3-channel image through a 1×1 selection into
// 4 channels with bias [1 0 0 0] and an identity 1×1 depthwise stage.
func TestInputSelection(t *testing.T) {
	const h, w = 4, 5
	p := MergConvParam{
		Batch: 1,
		Conv: []ConvParam{
			Pointwise(h, w, 3, 4, activation.Identity),
			Depthwise(h, w, 4, 1, 1, 0, activation.Identity),
		},
	}
	sel := make([]float32, 3*4)
	for i := range 3 {
		sel[i*4+i] = 1
	}
	ones := []float32{1, 1, 1, 1}
	src := make([]float32, p.SrcSize())
	for i := range src {
		src[i] = float32(i%7) - 3
	}
	for _, be := range allBackends {
		t.Run(be.String(), func(t *testing.T) {
			mc, err := New(p, WithBackend(be))
			require.NoError(t, err)
			require.Equal(t, TopologyCd, mc.Topology())
			require.NoError(t, mc.SetParams([][]float32{sel, ones}, [][]float32{{1, 0, 0, 0}, nil}, nil))
			dst := make([]float32, p.DstSize())
			require.NoError(t, mc.Forward(Float32Tensor(src), Float32Tensor(dst), nil))
			for px := range h * w {
				s, d := src[px*3:px*3+3], dst[px*4:px*4+4]
				assert.Equal(t, []float32{s[0] + 1, s[1], s[2], 0}, d, "pixel %d", px)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	good := cdc(4, 4, 4, 8, 4, 3, 1)
	cases := []struct {
		name string
		edit func(p *MergConvParam)
		kind errors.Kind
	}{
		{"batch", func(p *MergConvParam) { p.Batch = 0 }, errors.Invalid},
		{"one stage", func(p *MergConvParam) { p.Conv = p.Conv[:1] }, errors.Invalid},
		{"chain channels", func(p *MergConvParam) { p.Conv[2].SrcC = 9 }, errors.Invalid},
		{"chain extent", func(p *MergConvParam) { p.Conv[2].SrcH, p.Conv[2].DstH = 5, 5 }, errors.Invalid},
		{"kernel geometry", func(p *MergConvParam) { p.Conv[1].DstW = 3 }, errors.Invalid},
		{"depthwise group", func(p *MergConvParam) { p.Conv[1].DstC = 16; p.Conv[2].SrcC = 16 }, errors.Invalid},
		{"add shape", func(p *MergConvParam) { p.Add = true; p.Conv[2].DstC = 5 }, errors.Invalid},
		{"source type", func(p *MergConvParam) { p.Conv[0].SrcT = Unknown }, errors.NotSupported},
		{"destination type", func(p *MergConvParam) { p.Conv[2].DstT = Unknown }, errors.NotSupported},
		{"interior type", func(p *MergConvParam) { p.Conv[0].DstT = BFloat16 }, errors.NotSupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := good
			p.Conv = append([]ConvParam(nil), good.Conv...)
			tc.edit(&p)
			mc, err := New(p)
			require.Error(t, err)
			assert.Nil(t, mc)
			assert.True(t, errors.Is(tc.kind, err), "got %v", err)
		})
	}
	_, err := New(good, WithCacheSizes(hwy.CacheSizes{}))
	assert.True(t, errors.Is(errors.Invalid, err))
	_, err = New(good, WithBackend(Backend(42)))
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestSetParamsErrors(t *testing.T) {
	p := cdc(4, 4, 4, 8, 4, 3, 1)
	p.Conv[0].Activation = activation.Prelu
	lp := randomLayer(rand.New(rand.NewPCG(1, 1)), p)
	mc, err := New(p)
	require.NoError(t, err)

	assert.True(t, errors.Is(errors.Invalid, mc.SetParams(lp.weights[:2], lp.biases, lp.params)))
	short := append([][]float32(nil), lp.weights...)
	short[1] = short[1][:5]
	assert.True(t, errors.Is(errors.Invalid, mc.SetParams(short, lp.biases, lp.params)))
	assert.True(t, errors.Is(errors.Invalid, mc.SetParams(lp.weights, [][]float32{{1}}, lp.params)))
	assert.True(t, errors.Is(errors.Invalid, mc.SetParams(lp.weights, lp.biases, [][]float32{{0.1}})))

	src, dst := Float32Tensor(make([]float32, p.SrcSize())), Float32Tensor(make([]float32, p.DstSize()))
	assert.True(t, errors.Is(errors.Precondition, mc.Forward(src, dst, nil)))
	require.NoError(t, mc.SetParams(lp.weights, lp.biases, lp.params))
	require.NoError(t, mc.Forward(src, dst, nil))
}

func TestForwardErrors(t *testing.T) {
	p := cdc(4, 4, 4, 8, 4, 3, 1)
	mc := build(t, p, randomLayer(rand.New(rand.NewPCG(1, 1)), p))
	src, dst := Float32Tensor(make([]float32, p.SrcSize())), Float32Tensor(make([]float32, p.DstSize()))

	assert.True(t, errors.Is(errors.Invalid, mc.Forward(src, BFloat16Tensor(make([]hwy.BFloat16, p.DstSize())), nil)))
	assert.True(t, errors.Is(errors.Invalid, mc.Forward(Float32Tensor(make([]float32, 3)), dst, nil)))
	assert.True(t, errors.Is(errors.Invalid, mc.Forward(src, Float32Tensor(make([]float32, 3)), nil)))
	assert.True(t, errors.Is(errors.Invalid, mc.Forward(src, dst, make([]byte, mc.ExternalBufferSize()-1))))
	require.NoError(t, mc.Forward(src, dst, make([]byte, mc.ExternalBufferSize())))
}

func TestBufferSizes(t *testing.T) {
	p := withTypes(cdc(8, 8, 8, 64, 24, 3, 1), Float32, BFloat16)
	lp := randomLayer(rand.New(rand.NewPCG(2, 2)), p)
	mc := build(t, p, lp, WithBackend(BackendLanes8), WithCacheSizes(tinyCaches))
	require.True(t, mc.Alg().Accumulate)

	before := mc.InternalBufferSize()
	assert.Positive(t, before)
	dst := BFloat16Tensor(make([]hwy.BFloat16, p.DstSize()))
	require.NoError(t, mc.Forward(Float32Tensor(make([]float32, p.SrcSize())), dst, nil))
	assert.GreaterOrEqual(t, mc.InternalBufferSize(), before+mc.ExternalBufferSize())

	base := build(t, p, lp, WithBase())
	assert.Equal(t, "synet::Base", base.Info())
	assert.GreaterOrEqual(t, base.ExternalBufferSize(), (p.SrcSize()+64*64+64*64+24*64)*4)
}

func TestInfo(t *testing.T) {
	p := cdc(8, 8, 8, 64, 24, 3, 1)
	mc, err := New(p, WithBackend(BackendLanes8), WithCacheSizes(bigCaches))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("synet::Cdc-lanes8 maC=64 yStep=%v", mc.Alg().YStep), mc.Info())
	assert.Equal(t, BackendLanes8, mc.Backend())

	mc, err = New(p, WithCapabilities(hwy.Capabilities{Level: hwy.DispatchAVX512, Width: 64}))
	require.NoError(t, err)
	assert.Equal(t, BackendLanes16, mc.Backend())
}

// TestNativeBF16Capability runs the same lane tier on a CPU with and
// without bf16 dot products. Without them the fp32 source stays fp32 in the
// arena and is rounded row by row on load, which costs scratch but not
// accuracy.
func TestNativeBF16Capability(t *testing.T) {
	p := cdc(9, 7, 5, 32, 12, 3, 1)
	rng := rand.New(rand.NewPCG(5, 6))
	lp := randomLayer(rng, p)
	src := randomTensor(rng, Float32, p.SrcSize())

	caps := hwy.Capabilities{Level: hwy.DispatchAVX2, Width: 32}
	plain := build(t, p, lp, WithCapabilities(caps), WithCacheSizes(bigCaches))
	caps.NativeBF16 = true
	native := build(t, p, lp, WithCapabilities(caps), WithCacheSizes(bigCaches))

	require.Equal(t, BackendLanes8, plain.Backend())
	require.Equal(t, BackendLanes8, native.Backend())
	assert.Equal(t, convertPadFloat32, plain.conv.mode)
	assert.Equal(t, convertFloat32, native.conv.mode)
	assert.Greater(t, plain.ExternalBufferSize(), native.ExternalBufferSize())
	assert.Equal(t, run(t, native, src), run(t, plain, src))
	requireClose(t, run(t, build(t, p, lp, WithBase()), src), run(t, plain, src), plain.Info())
}

func BenchmarkForward(b *testing.B) {
	p := cdc(28, 28, 24, 144, 24, 3, 1)
	rng := rand.New(rand.NewPCG(1, 1))
	lp := randomLayer(rng, p)
	src := randomTensor(rng, Float32, p.SrcSize())
	dst := newTensor(Float32, p.DstSize())
	for _, be := range allBackends {
		b.Run(be.String(), func(b *testing.B) {
			mc := build(b, p, lp, WithBackend(be))
			scratch := make([]byte, mc.ExternalBufferSize())
			b.ResetTimer()
			for b.Loop() {
				if err := mc.Forward(src, dst, scratch); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
	b.Run("base", func(b *testing.B) {
		mc := build(b, p, lp, WithBase())
		for b.Loop() {
			if err := mc.Forward(src, dst, nil); err != nil {
				b.Fatal(err)
			}
		}
	})
}

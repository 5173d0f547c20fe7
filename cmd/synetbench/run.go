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

package main

import (
	"context"
	"fmt"
	"io"
	stdmath "math"
	"math/rand/v2"
	"time"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/ajroetker/go-synet/hwy/contrib/synet"
	"github.com/ajroetker/go-synet/hwy/contrib/workerpool"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// layer is a merged convolution with random weights and a random source.
type layer struct {
	mc                      *synet.MergedConvolution
	weights, biases, params [][]float32
	src                     synet.Tensor
}

// defaultParams returns the raw parameters the CLI uses for kind.
func defaultParams(kind activation.Kind, channels int) []float32 {
	switch kind {
	case activation.LeakyRelu:
		return []float32{0.1}
	case activation.RestrictRange:
		return []float32{0, 6}
	case activation.Prelu:
		s := make([]float32, channels)
		for i := range s {
			s[i] = 0.25
		}
		return s
	case activation.Elu, activation.Swish:
		return []float32{1}
	case activation.Hswish:
		return []float32{3, 1.0 / 6}
	case activation.Mish:
		return []float32{20}
	case activation.HardSigmoid:
		return []float32{1.0 / 6, 0.5}
	default:
		return nil
	}
}

// newLayer builds the convolution cfg describes with extra options and
// loads seeded random weights.
func newLayer(cfg config, extra ...synet.Option) (*layer, error) {
	p, err := cfg.param()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	mc, err := synet.New(p, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed))
	l := &layer{mc: mc}
	for _, c := range p.Conv {
		w := make([]float32, c.WeightSize())
		scale := float32(1 / stdmath.Sqrt(float64(c.KernelY*c.KernelX*c.SrcC/c.Group)))
		for i := range w {
			w[i] = (rng.Float32()*2 - 1) * scale
		}
		b := make([]float32, c.DstC)
		for i := range b {
			b[i] = (rng.Float32()*2 - 1) * 0.1
		}
		l.weights = append(l.weights, w)
		l.biases = append(l.biases, b)
		l.params = append(l.params, defaultParams(c.Activation, c.DstC))
	}
	if err := mc.SetParams(l.weights, l.biases, l.params); err != nil {
		return nil, err
	}
	src := make([]float32, p.Batch*p.SrcSize())
	for i := range src {
		src[i] = rng.Float32()*2 - 1
	}
	l.src = tensorOf(p.First().SrcT, src)
	return l, nil
}

func tensorOf(typ synet.TensorType, f []float32) synet.Tensor {
	if typ == synet.BFloat16 {
		b := make([]hwy.BFloat16, len(f))
		hwy.Float32ToBFloat16Slice(b, f)
		return synet.BFloat16Tensor(b)
	}
	return synet.Float32Tensor(f)
}

func (l *layer) newDst() synet.Tensor {
	p := l.mc.Param()
	n := p.Batch * p.DstSize()
	if p.Last().DstT == synet.BFloat16 {
		return synet.BFloat16Tensor(make([]hwy.BFloat16, n))
	}
	return synet.Float32Tensor(make([]float32, n))
}

func (l *layer) forward() (synet.Tensor, error) {
	dst := l.newDst()
	if err := l.mc.Forward(l.src, dst, make([]byte, l.mc.ExternalBufferSize())); err != nil {
		return synet.Tensor{}, err
	}
	return dst, nil
}

// flops counts multiply-adds twice over the whole batch.
func flops(p synet.MergConvParam) float64 {
	var n float64
	for _, c := range p.Conv {
		n += 2 * float64(c.DstSize()) * float64(c.KernelY*c.KernelX*c.SrcC/c.Group)
	}
	return n * float64(p.Batch)
}

func runOnce(w io.Writer, cfg config) error {
	l, err := newLayer(cfg)
	if err != nil {
		return err
	}
	dst, err := l.forward()
	if err != nil {
		return err
	}
	out := dst.AsFloat32()
	var sum float64
	for _, v := range out {
		sum += float64(v)
	}
	fmt.Fprintf(w, "%s\n", l.mc.Param())
	fmt.Fprintf(w, "%s\n", l.mc.Info())
	fmt.Fprintf(w, "alg: %s\n", l.mc.Alg())
	fmt.Fprintf(w, "external %d bytes, internal %d bytes\n", l.mc.ExternalBufferSize(), l.mc.InternalBufferSize())
	fmt.Fprintf(w, "checksum %.6g over %d values\n", sum, len(out))
	return nil
}

// diff returns the largest absolute difference and the number of values
// outside tol, where tol is both absolute and relative.
func diff(got, want []float32, tol float64) (maxAbs float64, bad int) {
	for i := range want {
		d := stdmath.Abs(float64(got[i]) - float64(want[i]))
		maxAbs = max(maxAbs, d)
		if d > tol && d > tol*stdmath.Abs(float64(want[i])) {
			bad++
		}
	}
	return maxAbs, bad
}

func verify(w io.Writer, cfg config) error {
	tiled, err := newLayer(cfg)
	if err != nil {
		return err
	}
	ref, err := newLayer(cfg, synet.WithBase())
	if err != nil {
		return err
	}
	got, err := tiled.forward()
	if err != nil {
		return err
	}
	want, err := ref.forward()
	if err != nil {
		return err
	}
	maxAbs, bad := diff(got.AsFloat32(), want.AsFloat32(), cfg.tolerance)
	fmt.Fprintf(w, "%s vs %s: max abs diff %.3g, %d of %d values outside %g\n",
		tiled.mc.Info(), ref.mc.Info(), maxAbs, bad, want.Len(), cfg.tolerance)
	if bad > 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s disagrees with the reference in %d values", tiled.mc.Info(), bad))
	}
	return nil
}

func bench(ctx context.Context, w io.Writer, cfg config) error {
	if cfg.threads < 1 || cfg.iterations < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("bench needs positive --threads and --iterations, got %d and %d", cfg.threads, cfg.iterations))
	}
	l, err := newLayer(cfg)
	if err != nil {
		return err
	}
	var pool *workerpool.Pool
	if cfg.workers > 0 {
		pool = workerpool.New(cfg.workers)
		defer pool.Close()
	}
	log.Printf("bench %s: %d threads x %d iterations", l.mc.Info(), cfg.threads, cfg.iterations)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for range cfg.threads {
		g.Go(func() error {
			dst := l.newDst()
			scratch := make([]byte, l.mc.ExternalBufferSize())
			arenas := synet.NewArenas(pool)
			for range cfg.iterations {
				if err := ctx.Err(); err != nil {
					return err
				}
				var err error
				if pool != nil {
					err = synet.ParallelForward(pool, l.mc, l.src, dst, arenas)
				} else {
					err = l.mc.Forward(l.src, dst, scratch)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	calls := cfg.threads * cfg.iterations
	per := elapsed / time.Duration(calls)
	gflops := flops(l.mc.Param()) * float64(calls) / elapsed.Seconds() / 1e9
	fmt.Fprintf(w, "%s: %v per Forward, %.2f GFLOP/s\n", l.mc.Info(), per, gflops)
	return nil
}

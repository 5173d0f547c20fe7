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
	"fmt"
	"slices"
	"strings"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/ajroetker/go-synet/hwy/contrib/synet"
	"github.com/grailbio/base/errors"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

// config holds the command-line description of one merged convolution and
// how to drive it.
type config struct {
	chain            string
	height, width    int
	srcC, midC, dstC int
	kernel, stride   int
	dilation         int
	batch            int
	add              bool
	acts             []string
	srcType, dstType string
	backend          string
	base             bool
	l1, l2, l3       int
	seed             uint64
	iterations       int
	threads          int
	workers          int
	tolerance        float64
}

func (c *config) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.chain, "chain", "cdc", "Chain shape: cdc, cd or dc")
	fs.IntVar(&c.height, "height", 56, "Source height")
	fs.IntVar(&c.width, "width", 56, "Source width")
	fs.IntVar(&c.srcC, "src-c", 24, "Source channels")
	fs.IntVar(&c.midC, "mid-c", 144, "Depthwise channels of a cdc chain")
	fs.IntVar(&c.dstC, "dst-c", 24, "Destination channels (output of the last 1×1, or of the depthwise stage for cd)")
	fs.IntVar(&c.kernel, "kernel", 3, "Depthwise kernel size")
	fs.IntVar(&c.stride, "stride", 1, "Depthwise stride")
	fs.IntVar(&c.dilation, "dilation", 1, "Depthwise dilation")
	fs.IntVar(&c.batch, "batch", 1, "Batch size")
	fs.BoolVar(&c.add, "add", false, "Add the source to the destination (shapes must match)")
	fs.StringSliceVar(&c.acts, "acts", nil, "Per-stage activations ("+strings.Join(activation.Names(), ", ")+"); default relu, restrictrange, identity")
	fs.StringVar(&c.srcType, "src-type", "f32", "Source element type: f32 or bf16")
	fs.StringVar(&c.dstType, "dst-type", "f32", "Destination element type: f32 or bf16")
	fs.StringVar(&c.backend, "backend", "auto", "Capability tier: auto or one of "+strings.Join(synet.BackendNames(), ", "))
	fs.BoolVar(&c.base, "base", false, "Force the untiled reference pipeline")
	fs.IntVar(&c.l1, "l1", 0, "L1 cache size in bytes to plan against (0: detected)")
	fs.IntVar(&c.l2, "l2", 0, "L2 cache size in bytes to plan against (0: detected)")
	fs.IntVar(&c.l3, "l3", 0, "L3 cache size in bytes to plan against (0: detected)")
	fs.Uint64Var(&c.seed, "seed", 1, "Seed of the random weights and source")
	fs.IntVar(&c.iterations, "iterations", 100, "Forward calls per thread in bench")
	fs.IntVar(&c.threads, "threads", 1, "Goroutines calling Forward concurrently in bench")
	fs.IntVar(&c.workers, "workers", 0, "Split the batch across a worker pool of this size in bench (0: off)")
	fs.Float64Var(&c.tolerance, "tolerance", 0.02, "Absolute and relative tolerance of verify")
}

var tensorTypes = map[string]synet.TensorType{
	"f32":  synet.Float32,
	"bf16": synet.BFloat16,
}

func parseTensorType(name string) (synet.TensorType, error) {
	if t, ok := tensorTypes[strings.ToLower(name)]; ok {
		return t, nil
	}
	return synet.Unknown, errors.E(errors.Invalid, fmt.Sprintf("unknown tensor type %q (want f32 or bf16)", name))
}

var defaultActs = map[string][]activation.Kind{
	"cdc": {activation.Relu, activation.RestrictRange, activation.Identity},
	"cd":  {activation.Relu, activation.RestrictRange},
	"dc":  {activation.RestrictRange, activation.Identity},
}

func (c *config) activations() ([]activation.Kind, error) {
	def, ok := defaultActs[c.chain]
	if !ok {
		names := lo.Keys(defaultActs)
		slices.Sort(names)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown chain %q (want one of %s)", c.chain, strings.Join(names, ", ")))
	}
	if len(c.acts) == 0 {
		return def, nil
	}
	if len(c.acts) != len(def) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("chain %s has %d stages, got %d activations", c.chain, len(def), len(c.acts)))
	}
	kinds := make([]activation.Kind, len(c.acts))
	for i, name := range c.acts {
		k, err := activation.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("stage %d", i))
		}
		kinds[i] = k
	}
	return kinds, nil
}

// param builds the descriptor chain the flags describe.
func (c *config) param() (synet.MergConvParam, error) {
	acts, err := c.activations()
	if err != nil {
		return synet.MergConvParam{}, err
	}
	srcT, err := parseTensorType(c.srcType)
	if err != nil {
		return synet.MergConvParam{}, errors.E(err, "--src-type")
	}
	dstT, err := parseTensorType(c.dstType)
	if err != nil {
		return synet.MergConvParam{}, errors.E(err, "--dst-type")
	}

	depthwise := func(channels int, act activation.Kind) synet.ConvParam {
		d := max(c.dilation, 1)
		p := synet.Depthwise(c.height, c.width, channels, c.kernel, c.stride, d*(c.kernel/2), act)
		p.DilationY, p.DilationX = d, d
		p.DstH, p.DstW = p.OutputSize()
		return p
	}
	var conv []synet.ConvParam
	switch c.chain {
	case "cdc":
		dw := depthwise(c.midC, acts[1])
		conv = []synet.ConvParam{
			synet.Pointwise(c.height, c.width, c.srcC, c.midC, acts[0]),
			dw,
			synet.Pointwise(dw.DstH, dw.DstW, c.midC, c.dstC, acts[2]),
		}
	case "cd":
		conv = []synet.ConvParam{
			synet.Pointwise(c.height, c.width, c.srcC, c.dstC, acts[0]),
			depthwise(c.dstC, acts[1]),
		}
	case "dc":
		dw := depthwise(c.srcC, acts[0])
		conv = []synet.ConvParam{
			dw,
			synet.Pointwise(dw.DstH, dw.DstW, c.srcC, c.dstC, acts[1]),
		}
	}
	conv[0].SrcT = srcT
	conv[len(conv)-1].DstT = dstT
	p := synet.MergConvParam{Batch: c.batch, Conv: conv, Add: c.add}
	if err := p.Valid(); err != nil {
		return synet.MergConvParam{}, err
	}
	return p, nil
}

// options turns the backend and cache flags into New options. Cache
// overrides apply only when all three sizes are given.
func (c *config) options() ([]synet.Option, error) {
	be, err := synet.ParseBackend(c.backend)
	if err != nil {
		return nil, err
	}
	opts := []synet.Option{synet.WithBackend(be)}
	cache := hwy.CacheSizes{L1: c.l1, L2: c.l2, L3: c.l3}
	switch {
	case cache.Valid():
		opts = append(opts, synet.WithCacheSizes(cache))
	case c.l1 != 0 || c.l2 != 0 || c.l3 != 0:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("cache override %s needs all of --l1, --l2 and --l3", cache))
	}
	if c.base {
		opts = append(opts, synet.WithBase())
	}
	return opts, nil
}

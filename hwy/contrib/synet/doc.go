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

// Package synet implements merged convolution: a 1×1 input convolution, a
// depthwise convolution and a 1×1 output convolution fused into one pass
// over bfloat16 data, so the intermediate activations stay resident in
// cache instead of being materialized in memory.
//
// # Topologies
//
// New inspects the descriptor chain and picks one of four pipelines:
//   - Cdc - input 1×1 + depthwise + output 1×1
//   - Cd - input 1×1 + depthwise
//   - Dc - depthwise + output 1×1
//   - Base - untiled reference for every other valid chain
//
// The tiled pipelines split the work by channel tile (MaC channels at a
// time, sized from the L3 budget) and by row tile (sized from the L2
// budget), threading rows through power-of-two ring buffers carved from a
// single scratch arena. When the output convolution spans several channel
// tiles it accumulates raw fp32 partial sums and applies its activation and
// the optional residual add only on the last tile.
//
// # Backends
//
// Each capability tier (scalar, 4/8/16 lanes, matrix tile) provides the
// same three stage-kernel builders. The tier is picked from
// hwy.Capabilities unless forced with WithBackend, and the kernels for the
// layer's activation and micro-kernel shapes are resolved once by SetParams.
// On a CPU without native bf16 (Capabilities.NativeBF16) the lane tiers
// keep an fp32 source in fp32 rows and round each row as they load it.
//
// # Usage
//
//	mc, err := synet.New(synet.MergConvParam{
//	    Batch: 1,
//	    Conv: []synet.ConvParam{
//	        synet.Pointwise(56, 56, 24, 144, activation.Relu),
//	        synet.Depthwise(56, 56, 144, 3, 1, 1, activation.RestrictRange),
//	        synet.Pointwise(56, 56, 144, 24, activation.Identity),
//	    },
//	    Add: true,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := mc.SetParams(weights, biases, params); err != nil {
//	    return err
//	}
//	err = mc.Forward(synet.Float32Tensor(src), synet.Float32Tensor(dst), nil)
//
// Forward is single-threaded. Concurrent calls on one instance are safe when
// each supplies its own scratch arena of ExternalBufferSize bytes;
// ParallelForward does that across the batch with a workerpool.Pool.
package synet

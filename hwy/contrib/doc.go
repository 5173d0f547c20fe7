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

// Package contrib holds the domain packages built on hwy.
//
// # Subpackages
//
// The contrib package is organized into subdirectories:
//
//   - activation: element-wise activations fused into convolution epilogues
//   - math: vectorized exp, expm1, log, log1p, sigmoid, tanh and erf
//   - synet: merged bf16 convolution (input 1×1, depthwise, output 1×1)
//   - workerpool: persistent worker pool with per-worker identity
//
// # Merged Convolution (hwy/contrib/synet)
//
//	import "github.com/ajroetker/go-synet/hwy/contrib/synet"
//
//	mc, err := synet.New(param, synet.WithBackend(synet.BackendLanes8))
//	err = mc.SetParams(weights, biases, params)
//	err = mc.Forward(synet.Float32Tensor(src), synet.Float32Tensor(dst), nil)
//
// # Worker Pool (hwy/contrib/workerpool)
//
//	pool := workerpool.New(0) // GOMAXPROCS workers
//	defer pool.Close()
//	arenas := synet.NewArenas(pool) // reused across calls
//	err = synet.ParallelForward(pool, mc, src, dst, arenas)
//
// See subpackage documentation for detailed API information.
package contrib

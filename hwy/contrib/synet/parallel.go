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
	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/workerpool"
)

// Arenas holds one scratch arena per pool worker, kept across
// ParallelForward calls so repeated calls do not allocate. An Arenas must
// not be used by two calls at once.
type Arenas struct {
	bufs []hwy.Buffer
}

// NewArenas returns arenas for the workers of pool; a nil pool has one.
func NewArenas(pool *workerpool.Pool) *Arenas {
	return &Arenas{bufs: make([]hwy.Buffer, numWorkers(pool))}
}

// Cap returns the scratch bytes held by worker's arena.
func (a *Arenas) Cap(worker int) int { return a.bufs[worker].Cap() }

func (a *Arenas) grow(workers int) {
	if len(a.bufs) < workers {
		a.bufs = append(a.bufs, make([]hwy.Buffer, workers-len(a.bufs))...)
	}
}

func numWorkers(pool *workerpool.Pool) int {
	if pool == nil {
		return 1
	}
	return pool.NumWorkers()
}

// ParallelForward runs mc over the batch of src and dst, splitting batch
// items across pool. Worker i uses arena i of arenas, resized to
// mc.ExternalBufferSize() only when it is too small. A nil pool runs on the
// calling goroutine; nil arenas are allocated for this call only.
func ParallelForward(pool *workerpool.Pool, mc *MergedConvolution, src, dst Tensor, arenas *Arenas) error {
	if err := mc.check(src, dst); err != nil {
		return err
	}
	if arenas == nil {
		arenas = NewArenas(pool)
	}
	arenas.grow(numWorkers(pool))
	size := mc.ExternalBufferSize()
	pool.ParallelFor(mc.param.Batch, func(worker, start, end int) {
		mc.forwardRange(src, dst, arenas.bufs[worker].Resize(size), start, end)
	})
	return nil
}

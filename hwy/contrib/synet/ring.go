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
	"github.com/grailbio/base/must"
)

// element is the set of scalar types stage buffers hold.
type element interface {
	float32 | hwy.BFloat16
}

// rowSource gives access to the rows of an image, whatever backs them.
type rowSource[T element] interface {
	Row(y int) []T
}

// RingBuffer is a circular buffer of image rows whose capacity is a power
// of two, so logical row y lives in slot y & (rows-1).
type RingBuffer[T element] struct {
	data   []T
	mask   int
	stride int
}

// NewRingBuffer lays rows slots of stride elements over data.
func NewRingBuffer[T element](data []T, rows, stride int) RingBuffer[T] {
	must.Truef(rows > 0 && rows&(rows-1) == 0, "synet: ring height %d is not a power of two", rows)
	must.Truef(len(data) >= rows*stride, "synet: ring needs %d elements, have %d", rows*stride, len(data))
	return RingBuffer[T]{data: data[:rows*stride], mask: rows - 1, stride: stride}
}

// Rows returns the capacity in rows.
func (r RingBuffer[T]) Rows() int { return r.mask + 1 }

// Stride returns the number of elements per row.
func (r RingBuffer[T]) Stride() int { return r.stride }

// Row returns the slot holding logical row y.
func (r RingBuffer[T]) Row(y int) []T {
	off := (y & r.mask) * r.stride
	return r.data[off : off+r.stride : off+r.stride]
}

// Write calls fn for rows [yBeg, yEnd) in order, with the slot to fill.
// The range must fit in the ring.
func (r RingBuffer[T]) Write(yBeg, yEnd int, fn func(y int, row []T)) {
	r.check(yBeg, yEnd)
	for y := yBeg; y < yEnd; y++ {
		fn(y, r.Row(y))
	}
}

// Read calls fn for rows [yBeg, yEnd) in order. The range must fit in the
// ring; rows older than the last Rows() written are gone.
func (r RingBuffer[T]) Read(yBeg, yEnd int, fn func(y int, row []T)) {
	r.check(yBeg, yEnd)
	for y := yBeg; y < yEnd; y++ {
		fn(y, r.Row(y))
	}
}

func (r RingBuffer[T]) check(yBeg, yEnd int) {
	if debugChecks {
		must.Truef(yEnd-yBeg <= r.Rows(), "synet: row range [%d, %d) exceeds ring of %d", yBeg, yEnd, r.Rows())
	}
}

// linearRows views a dense image as rows of stride elements.
type linearRows[T element] struct {
	data   []T
	stride int
}

func (l linearRows[T]) Row(y int) []T {
	off := y * l.stride
	return l.data[off : off+l.stride : off+l.stride]
}

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
	"unsafe"

	"github.com/grailbio/base/must"
)

// This file provides the scratch memory used by the kernels: an aligned,
// reusable byte buffer and an arena that carves typed slices out of it.

// Alignment is the byte alignment of every slice handed out by Buffer and
// Arena. It matches the widest register (AVX-512) and a cache line.
const Alignment = 64

// ArenaSlack is the number of extra bytes an arena needs per carved slice
// to guarantee Alignment regardless of where the caller's buffer starts.
const ArenaSlack = Alignment

// Buffer is a reusable scratch area. The zero value is ready to use.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	raw  []byte
	data []byte
}

// Resize returns an aligned slice of exactly size bytes, reallocating only
// when the current capacity is too small. Contents are undefined.
func (b *Buffer) Resize(size int) []byte {
	if size <= 0 {
		return nil
	}
	if cap(b.data) < size {
		b.raw = make([]byte, size+Alignment)
		off := alignOffset(b.raw, 0)
		b.data = b.raw[off : off+size : off+size]
	}
	return b.data[:size]
}

// Cap returns the usable capacity in bytes.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// AlignedBytes allocates size zeroed bytes starting on an Alignment boundary.
func AlignedBytes(size int) []byte {
	var b Buffer
	return b.Resize(size)
}

// Arena hands out consecutive, aligned, typed slices from one byte buffer.
// Slices stay valid as long as the buffer does; nothing is copied.
type Arena struct {
	buf []byte
	off int
}

// NewArena wraps buf.
func NewArena(buf []byte) Arena {
	return Arena{buf: buf}
}

// Used returns the number of bytes consumed so far, alignment included.
func (a *Arena) Used() int {
	return a.off
}

// Bytes carves n bytes.
func (a *Arena) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	start := alignOffset(a.buf, a.off)
	must.Truef(start+n <= len(a.buf), "hwy: arena exhausted: need %d bytes at offset %d, have %d", n, start, len(a.buf))
	a.off = start + n
	return a.buf[start : start+n : start+n]
}

// Float32s carves n float32 values.
func (a *Arena) Float32s(n int) []float32 {
	b := a.Bytes(n * 4)
	if b == nil {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

// BFloat16s carves n bfloat16 values.
func (a *Arena) BFloat16s(n int) []BFloat16 {
	b := a.Bytes(n * 2)
	if b == nil {
		return nil
	}
	return unsafe.Slice((*BFloat16)(unsafe.Pointer(&b[0])), n)
}

// alignOffset returns the first offset >= off whose address in buf is a
// multiple of Alignment.
func alignOffset(buf []byte, off int) int {
	if cap(buf) == 0 {
		return off
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	addr := base + uintptr(off)
	return off + int((Alignment-addr%Alignment)%Alignment)
}

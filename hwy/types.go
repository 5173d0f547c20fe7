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

// Floats is a constraint for floating-point types.
type Floats interface {
	~float32 | ~float64
}

// Lanes is a constraint for all types that can be stored in vector lanes.
// int32 lanes carry exponents and other integer intermediates of the
// float kernels.
type Lanes interface {
	Floats | ~int32
}

// MaxVecLanes is the lane capacity of a Vec: one 512-bit register of
// float32.
const MaxVecLanes = 16

// Vec is a portable vector handle. In this pure Go form it holds its lanes
// inline, so vectors are plain values and composing operations never
// allocates. Only the first NumLanes lanes are live.
//
// Vec instances should not be created directly; use Load, Set, or Zero instead.
type Vec[T Lanes] struct {
	data [MaxVecLanes]T
	n    int
}

// NumLanes returns the number of lanes (elements) in this vector.
func (v Vec[T]) NumLanes() int {
	return v.n
}

// Data returns a copy of the live lanes.
// This is primarily for testing and should not be used in performance-critical code.
func (v Vec[T]) Data() []T {
	return append([]T(nil), v.data[:v.n]...)
}

// Store writes the vector's data to a slice.
// This is the method form of the hwy.Store function.
func (v Vec[T]) Store(dst []T) {
	Store(v, dst)
}

// Mask represents the result of a comparison operation.
// It can be used with IfThenElse, MaskLoad, and MaskStore to perform
// conditional operations.
type Mask[T Lanes] struct {
	// bit i is set if lane i is active.
	bits uint32
	n    int
}

// NumLanes returns the number of lanes in this mask.
func (m Mask[T]) NumLanes() int {
	return m.n
}

// AllTrue returns true if all lanes in the mask are active.
func (m Mask[T]) AllTrue() bool {
	return m.CountTrue() == m.n
}

// AnyTrue returns true if at least one lane in the mask is active.
func (m Mask[T]) AnyTrue() bool {
	return m.bits != 0
}

// CountTrue returns the number of active lanes in the mask.
func (m Mask[T]) CountTrue() int {
	count := 0
	for i := range m.n {
		if m.GetBit(i) {
			count++
		}
	}
	return count
}

// GetBit returns whether lane i is active.
func (m Mask[T]) GetBit(i int) bool {
	if i < 0 || i >= m.n {
		return false
	}
	return m.bits&(1<<i) != 0
}

func (m *Mask[T]) set(i int, on bool) {
	if on {
		m.bits |= 1 << i
	}
}

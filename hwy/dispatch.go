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
	"fmt"
	"os"
	"strconv"
	"unsafe"
)

// DispatchLevel represents the SIMD instruction set tier detected for this CPU.
type DispatchLevel int

const (
	// DispatchScalar indicates no SIMD, pure Go implementation.
	DispatchScalar DispatchLevel = iota

	// DispatchSSE4 indicates SSE4.1 instructions (128-bit SIMD).
	DispatchSSE4

	// DispatchAVX2 indicates AVX2 with FMA (256-bit SIMD).
	DispatchAVX2

	// DispatchAVX512 indicates AVX-512 F/BW instructions (512-bit SIMD).
	DispatchAVX512

	// DispatchNEON indicates ARM NEON instructions (128-bit SIMD).
	DispatchNEON
)

// String returns a human-readable name for the dispatch level.
func (d DispatchLevel) String() string {
	switch d {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE4:
		return "sse4"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	case DispatchNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Matrix tile geometry for bf16 dot products: TileRows x TileCols float32
// accumulators fed by TileRows x TileDepth bf16 operands.
const (
	TileRows  = 16
	TileCols  = 16
	TileDepth = 32
)

// Capabilities describes what the running CPU offers to the convolution
// kernels: SIMD tier and register width, native bf16 arithmetic and a
// matrix tile unit.
type Capabilities struct {
	Level DispatchLevel

	// Width is the SIMD register width in bytes.
	Width int

	// NativeBF16 reports bf16 dot-product instructions (AVX512-BF16, ARM BF16).
	// Without it, lane kernels load fp32 activations and round them on load.
	NativeBF16 bool

	// Tile reports a bf16 matrix tile unit (AMX-BF16).
	Tile bool

	// CPU is the processor brand string, when known.
	CPU string
}

// Lanes returns the number of float32 lanes per register.
func (c Capabilities) Lanes() int {
	if c.Level == DispatchScalar {
		return 1
	}
	return c.Width / 4
}

// String returns a compact description such as "avx512+bf16+tile".
func (c Capabilities) String() string {
	s := c.Level.String()
	if c.NativeBF16 {
		s += "+bf16"
	}
	if c.Tile {
		s += "+tile"
	}
	return s
}

// GoString is used by %#v.
func (c Capabilities) GoString() string {
	return fmt.Sprintf("hwy.Capabilities{Level: %s, Width: %d, NativeBF16: %t, Tile: %t}",
		c.Level, c.Width, c.NativeBF16, c.Tile)
}

// currentLevel is the detected SIMD level for this runtime.
// Set by init() in dispatch_*.go files.
var currentLevel DispatchLevel

// currentWidth is the SIMD register width in bytes for the current level.
// Set by init() in dispatch_*.go files.
var currentWidth int

// hasNativeBF16 and hasTile are set by init() in dispatch_*.go files.
var (
	hasNativeBF16 bool
	hasTile       bool
)

// CurrentLevel returns the SIMD instruction set being used.
func CurrentLevel() DispatchLevel {
	return currentLevel
}

// CurrentWidth returns the SIMD register width in bytes.
// For example: 16 for SSE4/NEON, 32 for AVX2, 64 for AVX-512.
func CurrentWidth() int {
	return currentWidth
}

// MaxLanes returns the number of T lanes in one register of the current
// level, capped at MaxVecLanes.
func MaxLanes[T Lanes]() int {
	var dummy T
	elementSize := int(unsafe.Sizeof(dummy))
	return min(currentWidth/elementSize, MaxVecLanes)
}

// CurrentName returns a human-readable name for the current SIMD target.
func CurrentName() string {
	return currentLevel.String()
}

// Detect returns the capabilities of the running CPU, after applying the
// HWY_NO_SIMD and HWY_NO_AMX overrides.
func Detect() Capabilities {
	return Capabilities{
		Level:      currentLevel,
		Width:      currentWidth,
		NativeBF16: hasNativeBF16,
		Tile:       hasTile,
		CPU:        cpuBrand(),
	}
}

// NoSimdEnv checks if the HWY_NO_SIMD environment variable is set.
// When set, detection reports the scalar tier regardless of CPU capabilities.
// This is useful for testing and debugging.
func NoSimdEnv() bool {
	return envFlag("HWY_NO_SIMD")
}

// NoTileEnv checks if the HWY_NO_AMX environment variable is set.
// When set, the matrix tile unit is reported as unavailable.
func NoTileEnv() bool {
	return envFlag("HWY_NO_AMX")
}

func envFlag(name string) bool {
	val := os.Getenv(name)
	if val == "" {
		return false
	}
	// Any non-empty value is considered true, but also parse as bool
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

func setScalarMode() {
	currentLevel = DispatchScalar
	currentWidth = 16 // Use 16-byte vectors even in scalar mode for consistency
	hasNativeBF16 = false
	hasTile = false
}

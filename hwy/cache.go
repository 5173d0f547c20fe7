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

	"github.com/klauspost/cpuid/v2"
)

// CacheSizes holds the per-core data cache capacities, in bytes, that the
// tiling planners budget against.
type CacheSizes struct {
	L1 int // L1 data cache
	L2 int // L2 cache
	L3 int // L3 cache (or last level)
}

// String formats the sizes in KiB.
func (c CacheSizes) String() string {
	return fmt.Sprintf("L1=%dK L2=%dK L3=%dK", c.L1>>10, c.L2>>10, c.L3>>10)
}

// Valid reports whether every level is positive.
func (c CacheSizes) Valid() bool {
	return c.L1 > 0 && c.L2 > 0 && c.L3 > 0
}

// DefaultCacheSizes returns conservative sizes for a dispatch level, used
// when the CPU does not report its caches.
//
//   - AVX-512: 32KB L1d, 1MB L2, 8MB L3 (Skylake-X and later)
//   - AVX2/SSE4: 32KB L1d, 256KB L2, 8MB L3 (Haswell and later)
//   - NEON: 64KB L1d, 1MB L2, 4MB L3 (Cortex-A76 and later, Apple M)
//   - scalar: 32KB L1d, 256KB L2, 2MB L3
func DefaultCacheSizes(level DispatchLevel) CacheSizes {
	switch level {
	case DispatchAVX512:
		return CacheSizes{L1: 32 << 10, L2: 1 << 20, L3: 8 << 20}
	case DispatchAVX2, DispatchSSE4:
		return CacheSizes{L1: 32 << 10, L2: 256 << 10, L3: 8 << 20}
	case DispatchNEON:
		return CacheSizes{L1: 64 << 10, L2: 1 << 20, L3: 4 << 20}
	default:
		return CacheSizes{L1: 32 << 10, L2: 256 << 10, L3: 2 << 20}
	}
}

// DetectCacheSizes queries the CPU caches with cpuid, filling unknown levels
// from DefaultCacheSizes, then applies the HWY_CACHE_L1, HWY_CACHE_L2 and
// HWY_CACHE_L3 overrides (bytes).
func DetectCacheSizes() CacheSizes {
	c := DefaultCacheSizes(currentLevel)
	if v := cpuid.CPU.Cache.L1D; v > 0 {
		c.L1 = v
	}
	if v := cpuid.CPU.Cache.L2; v > 0 {
		c.L2 = v
	}
	if v := cpuid.CPU.Cache.L3; v > 0 {
		c.L3 = v
	}
	c.L1 = envBytes("HWY_CACHE_L1", c.L1)
	c.L2 = envBytes("HWY_CACHE_L2", c.L2)
	c.L3 = envBytes("HWY_CACHE_L3", c.L3)
	if c.L3 < c.L2 {
		// Some parts report no L3; budget the last level as L2.
		c.L3 = c.L2
	}
	return c
}

func envBytes(name string, def int) int {
	val := os.Getenv(name)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func cpuBrand() string {
	return cpuid.CPU.BrandName
}

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

//go:build amd64

package hwy

import "golang.org/x/sys/cpu"

func init() {
	// Check if SIMD is disabled via environment variable
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	detectCPUFeatures()
	detectBF16Features()
}

func detectCPUFeatures() {
	switch {
	case cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW:
		currentLevel = DispatchAVX512
		currentWidth = 64
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		currentLevel = DispatchAVX2
		currentWidth = 32
	case cpu.X86.HasSSE41:
		currentLevel = DispatchSSE4
		currentWidth = 16
	default:
		setScalarMode()
	}
}

func detectBF16Features() {
	// AVX-512 BF16: bfloat16 dot products (Cooper Lake+, Zen 4+)
	if currentLevel == DispatchAVX512 {
		hasNativeBF16 = cpu.X86.HasAVX512BF16
	}

	// AMX-BF16: 16x32 bf16 tiles accumulating into 16x16 fp32 (Sapphire Rapids+)
	hasTile = cpu.X86.HasAMXBF16 && !NoTileEnv()
}

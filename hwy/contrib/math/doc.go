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

// Package math provides vectorized transcendental functions on hwy.Vec.
// This package corresponds to Google Highway's hwy/contrib/math directory.
//
// The Base*Vec functions are register-to-register building blocks: they
// take and return a hwy.Vec, never allocate, and compose (BaseTanhVec
// calls BaseSigmoidVec calls BaseExpVec). Every lane is computed
// independently with the same operation sequence, so a value gives the
// same result whichever lane or vector width it is processed in.
//
// Accuracy targets float32: about 2 ulp for exp and log, 1.5e-7 absolute
// for erf.
//
//	x := hwy.Load(input[i:])
//	y := math.BaseSigmoidVec(x)
//	hwy.Store(y, output[i:])
package math

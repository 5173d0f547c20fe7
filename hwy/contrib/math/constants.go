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

package math

// Float32 constants for Exp.
var (
	expLn2Hi_f32  float32 = 0.693359375
	expLn2Lo_f32  float32 = -2.12194440e-4
	expInvLn2_f32 float32 = 1.44269504088896341

	expOverflow_f32  float32 = 88.72283905206835
	expUnderflow_f32 float32 = -87.33654475055310

	expC1_f32 float32 = 1.0
	expC2_f32 float32 = 0.5
	expC3_f32 float32 = 0.16666666666666666
	expC4_f32 float32 = 0.041666666666666664
	expC5_f32 float32 = 0.008333333333333333
	expC6_f32 float32 = 0.001388888888888889
)

// Expm1 switches from the Taylor series to exp(x)-1 above this magnitude.
var (
	expm1Small_f32 float32 = 0.25
	expm1C7_f32    float32 = 1.0 / 5040
)

// Float32 constants for Log: atanh series in y = (m-1)/(m+1).
var (
	logC1_f32 float32 = 1.0
	logC2_f32 float32 = 0.3333333333333367565
	logC3_f32 float32 = 0.1999999999970470954
	logC4_f32 float32 = 0.1428571437183119574
	logC5_f32 float32 = 0.1111109921607489198

	logSqrt2_f32 float32 = 1.4142135
	logLn2Hi_f32 float32 = 0.693359375
	logLn2Lo_f32 float32 = -2.12194440e-4
)

// Float32 constants for Sigmoid and Tanh.
var (
	sigmoidSat_f32 float32 = 20.0

	tanhClamp_f32 float32 = 9.0
	tanhSmall_f32 float32 = 0.125
	tanhC3_f32    float32 = -1.0 / 3
	tanhC5_f32    float32 = 2.0 / 15
	tanhC7_f32    float32 = -17.0 / 315
)

// Float32 constants for Erf (Abramowitz and Stegun 7.1.26).
var (
	erfA1_f32 float32 = 0.254829592
	erfA2_f32 float32 = -0.284496736
	erfA3_f32 float32 = 1.421413741
	erfA4_f32 float32 = -1.453152027
	erfA5_f32 float32 = 1.061405429
	erfP_f32  float32 = 0.3275911
)

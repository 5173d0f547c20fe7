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

// TailMask creates a mask with the first count lanes of a full register
// active. It covers the remainder of an array whose length is not a
// multiple of the vector width:
//
//	lanes := hwy.MaxLanes[float32]()
//	i := 0
//	for ; i+lanes <= len(data); i += lanes {
//	    hwy.Store(f(hwy.Load(data[i:])), data[i:])
//	}
//	if i < len(data) {
//	    mask := hwy.TailMask[float32](len(data) - i)
//	    hwy.MaskStore(mask, f(hwy.MaskLoad(mask, data[i:])), data[i:])
//	}
func TailMask[T Lanes](count int) Mask[T] {
	maxLanes := MaxLanes[T]()
	count = max(0, min(count, maxLanes))
	return Mask[T]{bits: 1<<count - 1, n: maxLanes}
}

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
	"fmt"
	"slices"
	"strings"

	"github.com/ajroetker/go-synet/hwy"
	"github.com/grailbio/base/errors"
	"github.com/samber/lo"
)

// Backend is a capability tier. Every tier provides the same three stage
// kernels; they differ in lane count, micro-kernel shape and weight
// alignment.
type Backend int

const (
	// BackendAuto picks the tier from the detected capabilities.
	BackendAuto Backend = iota
	// BackendScalar processes one channel and one pixel per step.
	BackendScalar
	// BackendLanes4 is the 128-bit tier (SSE4.1, NEON).
	BackendLanes4
	// BackendLanes8 is the 256-bit tier (AVX2+FMA).
	BackendLanes8
	// BackendLanes16 is the 512-bit tier (AVX-512BW).
	BackendLanes16
	// BackendTile accumulates 16×16 fp32 tiles from 16×32 bf16 operands
	// (AMX-BF16).
	BackendTile
)

// backendDesc is the capability descriptor of a tier.
type backendDesc struct {
	name string

	// lanes is the channel width F of one register (MiC).
	lanes int

	// miK aligns the reduction dimension of the packed 1×1 weights.
	miK int

	// rows is the number of pixels one micro-kernel iteration covers.
	rows int

	tile bool

	// bf16Load is set when the tier reads bf16 activations directly.
	// Without it an fp32 source stays fp32 until the input stage loads it.
	bf16Load bool
}

var backendDescs = map[Backend]backendDesc{
	BackendScalar:  {name: "scalar", lanes: 1, miK: 2, rows: 1},
	BackendLanes4:  {name: "lanes4", lanes: 4, miK: 2, rows: 4},
	BackendLanes8:  {name: "lanes8", lanes: 8, miK: 2, rows: 6},
	BackendLanes16: {name: "lanes16", lanes: 16, miK: 2, rows: 12},
	BackendTile:    {name: "tile", lanes: hwy.TileCols, miK: hwy.TileDepth, rows: hwy.TileRows, tile: true, bf16Load: true},
}

func (b Backend) String() string {
	if b == BackendAuto {
		return "auto"
	}
	if s, ok := backendDescs[b]; ok {
		return s.name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// Lanes returns the channel width of one register of the tier.
func (b Backend) Lanes() int {
	return backendDescs[b].lanes
}

func (b Backend) desc() backendDesc {
	s, ok := backendDescs[b]
	if !ok {
		return backendDescs[BackendScalar]
	}
	return s
}

// descFor returns the descriptor of b on a CPU with caps. The lane tiers
// load bf16 only with native bf16 dot products.
func (b Backend) descFor(caps hwy.Capabilities) backendDesc {
	d := b.desc()
	d.bf16Load = d.tile || (caps.NativeBF16 && d.lanes > 1)
	return d
}

// ParseBackend looks a tier up by name ("auto", "scalar", "lanes4", ...).
func ParseBackend(name string) (Backend, error) {
	name = strings.ToLower(name)
	if name == "auto" || name == "" {
		return BackendAuto, nil
	}
	b, ok := lo.FindKeyBy(backendDescs, func(_ Backend, s backendDesc) bool { return s.name == name })
	if !ok {
		return BackendAuto, errors.E(errors.Invalid, fmt.Sprintf("synet: unknown backend %q (want auto or one of %s)", name, strings.Join(BackendNames(), ", ")))
	}
	return b, nil
}

// BackendNames lists the concrete tiers in order.
func BackendNames() []string {
	keys := lo.Keys(backendDescs)
	slices.Sort(keys)
	return lo.Map(keys, func(b Backend, _ int) string { return b.String() })
}

// SelectBackend returns the widest tier caps supports.
func SelectBackend(caps hwy.Capabilities) Backend {
	if caps.Tile {
		return BackendTile
	}
	switch caps.Level {
	case hwy.DispatchAVX512:
		return BackendLanes16
	case hwy.DispatchAVX2:
		return BackendLanes8
	case hwy.DispatchSSE4, hwy.DispatchNEON:
		return BackendLanes4
	default:
		return BackendScalar
	}
}

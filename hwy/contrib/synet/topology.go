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

// Topology is the pipeline shape selected for a descriptor chain.
type Topology int

const (
	// TopologyBase is the untiled reference used for any valid chain.
	TopologyBase Topology = iota
	// TopologyCdc is input 1×1 + depthwise + output 1×1.
	TopologyCdc
	// TopologyCd is input 1×1 + depthwise.
	TopologyCd
	// TopologyDc is depthwise + output 1×1.
	TopologyDc
)

func (t Topology) String() string {
	switch t {
	case TopologyCdc:
		return "Cdc"
	case TopologyCd:
		return "Cd"
	case TopologyDc:
		return "Dc"
	default:
		return "Base"
	}
}

// stageSet maps the semantic stages onto indices of MergConvParam.Conv,
// -1 for an absent stage.
type stageSet struct {
	in, dw, out int
}

func (t Topology) stages() stageSet {
	switch t {
	case TopologyCdc:
		return stageSet{in: 0, dw: 1, out: 2}
	case TopologyCd:
		return stageSet{in: 0, dw: 1, out: -1}
	case TopologyDc:
		return stageSet{in: -1, dw: 0, out: 1}
	default:
		return stageSet{in: -1, dw: -1, out: -1}
	}
}

func isDense1x1(c ConvParam) bool {
	return c.Is1x1() && c.Group == 1
}

// CdcPreferable reports whether p maps onto the input+depthwise+output
// pipeline.
func CdcPreferable(p MergConvParam) bool {
	return len(p.Conv) == 3 && isDense1x1(p.Conv[0]) && p.Conv[1].IsDepthwise() && isDense1x1(p.Conv[2])
}

// CdPreferable reports whether p maps onto the input+depthwise pipeline.
func CdPreferable(p MergConvParam) bool {
	return len(p.Conv) == 2 && isDense1x1(p.Conv[0]) && p.Conv[1].IsDepthwise()
}

// DcPreferable reports whether p maps onto the depthwise+output pipeline.
func DcPreferable(p MergConvParam) bool {
	return len(p.Conv) == 2 && p.Conv[0].IsDepthwise() && isDense1x1(p.Conv[1])
}

// SelectTopology returns the first preferable tiled topology, or
// TopologyBase.
func SelectTopology(p MergConvParam) Topology {
	switch {
	case CdcPreferable(p):
		return TopologyCdc
	case CdPreferable(p):
		return TopologyCd
	case DcPreferable(p):
		return TopologyDc
	default:
		return TopologyBase
	}
}

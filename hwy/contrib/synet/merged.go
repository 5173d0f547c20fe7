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

	"github.com/ajroetker/go-synet/hwy"
	"github.com/ajroetker/go-synet/hwy/contrib/activation"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/samber/lo"
)

type options struct {
	backend Backend
	cache   *hwy.CacheSizes
	caps    *hwy.Capabilities
	base    bool
}

// Option configures New.
type Option func(*options)

// WithBackend forces a capability tier instead of the detected one.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCacheSizes plans against c instead of the detected caches.
func WithCacheSizes(c hwy.CacheSizes) Option {
	return func(o *options) { o.cache = &c }
}

// WithCapabilities selects the tier from caps instead of hwy.Detect.
func WithCapabilities(caps hwy.Capabilities) Option {
	return func(o *options) { o.caps = &caps }
}

// WithBase forces the untiled reference pipeline.
func WithBase() Option {
	return func(o *options) { o.base = true }
}

// MergedConvolution runs one merged convolution chain. Create it with New,
// load its weights with SetParams, then call Forward.
type MergedConvolution struct {
	param    MergConvParam
	topology Topology
	backend  Backend
	desc     backendDesc
	caps     hwy.Capabilities
	cache    hwy.CacheSizes
	plan     plan
	conv     converter

	input     *inputConv
	depthwise *depthwiseConv
	output    *outputConv
	base      []baseStage

	paramBytes int
	ready      bool

	// internal backs Forward calls without a caller scratch arena.
	internal hwy.Buffer
}

// New validates p, selects the topology and backend and computes the cache
// plan.
func New(p MergConvParam, opts ...Option) (*MergedConvolution, error) {
	if err := p.Valid(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	m := &MergedConvolution{param: p}
	m.param.Conv = append([]ConvParam(nil), p.Conv...)

	if o.caps != nil {
		m.caps = *o.caps
	} else {
		m.caps = hwy.Detect()
	}
	if o.cache != nil {
		m.cache = *o.cache
	} else {
		m.cache = hwy.DetectCacheSizes()
	}
	if !m.cache.Valid() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("synet: invalid cache sizes %s", m.cache))
	}

	m.backend = o.backend
	if m.backend == BackendAuto {
		m.backend = SelectBackend(m.caps)
	}
	if _, ok := backendDescs[m.backend]; !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("synet: unknown backend %d", int(m.backend)))
	}
	m.desc = m.backend.descFor(m.caps)

	m.topology = SelectTopology(p)
	if o.base {
		m.topology = TopologyBase
	}
	if m.topology == TopologyBase {
		m.plan = planBase(p)
	} else {
		m.plan = planTiled(p, m.topology, m.desc, m.cache)
		if m.plan.st.in >= 0 {
			m.conv = newConverter(p.First(), m.desc.miK, m.desc.bf16Load)
		}
	}
	if log.At(log.Debug) {
		log.Debug.Printf("synet: %s for %s (%s, %s): %s", m.Info(), p, m.caps, m.cache, m.plan.AlgParam)
	}
	return m, nil
}

// SetParams loads the weights, biases and activation parameters of every
// stage, indexed like Param().Conv. Weights use the unpacked layout
// [KernelY, KernelX, SrcC/Group, DstC]; a nil bias is zero. It must not
// run concurrently with Forward.
func (m *MergedConvolution) SetParams(weights, biases, params [][]float32) error {
	convs := m.param.Conv
	if len(weights) < len(convs) {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: %d weight sets for %d stages", len(weights), len(convs)))
	}
	align := m.desc.lanes
	if m.topology == TopologyBase {
		align = 1
	}
	acts := make([]activation.Params, len(convs))
	for i, c := range convs {
		if len(weights[i]) < c.WeightSize() {
			return errors.E(errors.Invalid, fmt.Sprintf("synet: stage %d has %d weights, want %d", i, len(weights[i]), c.WeightSize()))
		}
		if b := at(biases, i); b != nil && len(b) < c.DstC {
			return errors.E(errors.Invalid, fmt.Sprintf("synet: stage %d has %d biases, want %d", i, len(b), c.DstC))
		}
		act, err := activation.NewParams(c.Activation, at(params, i), c.DstC, align)
		if err != nil {
			return errors.E(err, fmt.Sprintf("synet: stage %d", i))
		}
		acts[i] = act
	}
	m.paramBytes = lo.SumBy(acts, func(a activation.Params) int { return a.Size() * 4 })

	if m.topology == TopologyBase {
		dense := baseDense(m.param)
		m.base = make([]baseStage, len(convs))
		for i, c := range convs {
			m.base[i] = newBaseStage(c, weights[i], stageBias(biases, i, c.DstC), acts[i], dense[i])
		}
		m.ready = true
		return nil
	}

	lanes, miK := m.desc.lanes, m.desc.miK
	st := m.plan.st
	if i := st.in; i >= 0 {
		c := convs[i]
		k := AlignHi(c.SrcC, miK)
		m.input = newInputConv(c, k,
			packPairs(weights[i], c.SrcC, c.DstC, k, lanes),
			padded(stageBias(biases, i, c.DstC), AlignHi(c.DstC, lanes)),
			newKernelTable(m.desc, acts[i]))
	}
	if i := st.dw; i >= 0 {
		c := convs[i]
		m.depthwise = newDepthwiseConv(c, lanes,
			packDepthwise(weights[i], c.KernelY*c.KernelX, c.DstC, lanes),
			padded(stageBias(biases, i, c.DstC), AlignHi(c.DstC, lanes)),
			acts[i].Resolve())
	}
	if i := st.out; i >= 0 {
		c := convs[i]
		m.output = newOutputConv(c, miK,
			packPairs(weights[i], c.SrcC, c.DstC, AlignHi(c.SrcC, miK), lanes),
			padded(stageBias(biases, i, c.DstC), AlignHi(c.DstC, lanes)),
			newKernelTable(m.desc, acts[i]), m.param.Add)
	}
	m.ready = true
	return nil
}

func at(s [][]float32, i int) []float32 {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func stageBias(biases [][]float32, i, n int) []float32 {
	if b := at(biases, i); b != nil {
		return b[:n]
	}
	return nil
}

// ExternalBufferSize returns the scratch arena size Forward needs, in bytes.
func (m *MergedConvolution) ExternalBufferSize() int {
	return m.plan.externalBytes()
}

// InternalBufferSize returns the bytes owned by the instance: packed
// weights, biases, activation parameters and the internal arena.
func (m *MergedConvolution) InternalBufferSize() int {
	n := m.paramBytes + m.internal.Cap()
	if m.input != nil {
		n += m.input.bytes()
	}
	if m.depthwise != nil {
		n += m.depthwise.bytes()
	}
	if m.output != nil {
		n += m.output.bytes()
	}
	for _, s := range m.base {
		n += (len(s.weights) + len(s.bias)) * 4
	}
	return n
}

// Info names the topology, backend and plan, e.g.
// "synet::Cdc-lanes8 maC=64 yStep=[8 8 4]".
func (m *MergedConvolution) Info() string {
	if m.topology == TopologyBase {
		return "synet::Base"
	}
	return fmt.Sprintf("synet::%s-%s maC=%d yStep=%v", m.topology, m.backend, m.plan.MaC, m.plan.YStep)
}

// Topology returns the selected pipeline.
func (m *MergedConvolution) Topology() Topology { return m.topology }

// Backend returns the selected tier.
func (m *MergedConvolution) Backend() Backend { return m.backend }

// Alg returns the cache plan.
func (m *MergedConvolution) Alg() AlgParam { return m.plan.AlgParam }

// Param returns the descriptor chain.
func (m *MergedConvolution) Param() MergConvParam { return m.param }

// Forward runs the chain on src into dst, both [Batch, H, W, C]. scratch
// must hold ExternalBufferSize bytes, or be nil to use the instance's own
// arena, which is not safe for concurrent calls.
func (m *MergedConvolution) Forward(src, dst Tensor, scratch []byte) error {
	if err := m.check(src, dst); err != nil {
		return err
	}
	need := m.ExternalBufferSize()
	if scratch == nil {
		if m.internal.Cap() < need {
			log.Debug.Printf("synet: %s: internal buffer grows to %d bytes", m.Info(), need)
		}
		scratch = m.internal.Resize(need)
	} else if len(scratch) < need {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: scratch of %d bytes, need %d", len(scratch), need))
	}
	m.forwardRange(src, dst, scratch, 0, m.param.Batch)
	return nil
}

func (m *MergedConvolution) check(src, dst Tensor) error {
	if !m.ready {
		return errors.E(errors.Precondition, "synet: Forward before SetParams")
	}
	p := m.param
	if src.Type() != p.First().SrcT || dst.Type() != p.Last().DstT {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: tensors %s->%s, want %s->%s", src.Type(), dst.Type(), p.First().SrcT, p.Last().DstT))
	}
	if n := p.Batch * p.SrcSize(); src.Len() < n {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: source has %d elements, want %d", src.Len(), n))
	}
	if n := p.Batch * p.DstSize(); dst.Len() < n {
		return errors.E(errors.Invalid, fmt.Sprintf("synet: destination has %d elements, want %d", dst.Len(), n))
	}
	return nil
}

// buffers are the stage buffers carved from one arena.
type buffers struct {
	buf0 []hwy.BFloat16
	buf1 []float32
	buf2 []hwy.BFloat16
	buf3 []float32
	buf4 []float32
}

func (p plan) carve(b []byte) buffers {
	a := hwy.NewArena(b)
	return buffers{
		buf0: a.BFloat16s(p.buf[0]),
		buf1: a.Float32s(p.buf[1]),
		buf2: a.BFloat16s(p.buf[2]),
		buf3: a.Float32s(p.buf[3]),
		buf4: a.Float32s(p.buf[4]),
	}
}

// forwardRange runs batch items [b0, b1) with one arena.
func (m *MergedConvolution) forwardRange(src, dst Tensor, arena []byte, b0, b1 int) {
	s := m.plan.carve(arena)
	ss, ds := m.param.SrcSize(), m.param.DstSize()
	for b := b0; b < b1; b++ {
		img, out := src.slice(b*ss, ss), dst.slice(b*ds, ds)
		switch m.topology {
		case TopologyCdc:
			m.forwardCdc(img, out, s)
		case TopologyCd:
			m.forwardCd(img, out, s)
		case TopologyDc:
			m.forwardDc(img, out, s)
		default:
			m.forwardBase(img, out, s.buf1)
		}
	}
}

// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wrappers implements the Descriptor/Pipeline Wrappers:
// deferred-release handles for shader modules, descriptor set layouts,
// descriptor sets, descriptor pools and pipeline layouts, plus the
// shadow descriptor writes that let the CPU introspect what a set is
// currently bound to without reading back from the GPU. Each handle
// pairs a public handle.Ref with an owned CPU-side shadow kept in
// internal/handle's generational arena.
package wrappers

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gapid-shaderlayer/gpuav/internal/handle"
)

// DescriptorType discriminates the three payload shapes a tracked write
// can carry.
type DescriptorType int

const (
	ImageInfo DescriptorType = iota
	BufferInfo
	TexelBufferView
)

// ImageDescriptorInfo, BufferDescriptorInfo and TexelBufferViewInfo are the
// three concrete payload shapes a TrackedWrite carries in its Image, Buffer
// and TexelView fields; Type selects which one is meaningful.
type ImageDescriptorInfo struct {
	Sampler uint64
	ImageView uint64
	ImageLayout uint32
}

type BufferDescriptorInfo struct {
	Buffer uint64
	Offset uint64
	Range uint64
}

type TexelBufferViewInfo struct {
	View uint64
}

// TrackedWrite is one shadow-recorded descriptor update.
type TrackedWrite struct {
	Binding uint32
	ArrayElement uint32
	Type DescriptorType
	Image ImageDescriptorInfo
	Buffer BufferDescriptorInfo
	TexelView TexelBufferViewInfo
}

// BindingSchema describes one binding of a Descriptor Set Layout Handle
//: its index, descriptor type, array count, byte offset into
// a serialized descriptor blob, and array stride.
type BindingSchema struct {
	Binding uint32
	Type DescriptorType
	Count uint32
	Offset uint32
	Stride uint32
}

// SetLayout is a Descriptor Set Layout Handle: the public
// set layout plus its per-binding schema and cross-compatibility hash.
// Identity of the handle is the Ref returned by the owning Arena's
// Create call; SetLayout itself carries no arena reference.
type SetLayout struct {
	Bindings []BindingSchema
	TopBinding uint32
	TopCount uint32
	CrossCompatHash uint64
}

// ErrInvalidSet is returned by operations on a Descriptor Set Handle whose
// Valid flag is false.
var ErrInvalidSet = errors.New("wrappers: set is not valid for dispatch")

// Set is a Descriptor Set Handle: the API set, its owning
// layout, and its ordered shadow writes. commitHash monotonically
// increases on every accepted update; commitIndex records the compiler
// commit this set was last validated against.
type Set struct {
	mu sync.Mutex

	Native uint64
	Layout *SetLayout

	valid bool
	writes []TrackedWrite
	commitHash atomic.Uint64
	commitIndex uint64
}

// NewSet returns a Set bound to native and layout, valid for dispatch.
func NewSet(native uint64, layout *SetLayout) *Set {
	s := &Set{Native: native, Layout: layout, valid: true}
	return s
}

// Valid reports whether this set may currently be dispatched with.
func (s *Set) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Invalidate marks the set as unusable (e.g. its pool was reset or it was
// freed while other references remain live).
func (s *Set) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
}

// CrossCompatHash returns 0 for the synthetic diagnostic set and
// otherwise the owning layout's cross-compatibility hash.
func (s *Set) CrossCompatHash() uint64 {
	if s.Layout == nil {
		return 0
	}
	return s.Layout.CrossCompatHash
}

// Update appends write to the shadow write sequence and bumps commitHash,
// rejecting the update if the set is not valid.
func (s *Set) Update(write TrackedWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid {
		return ErrInvalidSet
	}
	s.writes = append(s.writes, write)
	s.commitHash.Add(1)
	return nil
}

// Writes returns a copy of the ordered shadow writes recorded so far.
func (s *Set) Writes() []TrackedWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackedWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

// CommitHash returns the monotonically increasing update counter used by
// the command-buffer interceptor's breadcrumb tracking.
func (s *Set) CommitHash() uint64 { return s.commitHash.Load() }

// SetCommitIndex records the compiler commit this set was last validated
// against.
func (s *Set) SetCommitIndex(c uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitIndex = c
}

// CommitIndex returns the compiler commit this set was last validated
// against.
func (s *Set) CommitIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitIndex
}

// Pool is a Descriptor Pool Handle: the API pool, its owned
// sets, and a swap-index used to snapshot membership for deferred
// destruction (so a pool reset doesn't invalidate sets a still-in-flight
// command buffer references).
type Pool struct {
	mu sync.Mutex
	arena *handle.Arena[*Set]
	members [2][]handle.Ref
	swapIdx int
}

// NewPool returns an empty descriptor pool backed by arena.
func NewPool(arena *handle.Arena[*Set]) *Pool {
	return &Pool{arena: arena}
}

// Track records ref as a member of the pool's active membership snapshot.
func (p *Pool) Track(ref handle.Ref) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[p.swapIdx] = append(p.members[p.swapIdx], ref)
}

// Reset snapshots the current membership for deferred destruction (the
// caller releases each returned ref once any command buffers that might
// still reference them have retired) and swaps to a fresh empty
// membership list for newly allocated sets.
func (p *Pool) Reset() []handle.Ref {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.members[p.swapIdx]
	p.members[p.swapIdx] = nil
	p.swapIdx = 1 - p.swapIdx
	return old
}

// Module is a Shader Module Handle: maps a host-API module to
// both its source and, optionally, instrumented shader, with a deferred
// release refcount that starts at 1.
type Module struct {
	mu sync.Mutex

	Source []byte
	Instrumented atomic.Pointer[[]byte]

	usages atomic.Int32
}

// NewModule returns a Module with usages=1, matching the // `usages` field starting at 1 on creation.
func NewModule(source []byte) *Module {
	m := &Module{Source: source}
	m.usages.Store(1)
	return m
}

// Retain increments the usage refcount; cross-thread safe.
func (m *Module) Retain() { m.usages.Add(1) }

// Release decrements the usage refcount and reports whether this call
// dropped it to zero, i.e. the handle should now be destroyed.
func (m *Module) Release() bool {
	return m.usages.Add(-1) == 0
}

// SetInstrumented atomically publishes the instrumented bitcode once the
// Shader Compiler Pool has produced it.
func (m *Module) SetInstrumented(bitcode []byte) {
	m.Instrumented.Store(&bitcode)
}

// InstrumentedBitcode returns the published instrumented bitcode and true,
// or nil/false if compilation hasn't completed yet.
func (m *Module) InstrumentedBitcode() ([]byte, bool) {
	p := m.Instrumented.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// PushConstantRange is one pass's reserved push-constant descriptor within
// a Pipeline Layout Handle's reserved tail range.
type PushConstantRange struct {
	PassName string
	Offset uint32
	Size uint32
}

// Layout is a Pipeline Layout Handle: the API layout, each
// set's cross-compatibility hash, the enumerated push-constant stage
// ranges, and the reserved tail range's per-pass descriptors.
type Layout struct {
	SetHashes []uint64 // the last index is the synthetic diagnostic set, always 0
	PushConstantRanges []PushConstantRange

	diagnosticSetIndex int
	tailSize uint32
}

// NewLayout builds a Layout from a public set shape list; the diagnostic
// set is appended as the trailing index with hash 0.
func NewLayout(publicSetHashes []uint64, ranges []PushConstantRange) *Layout {
	hashes := append(append([]uint64(nil), publicSetHashes...), 0)
	l := &Layout{
		SetHashes: hashes,
		diagnosticSetIndex: len(hashes) - 1,
		PushConstantRanges: ranges,
	}
	for _, r := range ranges {
		if end := r.Offset + r.Size; end > l.tailSize {
			l.tailSize = end
		}
	}
	return l
}

// DiagnosticSetIndex is the reserved trailing descriptor-set index the
// layer's own diagnostic set is bound to.
func (l *Layout) DiagnosticSetIndex() int { return l.diagnosticSetIndex }

// CrossCompatHash returns the cross-compatibility hash of the set at the
// given index, or 0 if out of range (matching the synthetic diagnostic
// set's always-0 hash).
func (l *Layout) CrossCompatHash(set int) uint64 {
	if set < 0 || set >= len(l.SetHashes) {
		return 0
	}
	return l.SetHashes[set]
}

// PushConstantSize returns the total reserved tail range, in bytes, that
// the registered passes' push-constant descriptors require.
func (l *Layout) PushConstantSize() int { return int(l.tailSize) }

// CreateInfoArena backs a Pipeline Handle's deep-copied create-info with a
// flat, self-contained byte arena, so a pipeline job can outlive the
// caller's own create-info allocation.
type CreateInfoArena struct {
	buf []byte
}

// Clone copies src into a freshly allocated backing array and returns the
// arena owning it.
func Clone(src []byte) *CreateInfoArena {
	a := &CreateInfoArena{buf: make([]byte, len(src))}
	copy(a.buf, src)
	return a
}

// Bytes returns the arena's owned copy.
func (a *CreateInfoArena) Bytes() []byte { return a.buf }

// PipelineKind distinguishes a Pipeline Handle's two create-info shapes.
type PipelineKind int

const (
	Graphics PipelineKind = iota
	Compute
)

// Pipeline is a Pipeline Handle: the source pipeline, an
// atomic nullable instrumented-pipeline pointer, its layout, module list,
// feature mask and deep-copied create-info.
type Pipeline struct {
	Kind PipelineKind
	Source uint64
	Layout *Layout
	Modules []*Module
	FeatureMask uint64
	CreateInfo *CreateInfoArena

	instrumented atomic.Pointer[uint64]
}

// SetInstrumented atomically publishes the compiled instrumented pipeline
// handle.
func (p *Pipeline) SetInstrumented(handle uint64) {
	p.instrumented.Store(&handle)
}

// Instrumented returns the published instrumented pipeline handle and
// true, or zero/false if compilation hasn't completed.
func (p *Pipeline) Instrumented() (uint64, bool) {
	ptr := p.instrumented.Load()
	if ptr == nil {
		return 0, false
	}
	return *ptr, true
}

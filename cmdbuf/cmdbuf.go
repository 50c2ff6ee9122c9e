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

// Package cmdbuf implements the Command-Buffer Interceptor: the
// per-command-buffer state machine that tracks the application's bound
// pipeline, descriptor sets and push constants, injects the layer's
// diagnostic descriptor set and instrumented pipelines, and restores the
// application's own bindings after every piece of layer-injected work.
package cmdbuf

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gapid-shaderlayer/gpuav/allocator"
	"github.com/gapid-shaderlayer/gpuav/registry"
)

// BindPoint is one of the two pipeline bind points a command buffer
// tracks independently.
type BindPoint int

const (
	Graphics BindPoint = iota
	Compute
	numBindPoints
)

// ErrNoActiveAllocation is returned by operations that require a live
// diagnostic allocation (e.g. push-constant byte computation) when Begin
// decided to skip instrumentation for this command buffer.
var ErrNoActiveAllocation = errors.New("cmdbuf: no active diagnostic allocation")

// Pipeline abstracts the descriptor/pipeline wrapper layer's Pipeline
// Handle: a source pipeline plus a nullable, atomically
// published instrumented pipeline and the layout it was built against.
// Defined as an interface here, rather than depending on the wrapper
// package's concrete type, so this package's tests can exercise the
// state machine without constructing real GPU handles.
type Pipeline interface {
	// Instrumented returns the compiled instrumented pipeline and true
	// once the Pipeline Compiler has published one for this pipeline.
	Instrumented() (interface{}, bool)
	Layout() Layout
}

// Layout abstracts a Pipeline Layout Handle.
type Layout interface {
	// DiagnosticSetIndex is the reserved trailing descriptor-set index
	// the layer's own diagnostic set is bound to.
	DiagnosticSetIndex() int
	// CrossCompatHash is 0 for the synthetic diagnostic set and
	// otherwise derived from a set layout's public shape.
	CrossCompatHash(set int) uint64
	// PushConstantSize is the total reserved tail range, in bytes, the
	// registered passes' push-constant descriptors require.
	PushConstantSize() int
}

// DescriptorSet abstracts a Descriptor Set Handle.
type DescriptorSet interface {
	Native() interface{}
	CrossCompatHash() uint64
}

// ReportSource is the subset of the layer's active-report state Begin
// needs: whether a report is recording, its active feature mask, and the
// shader/pipeline compiler commits it captured when begin_report was
// called.
type ReportSource interface {
	Active() bool
	FeatureMask() uint64
	CapturedShaderCommit() uint64
	CapturedPipelineCommit() uint64
}

// CommitObserver reports whether a compiler pool's completion counter has
// reached a given commit's "complete_counter increments
// strictly in job-retirement order" ordering guarantee.
type CommitObserver interface {
	CaughtUpTo(commit uint64) bool
}

// trackedSet is one bound-but-possibly-stale descriptor set per bound slot.
type trackedSet struct {
	set DescriptorSet
	layout Layout
	setIndex int
	dynamicOffsets []uint32
	recordedHash uint64
	lastBreadcrumb uint64
}

// bindPointState is the per-bind-point slice of a command buffer's state:
// its active pipeline and the descriptor sets bound against it.
type bindPointState struct {
	pipeline Pipeline
	boundInstrumented bool
	sets map[int]*trackedSet
}

func newBindPointState() *bindPointState {
	return &bindPointState{sets: map[int]*trackedSet{}}
}

// State is one command buffer's interceptor state. It is
// not safe for concurrent use by more than one recording thread, matching
// the host API's own single-writer-per-command-buffer contract.
type State struct {
	mu sync.Mutex

	alloc *allocator.Allocator
	registry *registry.Registry
	reports ReportSource
	shader CommitObserver
	pipeline CommitObserver

	bindPoints [numBindPoints]*bindPointState

	pushConstants []byte
	renderPassActive bool

	featureMask uint64
	current *allocator.Allocation

	breadcrumbDirty bool
	generation uint64
}

// New returns a State bound to the given allocator and registry, ready to
// have Begin called on it once per command-buffer (re-)recording.
func New(alloc *allocator.Allocator, reg *registry.Registry, reports ReportSource, shader, pipeline CommitObserver) *State {
	s := &State{
		alloc: alloc,
		registry: reg,
		reports: reports,
		shader: shader,
		pipeline: pipeline,
	}
	for i := range s.bindPoints {
		s.bindPoints[i] = newBindPointState()
	}
	return s
}

// Begin resets all tracked state and, if a report is
// active and both compilers have caught up to the commits it captured,
// pops a diagnostic allocation for this recording. Otherwise instruments
// nothing for this command buffer (current stays nil).
func (s *State) Begin(cmdbuf interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.bindPoints {
		s.bindPoints[i] = newBindPointState()
	}
	s.pushConstants = nil
	s.renderPassActive = false
	s.current = nil
	s.breadcrumbDirty = false
	s.generation = 0
	s.featureMask = 0

	if s.reports == nil || !s.reports.Active() {
		return
	}
	if s.shader != nil && !s.shader.CaughtUpTo(s.reports.CapturedShaderCommit()) {
		return
	}
	if s.pipeline != nil && !s.pipeline.CaughtUpTo(s.reports.CapturedPipelineCommit()) {
		return
	}

	s.featureMask = s.reports.FeatureMask()
	alloc, err := s.alloc.PopAllocation(cmdbuf, cmdbuf)
	if err != nil {
		// Allocation exhaustion degrades to uninstrumented recording
		// rather than failing the application's Begin call.
		return
	}
	s.current = alloc
}

// Allocation returns the diagnostic allocation popped at Begin, or nil if
// this recording is uninstrumented.
func (s *State) Allocation() *allocator.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

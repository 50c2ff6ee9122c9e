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

package cmdbuf

import (
	"testing"

	"github.com/gapid-shaderlayer/gpuav/allocator"
	"github.com/gapid-shaderlayer/gpuav/registry"
)

type fakeLayout struct {
	hashes map[int]uint64
	diagSlot int
}

func (l *fakeLayout) DiagnosticSetIndex() int { return l.diagSlot }
func (l *fakeLayout) CrossCompatHash(set int) uint64 { return l.hashes[set] }
func (l *fakeLayout) PushConstantSize() int { return 16 }

type fakePipeline struct {
	layout *fakeLayout
	instrumented interface{}
	hasInst bool
}

func (p *fakePipeline) Instrumented() (interface{}, bool) { return p.instrumented, p.hasInst }
func (p *fakePipeline) Layout() Layout { return p.layout }

type fakeSet struct {
	native interface{}
	hash uint64
}

func (s *fakeSet) Native() interface{} { return s.native }
func (s *fakeSet) CrossCompatHash() uint64 { return s.hash }

type fakeReports struct {
	active bool
	featureMask uint64
	capturedShaderCommit, capturedPipelineCommit uint64
}

func (r *fakeReports) Active() bool { return r.active }
func (r *fakeReports) FeatureMask() uint64 { return r.featureMask }
func (r *fakeReports) CapturedShaderCommit() uint64 { return r.capturedShaderCommit }
func (r *fakeReports) CapturedPipelineCommit() uint64 { return r.capturedPipelineCommit }

type alwaysCaughtUp struct{}

func (alwaysCaughtUp) CaughtUpTo(uint64) bool { return true }

func newTestState(t *testing.T) (*State, *allocator.Allocator) {
	t.Helper()
	a := allocator.New(allocator.Options{})
	reg := registry.New()
	reports := &fakeReports{active: true, featureMask: 1}
	s := New(a, reg, reports, alwaysCaughtUp{}, alwaysCaughtUp{})
	return s, a
}

func TestCrossCompatDecayNotRebound(t *testing.T) {
	s, _ := newTestState(t)
	s.Begin("cb0")

	l1 := &fakeLayout{hashes: map[int]uint64{0: 111}, diagSlot: 1}
	p1 := &fakePipeline{layout: l1}
	s.BindPipeline(Compute, p1, nil)

	set := &fakeSet{native: "S", hash: 111}
	s.BindDescriptorSets(Compute, 0, []DescriptorSet{set}, nil)

	// Bind a second pipeline whose set-0 layout hash differs, without
	// rebinding the set.
	l2 := &fakeLayout{hashes: map[int]uint64{0: 222}, diagSlot: 1}
	p2 := &fakePipeline{layout: l2}
	s.BindPipeline(Compute, p2, nil)

	plans := s.RunInjected(nil)
	if _, ok := plans[Compute].Sets[0]; ok {
		t.Fatalf("decayed set at slot 0 should not appear in the restore plan")
	}
}

func TestStateRestoreIdempotent(t *testing.T) {
	s, _ := newTestState(t)
	s.Begin("cb0")

	l := &fakeLayout{hashes: map[int]uint64{0: 42}, diagSlot: 1}
	p := &fakePipeline{layout: l}
	s.BindPipeline(Compute, p, nil)
	set := &fakeSet{native: "S", hash: 42}
	s.BindDescriptorSets(Compute, 0, []DescriptorSet{set}, nil)
	s.PushConstants(0, []byte{1, 2, 3, 4})

	before := s.StateRestore(Compute)
	after := s.StateRestore(Compute)

	if len(before.Sets) != len(after.Sets) || before.Sets[0].Native() != after.Sets[0].Native() {
		t.Fatalf("StateRestore should be idempotent: %+v vs %+v", before, after)
	}
	if string(before.PushConstants) != string(after.PushConstants) {
		t.Fatalf("push constant shadow changed across idempotent calls")
	}
}

func TestBeginSkipsInstrumentationWhenNoReport(t *testing.T) {
	a := allocator.New(allocator.Options{})
	reg := registry.New()
	reports := &fakeReports{active: false}
	s := New(a, reg, reports, alwaysCaughtUp{}, alwaysCaughtUp{})
	s.Begin("cb0")
	if s.Allocation() != nil {
		t.Fatalf("Begin with no active report should not pop an allocation")
	}
}

func TestSubmitGroupsOnOneFence(t *testing.T) {
	s1, a := newTestState(t)
	s1.Begin("cb0")
	s2 := New(a, registry.New(), &fakeReports{active: true, featureMask: 1}, alwaysCaughtUp{}, alwaysCaughtUp{})
	s2.Begin("cb1")

	if s1.Allocation() == nil || s2.Allocation() == nil {
		t.Fatalf("both command buffers should have popped an allocation")
	}

	plan := Submit(a, []*State{s1, s2})
	if plan.Fence == nil {
		t.Fatalf("submit with live allocations should pop a fence")
	}
	if len(plan.Allocations) != 2 {
		t.Fatalf("expected 2 grouped allocations, got %d", len(plan.Allocations))
	}
	if plan.SyncPoint != s2.Allocation() {
		t.Fatalf("sync point should be the last allocation in the batch")
	}
	if !plan.SyncPoint.IsSyncPoint() {
		t.Fatalf("last allocation in batch should be marked as the sync point")
	}
}

func TestCancelFlushesAllocationWithSkipFence(t *testing.T) {
	s, a := newTestState(t)
	s.Begin("cb0")
	alloc := s.Allocation()
	if alloc == nil {
		t.Fatalf("expected a popped allocation")
	}

	var skipped, returned bool
	s.Cancel(func(interface{}) { skipped = true; alloc.SkipFence() }, func(interface{}) { returned = true; a.ReturnToPool(alloc) })

	if !skipped || !returned {
		t.Fatalf("Cancel should invoke both skipFence and returnToPool")
	}
	if s.Allocation() != nil {
		t.Fatalf("Cancel should clear the command buffer's current allocation")
	}
}

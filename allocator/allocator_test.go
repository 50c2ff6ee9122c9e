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

package allocator

import (
	"testing"
)

// TestHeapAllocFreeStaysDisjoint exercises property 1: a heap's
// live ranges remain pairwise disjoint across an interleaved alloc/free
// sequence.
func TestHeapAllocFreeStaysDisjoint(t *testing.T) {
	h := NewHeap(DeviceLocal, 256)

	var handles []uint64
	sizes := []uint64{32, 64, 16, 48, 8, 96}
	for _, s := range sizes {
		hnd, err := h.Alloc(s, 16, nil)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", s, err)
		}
		handles = append(handles, hnd)
		if !h.Disjoint() {
			t.Fatalf("heap ranges not disjoint after allocating %d", s)
		}
	}

	for i, hnd := range handles {
		if i%2 == 0 {
			if err := h.Free(hnd); err != nil {
				t.Fatalf("Free: %v", err)
			}
		}
		if !h.Disjoint() {
			t.Fatalf("heap ranges not disjoint after freeing handle %d", hnd)
		}
	}

	// Re-allocate into the freed gaps and check disjointness still holds.
	for _, s := range []uint64{8, 16, 24} {
		if _, err := h.Alloc(s, 8, nil); err != nil {
			t.Fatalf("re-Alloc(%d): %v", s, err)
		}
		if !h.Disjoint() {
			t.Fatal("heap ranges not disjoint after re-allocation into freed gaps")
		}
	}
}

// TestDefragCommitRebindsBeforeMove is scenario E6: a proposed
// defragmentation must invoke rebind before the heap's own bookkeeping
// moves, and the heap must remain disjoint and free of any observable
// aliasing window throughout.
func TestDefragCommitRebindsBeforeMove(t *testing.T) {
	h := NewHeap(DeviceLocal, 4096)

	a, _ := h.Alloc(256, 16, "a")
	_, _ = h.Alloc(64, 16, "b")
	c, _ := h.Alloc(200, 16, "c")
	if err := h.Free(a); err != nil {
		t.Fatal(err)
	}
	// c now sits after the gap left by a; proposing a defrag for c should
	// offer the freed leading gap.

	newOffset, ok := h.ProposeDefrag(c)
	if !ok {
		t.Fatal("expected a defrag proposal to move c into the freed leading gap")
	}

	var rebindCalledBeforeMove bool
	var observedOffsetAtRebindTime uint64
	err := h.CommitDefrag(c, newOffset, func(oldOffset, newOffset uint64) error {
		rebindCalledBeforeMove = true
		for _, sa := range h.LiveRanges() {
			if sa.Tag == "c" {
				observedOffsetAtRebindTime = sa.Offset
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("CommitDefrag: %v", err)
	}
	if !rebindCalledBeforeMove {
		t.Fatal("rebind callback never invoked")
	}
	if observedOffsetAtRebindTime == newOffset {
		t.Fatal("heap bookkeeping moved before rebind observed the old offset: aliasing window violated")
	}
	if !h.Disjoint() {
		t.Fatal("heap not disjoint after defrag commit")
	}

	found := false
	for _, sa := range h.LiveRanges() {
		if sa.Offset == newOffset && sa.Size == 200 {
			found = true
		}
	}
	if !found {
		t.Fatal("c was not recorded at its new offset after commit")
	}
}

// TestDefragCheckRejectsOverlap exercises the
// DIAGNOSTIC_ALLOCATOR_DEFRAGMENTATION_CHECK debug path.
func TestDefragCheckRejectsOverlap(t *testing.T) {
	DefragmentationCheckEnabled = true
	defer func() { DefragmentationCheckEnabled = false }

	h := NewHeap(DeviceLocal, 256)
	a, _ := h.Alloc(32, 16, "a")
	_, _ = h.Alloc(32, 16, "b")

	if err := h.CommitDefrag(a, 32, func(uint64, uint64) error { return nil }); err == nil {
		t.Fatal("expected CommitDefrag to reject a move overlapping a live range")
	}
}

// fakeFenceBackend models a GPU fence-signal source for PollFences tests.
type fakeFenceBackend struct {
	signalled map[*GroupedFence]bool
}

func (f *fakeFenceBackend) isSignalled(fence *GroupedFence) bool {
	return f.signalled[fence]
}

// TestFenceRefcountSafety is property 2: a grouped fence is
// only returned to the free pool once every allocation grouped onto it has
// released its reference, never before.
func TestFenceRefcountSafety(t *testing.T) {
	a := New(Options{})

	fence := a.PopFence()
	allocs := make([]*Allocation, 3)
	for i := range allocs {
		alloc, err := a.PopAllocation(i, i)
		if err != nil {
			t.Fatalf("PopAllocation: %v", err)
		}
		allocs[i] = alloc
	}
	a.GroupOnFence(fence, allocs)
	if got := fence.Refcount(); got != 3 {
		t.Fatalf("Refcount = %d, want 3", got)
	}

	backend := &fakeFenceBackend{signalled: map[*GroupedFence]bool{fence: true}}

	released := a.PollFences(backend.isSignalled)
	if len(released) != 3 {
		t.Fatalf("PollFences released %d allocations, want 3", len(released))
	}
	if fence.Refcount() != 0 {
		t.Fatalf("Refcount after releasing all allocations = %d, want 0", fence.Refcount())
	}

	// A second poll with nothing newly in flight must not double-release.
	if got := a.PollFences(backend.isSignalled); len(got) != 0 {
		t.Fatalf("second PollFences returned %d allocations, want 0 (nothing left in flight)", len(got))
	}
}

// TestFenceNotReleasedUntilAllReferencesGone is the negative half of
// property 2: with two allocations grouped on one fence, polling before
// both allocations begin their own release must not touch the fence's
// pool membership.
func TestFenceNotReleasedUntilAllReferencesGone(t *testing.T) {
	pool := NewFencePool()
	fence := pool.Pop()
	pool.Group(fence, 2)
	pool.Signal(fence)

	pool.Release(fence)
	if fence.Refcount() != 1 {
		t.Fatalf("Refcount after one release = %d, want 1", fence.Refcount())
	}

	// Popping again must not hand back the still-referenced fence.
	other := pool.Pop()
	if other == fence {
		t.Fatal("Pop returned a fence that still has outstanding references")
	}

	pool.Release(fence)
	if fence.Refcount() != 0 {
		t.Fatalf("Refcount after second release = %d, want 0", fence.Refcount())
	}
}

// TestPopAllocationGrowsByGrowthFactor exercises the message-limit growth
// policy: an allocation popped for a tag with observed history is sized to
// at least ceil(latent_count * growth_factor).
func TestPopAllocationGrowsByGrowthFactor(t *testing.T) {
	a := New(Options{GrowthFactor: 2})

	tag := "cmdbuf-1"
	a.ObserveMessageCount(tag, 10)

	alloc, err := a.PopAllocation(nil, tag)
	if err != nil {
		t.Fatalf("PopAllocation: %v", err)
	}
	if alloc.MessageLimit < 20 {
		t.Fatalf("MessageLimit = %d, want at least ceil(10*2)=20", alloc.MessageLimit)
	}
}

// TestPopAllocationReusesPooledEntryWhenBigEnough checks that a pooled
// allocation big enough for the required size is reused rather than
// triggering a fresh heap allocation.
func TestPopAllocationReusesPooledEntryWhenBigEnough(t *testing.T) {
	a := New(Options{GrowthFactor: 1.5})

	tag := "cmdbuf-2"
	first, err := a.PopAllocation(nil, tag)
	if err != nil {
		t.Fatalf("PopAllocation: %v", err)
	}
	a.ReturnToPool(first)

	second, err := a.PopAllocation(nil, tag)
	if err != nil {
		t.Fatalf("PopAllocation: %v", err)
	}
	if second != first {
		t.Fatal("expected the pooled allocation to be reused rather than a new one created")
	}
}

// TestSweepDeadAllocationsEvictsIdleEntries checks the idle-frame eviction
// policy.
func TestSweepDeadAllocationsEvictsIdleEntries(t *testing.T) {
	a := New(Options{DeadAllocationFrames: 2})

	alloc, err := a.PopAllocation(nil, "tag")
	if err != nil {
		t.Fatalf("PopAllocation: %v", err)
	}
	a.ReturnToPool(alloc)

	a.SweepDeadAllocations()
	a.SweepDeadAllocations()
	a.SweepDeadAllocations()

	a.mu.Lock()
	n := len(a.pooled)
	a.mu.Unlock()
	if n != 0 {
		t.Fatalf("pooled entries after exceeding DeadAllocationFrames = %d, want 0", n)
	}
}

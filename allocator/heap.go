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

// Package allocator implements the Diagnostic Allocator: the three-heap
// sub-allocator, the pool of in-flight diagnostic allocations, grouped
// fences, the async-transfer scheduler, and the CPU-side filter worker.
package allocator

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gapid-shaderlayer/gpuav/internal/interval"
)

// HeapClass names one of the three device-memory property classes a Heap
// can back.
type HeapClass int

const (
	DeviceLocal HeapClass = iota
	HostCached
	HostCoherent
)

// SubAllocation is one live allocation inside a Heap.
type SubAllocation struct {
	Offset uint64
	Size uint64
	Alignment uint64
	// Tag identifies the owning buffer/image for defragmentation rebind
	// callbacks; it is opaque to the heap.
	Tag interface{}
}

// heapBlock is one lazily created device-memory block backing part of a
// Heap's address space.
type heapBlock struct {
	size uint64
	live interval.RangeList // offsets are block-local
}

// Heap is a single logical address space of one HeapClass, made of one or
// more lazily allocated device-memory blocks: an ordered sequence of
// sub-allocations (offset, size, alignment) held as disjoint,
// monotonically offset-sorted ranges, kept per-block via
// interval.RangeList.
type Heap struct {
	mu sync.Mutex
	class HeapClass

	// MinBlockSize is the policy minimum new-block size.
	MinBlockSize uint64

	blocks []*heapBlock
	// allocations maps a global handle to its block index and local
	// sub-allocation, so Free and the defragmenter can find it again.
	allocations map[uint64]location
	nextHandle uint64
}

type location struct {
	block int
	sub SubAllocation
}

// NewHeap creates an empty Heap of the given class.
func NewHeap(class HeapClass, minBlockSize uint64) *Heap {
	if minBlockSize == 0 {
		minBlockSize = 1 << 20
	}
	return &Heap{
		class: class,
		MinBlockSize: minBlockSize,
		allocations: map[uint64]location{},
	}
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// Alloc reserves size bytes aligned to align, creating a new block lazily
// if no existing block has room. It returns an opaque handle used by Free
// and the defragmenter.
func (h *Heap) Alloc(size, align uint64, tag interface{}) (handle uint64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.blocks {
		if off, ok := firstFit(b, size, align); ok {
			interval.Merge(&b.live, interval.Span{Start: off, End: off + size}, false)
			handle = h.nextHandle
			h.nextHandle++
			h.allocations[handle] = location{block: i, sub: SubAllocation{Offset: off, Size: size, Alignment: align, Tag: tag}}
			return handle, nil
		}
	}

	blockSize := size
	if h.MinBlockSize > blockSize {
		blockSize = h.MinBlockSize
	}
	b := &heapBlock{size: blockSize}
	off := uint64(0)
	b.live = append(b.live, interval.Span{Start: off, End: off + size}.Range())
	h.blocks = append(h.blocks, b)

	handle = h.nextHandle
	h.nextHandle++
	h.allocations[handle] = location{block: len(h.blocks) - 1, sub: SubAllocation{Offset: off, Size: size, Alignment: align, Tag: tag}}
	return handle, nil
}

// firstFit walks b's live ranges (sorted, disjoint) and returns the offset
// of the first gap (or trailing space) that fits size bytes aligned to
// align.
func firstFit(b *heapBlock, size, align uint64) (uint64, bool) {
	prevEnd := uint64(0)
	for _, r := range b.live {
		start := alignUp(prevEnd, align)
		if start+size <= r.First {
			return start, true
		}
		prevEnd = r.First + r.Count
	}
	start := alignUp(prevEnd, align)
	if start+size <= b.size {
		return start, true
	}
	return 0, false
}

// Free releases handle back to its block's free space.
func (h *Heap) Free(handle uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	loc, ok := h.allocations[handle]
	if !ok {
		return errors.Errorf("allocator: free of unknown handle %d", handle)
	}
	delete(h.allocations, handle)
	b := h.blocks[loc.block]
	interval.Remove(&b.live, interval.Span{Start: loc.sub.Offset, End: loc.sub.Offset + loc.sub.Size})
	return nil
}

// Disjoint reports whether every block's live ranges are pairwise
// disjoint — the core invariant.
func (h *Heap) Disjoint() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.blocks {
		if !interval.Disjoint(b.live) {
			return false
		}
	}
	return true
}

// LiveRanges returns a copy of the live sub-allocations, for tests.
func (h *Heap) LiveRanges() []SubAllocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SubAllocation, 0, len(h.allocations))
	for _, loc := range h.allocations {
		out = append(out, loc.sub)
	}
	return out
}

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
	"github.com/pkg/errors"

	"github.com/gapid-shaderlayer/gpuav/internal/interval"
)

// DefragmentationCheckEnabled mirrors the
// DIAGNOSTIC_ALLOCATOR_DEFRAGMENTATION_CHECK compile-time debug flag
//: when set, a proposed rebind is checked for overlap
// against the block's current live ranges before it is committed.
var DefragmentationCheckEnabled = false

// ProposeDefrag computes a candidate new offset for handle within its
// current block, packing it as far toward the front as the first-fit walk
// allows. It returns ok=false if handle is already optimally placed (no
// smaller offset is available).
func (h *Heap) ProposeDefrag(handle uint64) (newOffset uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	loc, exists := h.allocations[handle]
	if !exists {
		return 0, false
	}
	b := h.blocks[loc.block]

	without := make(interval.RangeList, 0, len(b.live))
	for _, r := range b.live {
		if r.First == loc.sub.Offset && r.Count == loc.sub.Size {
			continue
		}
		without = append(without, r)
	}

	candidate, found := firstFit(&heapBlock{size: b.size, live: without}, loc.sub.Size, loc.sub.Alignment)
	if !found || candidate >= loc.sub.Offset {
		return 0, false
	}
	return candidate, true
}

// CommitDefrag moves handle to newOffset, invoking rebind (which must
// retarget the underlying GPU buffer/image binding) strictly before the
// heap's bookkeeping is updated, so no GPU aliasing between the old and
// new ranges is ever observable.
func (h *Heap) CommitDefrag(handle uint64, newOffset uint64, rebind func(oldOffset, newOffset uint64) error) error {
	h.mu.Lock()
	loc, exists := h.allocations[handle]
	if !exists {
		h.mu.Unlock()
		return errors.Errorf("allocator: defrag commit of unknown handle %d", handle)
	}
	b := h.blocks[loc.block]

	if DefragmentationCheckEnabled {
		proposed := interval.Span{Start: newOffset, End: newOffset + loc.sub.Size}
		without := make(interval.RangeList, 0, len(b.live))
		for _, r := range b.live {
			if r.First == loc.sub.Offset && r.Count == loc.sub.Size {
				continue
			}
			without = append(without, r)
		}
		if interval.Overlaps(without, proposed) {
			h.mu.Unlock()
			return errors.Errorf("allocator: defrag range [%d,%d) overlaps a live range", proposed.Start, proposed.End)
		}
	}
	h.mu.Unlock()

	if err := rebind(loc.sub.Offset, newOffset); err != nil {
		return errors.Wrap(err, "allocator: defrag rebind failed")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	interval.Remove(&b.live, interval.Span{Start: loc.sub.Offset, End: loc.sub.Offset + loc.sub.Size})
	interval.Merge(&b.live, interval.Span{Start: newOffset, End: newOffset + loc.sub.Size}, false)
	loc.sub.Offset = newOffset
	h.allocations[handle] = loc
	return nil
}

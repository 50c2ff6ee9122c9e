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

import "github.com/gapid-shaderlayer/gpuav/allocator"

// SubmitPlan is what Submit decides for one application vkQueueSubmit /
// ExecuteCommandLists call: the grouped fence
// every non-nil allocation in the batch was assigned to, those
// allocations (for the caller to push to the allocator once the
// underlying submit call succeeds), and the sync-point allocation. It is
// the zero SubmitPlan (nil Fence) when no command buffer in the batch
// recorded a diagnostic allocation.
type SubmitPlan struct {
	Fence *allocator.GroupedFence
	Allocations []*allocator.Allocation
	// SyncPoint is the last non-nil allocation in the batch — the one
	// IsSyncPoint reports true for — which anchors the async-transfer
	// semaphore a dedicated transfer queue must wait on.
	SyncPoint *allocator.Allocation
}

// Submit pops one grouped fence and groups every command buffer's active
// allocation in cmdbufs onto it. It does not itself perform the
// host-API submit call or push allocations into the allocator's pending-
// filter queue — those are host-API-shim and present-time concerns
// — it only decides the grouping.
func Submit(alloc *allocator.Allocator, cmdbufs []*State) SubmitPlan {
	var allocs []*allocator.Allocation
	for _, s := range cmdbufs {
		s.mu.Lock()
		a := s.current
		s.mu.Unlock()
		if a != nil {
			allocs = append(allocs, a)
		}
	}
	if len(allocs) == 0 {
		return SubmitPlan{}
	}
	fence := alloc.PopFence()
	alloc.GroupOnFence(fence, allocs)
	return SubmitPlan{Fence: fence, Allocations: allocs, SyncPoint: allocs[len(allocs)-1]}
}

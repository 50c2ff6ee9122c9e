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

import "sync"

// BeginRenderPass informs each active pass (via inject, which records
// whatever layer-owned commands that pass needs at render-pass-begin
// time) and then runs the state-restore procedure.
func (s *State) BeginRenderPass(inject func()) map[BindPoint]RestorePlan {
	s.mu.Lock()
	s.renderPassActive = true
	s.mu.Unlock()
	return s.RunInjected(inject)
}

// EndRenderPass mirrors BeginRenderPass at render-pass end.
func (s *State) EndRenderPass(inject func()) map[BindPoint]RestorePlan {
	s.mu.Lock()
	s.renderPassActive = false
	s.mu.Unlock()
	return s.RunInjected(inject)
}

// RenderPassActive reports whether a render pass is currently open on
// this command buffer.
func (s *State) RenderPassActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderPassActive
}

// PostTransferOp is invoked after a forwarded Copy/Blit/Clear/Resolve
// call: it asks the initialization-tracking pass (via markInitialized) to
// mark the destination ranges as initialized, then runs state-restore
//.
func (s *State) PostTransferOp(markInitialized func()) map[BindPoint]RestorePlan {
	return s.RunInjected(markInitialized)
}

// TransferRecorder abstracts the recorded transfer command buffer +
// semaphore an Allocation's End step needs: either the async path (record begin/copy/end
// under the transfer-pool lock) or an inline same-queue copy.
type TransferRecorder interface {
	// HasTransferQueue reports whether a dedicated transfer queue backs
	// this recorder; it decides which of RecordAsyncTransfer/InlineCopy
	// End calls.
	HasTransferQueue() bool
	// RecordAsyncTransfer records begin/copy/end for alloc's mirror copy
	// on the dedicated transfer queue's pre-recorded command buffer.
	RecordAsyncTransfer(alloc interface{}) error
	// InlineCopy performs the copy on the same queue, at command-buffer
	// end, when no dedicated transfer queue exists.
	InlineCopy(alloc interface{}) error
}

// transferPoolMu serializes access to the shared transfer-pool recording
// surface (lock order position 3,): "the transfer-pool lock
// during end-command-buffer" is the one suspension point this package's
// End introduces on the application thread.
var transferPoolMu sync.Mutex

// End finalizes this recording's diagnostic allocation: if
// a transfer queue exists, record the transfer command buffer under the
// transfer-pool lock; otherwise copy inline. Returns the allocation that
// must be carried into Submit, or nil if this recording was
// uninstrumented.
func (s *State) End(xfer TransferRecorder) (interface{}, error) {
	s.mu.Lock()
	alloc := s.current
	s.mu.Unlock()
	if alloc == nil {
		return nil, nil
	}
	if xfer == nil {
		return alloc, nil
	}
	if xfer.HasTransferQueue() {
		transferPoolMu.Lock()
		err := xfer.RecordAsyncTransfer(alloc)
		transferPoolMu.Unlock()
		return alloc, err
	}
	return alloc, xfer.InlineCopy(alloc)
}

// Cancel flushes this recording's active allocation back to the allocator
// with skip_fence=true. It is a no-op if this recording
// had no active allocation.
func (s *State) Cancel(skipFence func(alloc interface{}), returnToPool func(alloc interface{})) {
	s.mu.Lock()
	alloc := s.current
	s.current = nil
	s.mu.Unlock()
	if alloc == nil {
		return
	}
	if skipFence != nil {
		skipFence(alloc)
	}
	if returnToPool != nil {
		returnToPool(alloc)
	}
}

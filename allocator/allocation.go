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
	"sync"
)

// State is one of the Diagnostic Allocation's lifecycle states: Pooled -> Active(cmdbuf) -> InFlight(fence) -> AwaitingTransfer ->
// Ready -> Filtering -> Pooled.
type State int

const (
	Pooled State = iota
	Active
	InFlight
	AwaitingTransfer
	Ready
	Filtering
)

func (s State) String() string {
	switch s {
	case Pooled:
		return "Pooled"
	case Active:
		return "Active"
	case InFlight:
		return "InFlight"
	case AwaitingTransfer:
		return "AwaitingTransfer"
	case Ready:
		return "Ready"
	case Filtering:
		return "Filtering"
	}
	return "?"
}

// Allocation is one scoped diagnostic-allocation lifecycle:
// a device-local DiagnosticData buffer, a CPU-visible mirror, a descriptor
// set bound to both, a transfer command buffer/semaphore, and an owning
// grouped fence.
type Allocation struct {
	mu sync.Mutex

	MessageLimit uint32
	DeviceHandle uint64 // heap handle for the device-local buffer
	MirrorHandle uint64 // heap handle for the host-visible mirror

	state State

	Tag interface{} // usually a command-buffer handle
	cmdbuf interface{}
	fence *GroupedFence
	skipFence bool
	syncPoint bool
	idleFrames int

	// Mirror is the CPU-visible DiagnosticData header + messages, valid
	// to read only once the owning fence has signalled.
	Mirror DiagnosticData
}

// DiagnosticData mirrors Diagnostic Data Header.
type DiagnosticData struct {
	MessageCount uint32
	MessageLimit uint32
	TransferredCount uint32
	DebugWord uint32
	Messages []uint32 // packed 32-bit Diagnostic Message records
}

func (a *Allocation) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Begin transitions Pooled -> Active(cmdbuf), recording at most one active
// command buffer per allocation.
func (a *Allocation) Begin(cmdbuf interface{}, tag interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Active
	a.cmdbuf = cmdbuf
	a.Tag = tag
	a.skipFence = false
	a.idleFrames = 0
}

// Submit transitions Active -> InFlight(fence), assigning the grouped
// fence this allocation was batched onto.
func (a *Allocation) Submit(fence *GroupedFence, syncPoint bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = InFlight
	a.fence = fence
	a.syncPoint = syncPoint
}

// BeginTransfer transitions InFlight -> AwaitingTransfer once the owning
// fence has signalled and an async copy has been scheduled.
func (a *Allocation) BeginTransfer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AwaitingTransfer
}

// MarkReady transitions AwaitingTransfer -> Ready: the mirror may now be
// read by the filter worker.
func (a *Allocation) MarkReady(data DiagnosticData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Ready
	a.Mirror = data
}

// BeginFilter transitions Ready -> Filtering.
func (a *Allocation) BeginFilter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Filtering
}

// Recycle transitions back to Pooled, clearing per-use state.
func (a *Allocation) Recycle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Pooled
	a.cmdbuf = nil
	a.Tag = nil
	a.fence = nil
	a.syncPoint = false
	a.Mirror = DiagnosticData{}
}

// SkipFence marks this allocation for immediate return to the pool
// without waiting on a fence.
func (a *Allocation) SkipFence() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipFence = true
}

func (a *Allocation) skippingFence() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipFence
}

// IsSyncPoint reports whether this allocation was marked as the last
// allocation of its submit batch.
func (a *Allocation) IsSyncPoint() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncPoint
}

func (a *Allocation) Fence() *GroupedFence {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fence
}

// Tick ages this allocation by one frame while it sits idle in the pool;
// callers destroy it once it exceeds the dead-allocation threshold.
func (a *Allocation) Tick() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idleFrames++
	return a.idleFrames
}

func (a *Allocation) resetIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idleFrames = 0
}

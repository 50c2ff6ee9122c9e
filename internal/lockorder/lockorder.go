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

// Package lockorder documents (it does not enforce at runtime) the global
// lock acquisition order required across this module. Every package
// that takes more than one of these locks in a single compound
// operation names its position here.
package lockorder

// Position is a named rung on the global lock-ordering ladder. Lower values
// must be acquired before higher ones; no code path may hold two
// non-adjacent-or-equal positions out of order.
type Position int

const (
	// DeviceStateTable is the shortest-held lock: device/command-state
	// lookup tables.
	DeviceStateTable Position = iota + 1
	// ResourceLock guards all resource maps (Tracked Device Memory /
	// Resource Maps in).
	ResourceLock
	// TransferPool guards the per-queue-family transfer/copy-emulation
	// command pool.
	TransferPool
	// AllocatorHeap guards the heap sub-allocator's range-list state.
	AllocatorHeap
	// AllocatorDescriptor guards the allocator's descriptor-set
	// bookkeeping for in-flight diagnostic allocations.
	AllocatorDescriptor
	// ReportLock guards report-mutating operations (begin/end/flush).
	ReportLock
	// CommandFamilyIndex guards queue-family/command-pool indexing.
	CommandFamilyIndex
	// PoolInternalLock is a descriptor pool's own membership lock.
	PoolInternalLock
)

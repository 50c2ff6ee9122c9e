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

	"github.com/gapid-shaderlayer/gpuav/internal/crash"
	"github.com/gapid-shaderlayer/gpuav/internal/xlog"
	"github.com/gapid-shaderlayer/gpuav/registry"
)

// Decoder turns a Ready allocation's raw mirror bytes into registry
// messages. The real implementation lives on the hostapi side of the
// layer; the allocator only needs the seam.
type Decoder func(data DiagnosticData) []registry.Message

// FilterWorker drains allocations once their mirror is Ready, clamps
// their reported message count to the buffer's capacity, dispatches the
// decoded messages through a Registry, and returns the allocation to its
// Allocator's pool. It runs a single background goroutine, since
// filtering is inherently serial against the Registry.
type FilterWorker struct {
	alloc *Allocator
	reg *registry.Registry
	decode Decoder
	version func() registry.CmdBufVersion

	pending chan *Allocation
	done chan struct{}

	overshootWarn *xlog.Sparse
	sink *xlog.Sink

	// OnMessage, if set, is invoked once per message as it is dispatched
	// through the Registry, reporting whether the owning pass retained it
	// (false for a message whose type has no registered owner). The layer
	// package uses this to maintain received/exported/filtered accounting
	// per message.
	OnMessage func(tag interface{}, msg registry.Message, retained bool)

	// OnFiltered, if set, is invoked after each allocation has been fully
	// processed, reporting how many messages the mirror claimed (reported)
	// versus how many actually survived the buffer-capacity clamp and
	// reached the Registry at all (clamped). reported > clamped means the
	// mirror overran its allocation's MessageLimit and some messages were
	// dropped before they could ever be decoded or handed to a pass; the
	// layer package folds that count into the active report.Report's
	// latent-overshoot bucket.
	OnFiltered func(tag interface{}, reported, clamped uint32)
}

// NewFilterWorker creates a FilterWorker and starts its background
// goroutine. queueDepth bounds how many Ready allocations may be
// outstanding before Submit blocks, which in turn is what Allocator's
// ApplyThrottling reacts to.
func NewFilterWorker(a *Allocator, reg *registry.Registry, decode Decoder, version func() registry.CmdBufVersion, queueDepth int, sink *xlog.Sink) *FilterWorker {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	w := &FilterWorker{
		alloc: a,
		reg: reg,
		decode: decode,
		version: version,
		pending: make(chan *Allocation, queueDepth),
		done: make(chan struct{}),
		overshootWarn: xlog.NewSparse(30),
		sink: sink,
	}
	crash.Go(w.run)
	return w
}

// Submit enqueues a Ready allocation for filtering. It blocks the caller
// while queueDepth allocations are already queued.
func (w *FilterWorker) Submit(alloc *Allocation) {
	w.pending <- alloc
}

// PendingDepth reports how many allocations are queued for filtering,
// which Allocator.ApplyThrottling uses to decide whether to raise the
// throttle threshold.
func (w *FilterWorker) PendingDepth() int {
	return len(w.pending)
}

// Shutdown stops the worker goroutine once the current queue drains.
func (w *FilterWorker) Shutdown() {
	close(w.pending)
	<-w.done
}

func (w *FilterWorker) run() {
	defer close(w.done)
	for alloc := range w.pending {
		w.process(alloc)
	}
}

func (w *FilterWorker) process(alloc *Allocation) {
	alloc.BeginFilter()

	data := alloc.Mirror
	reported := data.MessageCount
	clamped := reported
	if clamped > data.MessageLimit {
		clamped = data.MessageLimit
		if w.overshootWarn.Tick() {
			xlog.In(context.Background(), w.sink).Warning().
			With("tag", alloc.Tag).
			Log("allocator: allocation reported %d messages, clamped to limit %d", reported, data.MessageLimit)
		}
	}
	data.MessageCount = clamped

	messages := w.decode(data)
	if len(messages) > int(clamped) {
		messages = messages[:clamped]
	}

	var version registry.CmdBufVersion
	if w.version != nil {
		version = w.version()
	}

	tag := alloc.Tag
	var observe func(registry.Message, bool)
	if w.OnMessage != nil {
		observe = func(m registry.Message, retained bool) {
			w.OnMessage(tag, m, retained)
		}
	}
	w.reg.HandleWithObserver(version, messages, observe)

	w.alloc.ObserveMessageCount(tag, reported)
	if w.OnFiltered != nil {
		w.OnFiltered(tag, reported, clamped)
	}
	w.alloc.ReturnToPool(alloc)
}

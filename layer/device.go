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

// Package layer wires every other package into a single owned context:
// one Device replacing a process-wide map<void*, Table*> style registry.
// A Device owns the Diagnostic Registry, the Shader Cache, both compiler
// pools, the Diagnostic Allocator and its filter worker, and the single
// active Report.
package layer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gapid-shaderlayer/gpuav/allocator"
	"github.com/gapid-shaderlayer/gpuav/cmdbuf"
	"github.com/gapid-shaderlayer/gpuav/compiler"
	"github.com/gapid-shaderlayer/gpuav/hostapi"
	"github.com/gapid-shaderlayer/gpuav/internal/xlog"
	"github.com/gapid-shaderlayer/gpuav/registry"
	"github.com/gapid-shaderlayer/gpuav/report"
	"github.com/gapid-shaderlayer/gpuav/shadercache"
)

// commitObserver adapts compiler.ShaderPool/PipelinePool's Commit-typed
// IsCommitPushed onto cmdbuf.CommitObserver's uint64 signature.
type commitObserver struct {
	caughtUpTo func(uint64) bool
}

func (c commitObserver) CaughtUpTo(commit uint64) bool { return c.caughtUpTo(commit) }

func shaderObserver(p *compiler.ShaderPool) commitObserver {
	return commitObserver{caughtUpTo: func(c uint64) bool { return p.IsCommitPushed(compiler.Commit(c)) }}
}

func pipelineObserver(p *compiler.PipelinePool) commitObserver {
	return commitObserver{caughtUpTo: func(c uint64) bool { return p.IsCommitPushed(compiler.Commit(c)) }}
}

// Options configures a Device's owned components.
type Options struct {
	ShaderWorkers int
	PipelineWorkers int
	FilterQueueDepth int
	Allocator allocator.Options
	Cache shadercache.Options
	Sink *xlog.Sink
}

// Device is the single context a host-API device maps onto.
type Device struct {
	Table *hostapi.Table

	Registry *registry.Registry
	Cache *shadercache.Cache
	Shaders *compiler.ShaderPool
	Pipelines *compiler.PipelinePool
	Alloc *allocator.Allocator
	Filter *allocator.FilterWorker
	PQI *PQI

	ShaderObserver commitObserver
	PipelineObserver commitObserver

	mu sync.Mutex
	active *Report // the single recording session, or nil

	// cmdbufGeneration is the command-buffer version stamped on every
	// filtered batch of GPU messages (registry.CmdBufVersion), bumped
	// once per submission so a pass can discard stale-generation
	// messages per its own Handle logic.
	cmdbufGeneration atomic.Uint64

	sink *xlog.Sink
}

// BumpGeneration advances the command-buffer generation stamped on
// subsequently filtered messages. Call once per queue submission.
func (d *Device) BumpGeneration() registry.CmdBufVersion {
	return registry.CmdBufVersion(d.cmdbufGeneration.Add(1))
}

// NewDevice builds a Device with every component wired together, but does
// not yet resolve the host-API dispatch table (see Device.Init).
func NewDevice(ctx context.Context, opts Options) *Device {
	if opts.ShaderWorkers <= 0 {
		opts.ShaderWorkers = 4
	}
	if opts.PipelineWorkers <= 0 {
		opts.PipelineWorkers = 2
	}

	d := &Device{
		Registry: registry.New(),
		Cache: shadercache.New(ctx, opts.Cache),
		Shaders: compiler.NewShaderPool(opts.ShaderWorkers),
		Pipelines: compiler.NewPipelinePool(opts.PipelineWorkers),
		PQI: NewPQI(),
		sink: opts.Sink,
	}
	opts.Allocator.Sink = opts.Sink
	d.Alloc = allocator.New(opts.Allocator)
	d.ShaderObserver = shaderObserver(d.Shaders)
	d.PipelineObserver = pipelineObserver(d.Pipelines)

	decode := func(data allocator.DiagnosticData) []registry.Message {
		return decodeMirror(data)
	}
	version := func() registry.CmdBufVersion { return registry.CmdBufVersion(d.cmdbufGeneration.Load()) }
	d.Filter = allocator.NewFilterWorker(d.Alloc, d.Registry, decode, version, opts.FilterQueueDepth, opts.Sink)
	d.Filter.OnMessage = d.onMessage
	d.Filter.OnFiltered = d.onFiltered

	return d
}

// Init resolves the required host-API entry points through r, failing
// fatally if any are unresolved.
func (d *Device) Init(r hostapi.Resolver) error {
	t, err := hostapi.Build(r)
	if err != nil {
		return err
	}
	d.Table = t
	return nil
}

// NewCommandBuffer returns a cmdbuf.State bound to this Device's
// allocator, registry and active-report/commit state, ready for its
// caller to drive through Begin/.../End once per command-buffer
// recording.
func (d *Device) NewCommandBuffer() *cmdbuf.State {
	return cmdbuf.New(d.Alloc, d.Registry, d, d.ShaderObserver, d.PipelineObserver)
}

// EndCommandBuffer finalizes s's diagnostic allocation, recording its
// transfer (async, via the allocator's dedicated transfer queue, or
// inline) through this Device's allocator, which itself implements
// cmdbuf.TransferRecorder.
func (d *Device) EndCommandBuffer(s *cmdbuf.State) (*allocator.Allocation, error) {
	alloc, err := s.End(d.Alloc)
	if err != nil || alloc == nil {
		return nil, err
	}
	return alloc.(*allocator.Allocation), nil
}

// decodeMirror unpacks a Ready allocation's raw mirror words into
// registry.Message records.
func decodeMirror(data allocator.DiagnosticData) []registry.Message {
	out := make([]registry.Message, 0, len(data.Messages))
	for _, w := range data.Messages {
		out = append(out, registry.Message{
				Type: uint8(w >> 26),
				Body: w & 0x3ffffff,
		})
	}
	return out
}

// onMessage folds one decoded message into the active report's
// received/exported/filtered accounting. A
// message whose type has no registered owner is recorded as filtered,
// same as one a pass explicitly declined to retain.
func (d *Device) onMessage(_ interface{}, msg registry.Message, retained bool) {
	d.mu.Lock()
	r := d.active
	d.mu.Unlock()
	if r == nil {
		return
	}
	r.inner.AddMessage(report.Message{Code: uint32(msg.Type), SGUID: msg.Body}, retained)
}

// onFiltered folds one allocation's buffer-capacity overshoot into the
// active report's latent-overshoot counter: clamped < reported means the mirror claimed more
// messages than its allocation's MessageLimit could hold, so some
// messages never reached decode or onMessage at all.
func (d *Device) onFiltered(_ interface{}, reported, clamped uint32) {
	if reported <= clamped {
		return
	}
	d.mu.Lock()
	r := d.active
	d.mu.Unlock()
	if r == nil {
		return
	}
	r.inner.RecordLatentShoots(0, uint64(reported-clamped))
}

// Shutdown stops every background worker owned by this Device.
func (d *Device) Shutdown() {
	d.Filter.Shutdown()
	d.Shaders.Shutdown()
	d.Pipelines.Shutdown()
}

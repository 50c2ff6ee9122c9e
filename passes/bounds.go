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

// Package passes holds one illustrative instrumentation pass per kind —
// bounds checking, resource initialization tracking and data-race
// detection — so that registry.Registry has real callers to dispatch
// to. The passes' own instrumented-shader logic (what gets injected into
// the rewritten bitcode) is out of scope: these types only implement the
// CPU-side registry.Pass contract (message decoding, report generation)
// a real pass would also need.
package passes

import (
	"fmt"

	"github.com/gapid-shaderlayer/gpuav/registry"
)

// MsgOutOfBoundsRead and MsgOutOfBoundsWrite are the reserved message-type
// values within the 64-entry
// message-type space this pass owns for ResourceIndexOutOfBounds{Read,Write}
// diagnostics.
const (
	MsgOutOfBoundsRead uint8 = iota
	MsgOutOfBoundsWrite
)

// BoundsMessage is the decoded shape of a bounds-check message. Body
// packs index in the low 13 bits and the resource PUID in the next 13
// bits of the record's 26-bit body.
type BoundsMessage struct {
	Write bool
	ResourcePUID uint32
	Index uint32
}

const (
	boundsIndexBits = 13
	boundsIndexMask = (1 << boundsIndexBits) - 1
)

// EncodeBoundsMessage packs m into a registry.Message for test fixtures
// and for the (out-of-scope) GPU-side encoder to mirror.
func EncodeBoundsMessage(m BoundsMessage) registry.Message {
	typ := MsgOutOfBoundsRead
	if m.Write {
		typ = MsgOutOfBoundsWrite
	}
	body := (m.ResourcePUID&boundsIndexMask)<<boundsIndexBits | (m.Index & boundsIndexMask)
	return registry.Message{Type: typ, Body: body}
}

func decodeBoundsMessage(msg registry.Message) BoundsMessage {
	return BoundsMessage{
		Write: msg.Type == MsgOutOfBoundsWrite,
		ResourcePUID: (msg.Body >> boundsIndexBits) & boundsIndexMask,
		Index: msg.Body & boundsIndexMask,
	}
}

// BoundsPass is the bounds-check instrumentation pass's CPU-side half: it
// owns the two out-of-bounds message types and accumulates decoded
// violations for reporting.
type BoundsPass struct {
	feature registry.FeatureBit
	storage uint16
	desc uint16
	pc uint16

	violations []BoundsMessage
}

// NewBoundsPass allocates this pass's UIDs from reg and returns the pass,
// ready to be registered.
func NewBoundsPass(reg *registry.Registry, feature registry.FeatureBit) (*BoundsPass, error) {
	p := &BoundsPass{feature: feature}
	var err error
	if p.storage, err = reg.AllocUID(registry.StorageUID); err != nil {
		return nil, err
	}
	if p.desc, err = reg.AllocUID(registry.DescriptorUID); err != nil {
		return nil, err
	}
	if p.pc, err = reg.AllocUID(registry.PushConstantUID); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *BoundsPass) Name() string { return "bounds" }
func (p *BoundsPass) Feature() registry.FeatureBit { return p.feature }
func (p *BoundsPass) MessageTypes() []uint8 {
	return []uint8{MsgOutOfBoundsRead, MsgOutOfBoundsWrite}
}

// Handle decodes msg and accumulates it; every bounds message is retained.
func (p *BoundsPass) Handle(_ registry.CmdBufVersion, msg registry.Message) bool {
	p.violations = append(p.violations, decodeBoundsMessage(msg))
	return true
}

func (p *BoundsPass) EnumerateStorage(out []registry.StorageDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.StorageDescriptor{UID: p.storage, Size: 4}
	return 1
}

func (p *BoundsPass) EnumerateDescriptors(out []registry.DescriptorDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.DescriptorDescriptor{UID: p.desc, Binding: 0, Count: 1}
	return 1
}

func (p *BoundsPass) EnumeratePushConstants(out []registry.PushConstantDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.PushConstantDescriptor{UID: p.pc, Offset: 0, Size: 4}
	return 1
}

// UpdatePushConstants writes this pass's single 4-byte enable flag at
// offset 0 of its reserved range.
func (p *BoundsPass) UpdatePushConstants(_ registry.CmdBufVersion, data []byte) int {
	if len(data) < 4 {
		return 0
	}
	data[0] = 1
	return 4
}

func (p *BoundsPass) GenerateReport() []string {
	out := make([]string, 0, len(p.violations))
	for _, v := range p.violations {
		kind := "Read"
		if v.Write {
			kind = "Write"
		}
		out = append(out, fmt.Sprintf("ResourceIndexOutOfBounds%s: resource_puid=%d index=%d", kind, v.ResourcePUID, v.Index))
	}
	return out
}

func (p *BoundsPass) StepReport() map[string]uint64 {
	return map[string]uint64{"bounds.violations": uint64(len(p.violations))}
}

func (p *BoundsPass) Flush() { p.violations = nil }

// Violations returns the decoded messages accumulated so far (test/report
// introspection).
func (p *BoundsPass) Violations() []BoundsMessage {
	return append([]BoundsMessage(nil), p.violations...)
}

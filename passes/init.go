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

package passes

import (
	"fmt"
	"sync"

	"github.com/gapid-shaderlayer/gpuav/internal/interval"
	"github.com/gapid-shaderlayer/gpuav/registry"
)

// MsgUninitializedRead is the message type an InitPass owns: a shader
// read of a byte range of resource memory no Copy/Clear/Store has marked
// as initialized yet.
const MsgUninitializedRead uint8 = 0

// InitMessage is the decoded shape of an uninitialized-read message.
type InitMessage struct {
	ResourcePUID uint32
	Offset uint32
}

const initOffsetBits = 13

// EncodeInitMessage packs m into a registry.Message.
func EncodeInitMessage(m InitMessage) registry.Message {
	body := (m.ResourcePUID&((1<<initOffsetBits)-1))<<initOffsetBits | (m.Offset & ((1 << initOffsetBits) - 1))
	return registry.Message{Type: MsgUninitializedRead, Body: body}
}

func decodeInitMessage(msg registry.Message) InitMessage {
	mask := uint32((1 << initOffsetBits) - 1)
	return InitMessage{ResourcePUID: (msg.Body >> initOffsetBits) & mask, Offset: msg.Body & mask}
}

// InitPass is the resource-initialization-tracking pass's CPU-side half
//. It
// tracks, per resource PUID, which byte ranges are known-initialized, and
// decodes uninitialized-read violations the GPU reports.
type InitPass struct {
	feature registry.FeatureBit
	storage uint16
	desc uint16
	pc uint16

	mu sync.Mutex
	ranges map[uint32]interval.RangeList
	violations []InitMessage
}

// NewInitPass allocates this pass's UIDs from reg.
func NewInitPass(reg *registry.Registry, feature registry.FeatureBit) (*InitPass, error) {
	p := &InitPass{feature: feature, ranges: map[uint32]interval.RangeList{}}
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

// MarkInitialized records that [offset, offset+size) of resource is now
// backed by observed data, called after a forwarded Copy/Blit/Clear/
// Resolve.
func (p *InitPass) MarkInitialized(resource uint32, offset, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rl := p.ranges[resource]
	interval.Merge(&rl, interval.Span{Start: offset, End: offset + size}, true)
	p.ranges[resource] = rl
}

// IsInitialized reports whether [offset, offset+size) of resource is
// fully covered by prior MarkInitialized calls.
func (p *InitPass) IsInitialized(resource uint32, offset, size uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if size == 0 {
		return true
	}
	rl := p.ranges[resource]
	for _, r := range rl {
		s := r.Span()
		if s.Start <= offset && offset+size <= s.End {
			return true
		}
	}
	return false
}

func (p *InitPass) Name() string { return "initialization" }
func (p *InitPass) Feature() registry.FeatureBit { return p.feature }
func (p *InitPass) MessageTypes() []uint8 { return []uint8{MsgUninitializedRead} }

func (p *InitPass) Handle(_ registry.CmdBufVersion, msg registry.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = append(p.violations, decodeInitMessage(msg))
	return true
}

func (p *InitPass) EnumerateStorage(out []registry.StorageDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.StorageDescriptor{UID: p.storage, Size: 4}
	return 1
}

func (p *InitPass) EnumerateDescriptors(out []registry.DescriptorDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.DescriptorDescriptor{UID: p.desc, Binding: 0, Count: 1}
	return 1
}

func (p *InitPass) EnumeratePushConstants(out []registry.PushConstantDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.PushConstantDescriptor{UID: p.pc, Offset: 0, Size: 4}
	return 1
}

func (p *InitPass) UpdatePushConstants(_ registry.CmdBufVersion, data []byte) int {
	if len(data) < 4 {
		return 0
	}
	data[0] = 1
	return 4
}

func (p *InitPass) GenerateReport() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.violations))
	for _, v := range p.violations {
		out = append(out, fmt.Sprintf("UninitializedResourceRead: resource_puid=%d offset=%d", v.ResourcePUID, v.Offset))
	}
	return out
}

func (p *InitPass) StepReport() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]uint64{"initialization.violations": uint64(len(p.violations))}
}

func (p *InitPass) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = nil
}

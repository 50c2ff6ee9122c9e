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

	"github.com/gapid-shaderlayer/gpuav/registry"
)

// MsgConcurrentAccess is the message type a DataRacePass owns: two
// dispatches within the same submission observed to touch overlapping
// resource byte ranges without an intervening barrier, at least one being
// a write.
const MsgConcurrentAccess uint8 = 0

// DataRaceMessage is the decoded shape of a concurrent-access message.
type DataRaceMessage struct {
	ResourcePUID uint32
	FirstAccessID uint32
}

const raceAccessIDBits = 13

// EncodeDataRaceMessage packs m into a registry.Message.
func EncodeDataRaceMessage(m DataRaceMessage) registry.Message {
	mask := uint32((1 << raceAccessIDBits) - 1)
	body := (m.ResourcePUID&mask)<<raceAccessIDBits | (m.FirstAccessID & mask)
	return registry.Message{Type: MsgConcurrentAccess, Body: body}
}

func decodeDataRaceMessage(msg registry.Message) DataRaceMessage {
	mask := uint32((1 << raceAccessIDBits) - 1)
	return DataRaceMessage{ResourcePUID: (msg.Body >> raceAccessIDBits) & mask, FirstAccessID: msg.Body & mask}
}

// DataRacePass is the data-race-detection pass's CPU-side half.
type DataRacePass struct {
	feature registry.FeatureBit
	storage uint16
	desc uint16
	pc uint16

	mu sync.Mutex
	violations []DataRaceMessage
}

// NewDataRacePass allocates this pass's UIDs from reg.
func NewDataRacePass(reg *registry.Registry, feature registry.FeatureBit) (*DataRacePass, error) {
	p := &DataRacePass{feature: feature}
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

func (p *DataRacePass) Name() string { return "data-race" }
func (p *DataRacePass) Feature() registry.FeatureBit { return p.feature }
func (p *DataRacePass) MessageTypes() []uint8 { return []uint8{MsgConcurrentAccess} }

func (p *DataRacePass) Handle(_ registry.CmdBufVersion, msg registry.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = append(p.violations, decodeDataRaceMessage(msg))
	return true
}

func (p *DataRacePass) EnumerateStorage(out []registry.StorageDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.StorageDescriptor{UID: p.storage, Size: 4}
	return 1
}

func (p *DataRacePass) EnumerateDescriptors(out []registry.DescriptorDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.DescriptorDescriptor{UID: p.desc, Binding: 0, Count: 1}
	return 1
}

func (p *DataRacePass) EnumeratePushConstants(out []registry.PushConstantDescriptor) int {
	if out == nil {
		return 1
	}
	out[0] = registry.PushConstantDescriptor{UID: p.pc, Offset: 0, Size: 4}
	return 1
}

func (p *DataRacePass) UpdatePushConstants(_ registry.CmdBufVersion, data []byte) int {
	if len(data) < 4 {
		return 0
	}
	data[0] = 1
	return 4
}

func (p *DataRacePass) GenerateReport() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.violations))
	for _, v := range p.violations {
		out = append(out, fmt.Sprintf("ConcurrentResourceAccess: resource_puid=%d first_access=%d", v.ResourcePUID, v.FirstAccessID))
	}
	return out
}

func (p *DataRacePass) StepReport() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]uint64{"datarace.violations": uint64(len(p.violations))}
}

func (p *DataRacePass) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = nil
}

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

// BoundPipeline is what BindPipeline decided to hand to the forwarded
// host-API call: either the application's own pipeline, or the
// instrumented one plus the diagnostic descriptor set that must be bound
// alongside it at the layout's reserved trailing set index.
type BoundPipeline struct {
	Native interface{}
	Instrumented bool
	DiagnosticSet interface{}
	DiagnosticSetSlot int
}

// BindPipeline caches the pipeline handle and decides whether to forward
// the application's source pipeline or the instrumented one: instrumented is only selected once an allocation exists for this
// recording AND the Pipeline Compiler has published an instrumented
// pipeline for it.
func (s *State) BindPipeline(bp BindPoint, p Pipeline, diagnosticSetForSlot func(slot int) interface{}) BoundPipeline {
	s.mu.Lock()
	defer s.mu.Unlock()

	bps := s.bindPoints[bp]
	bps.pipeline = p
	bps.boundInstrumented = false

	if instrumented, ok := p.Instrumented(); ok && s.current != nil {
		bps.boundInstrumented = true
		out := BoundPipeline{Native: instrumented, Instrumented: true}
		if layout := p.Layout(); layout != nil {
			slot := layout.DiagnosticSetIndex()
			out.DiagnosticSetSlot = slot
			if diagnosticSetForSlot != nil {
				out.DiagnosticSet = diagnosticSetForSlot(slot)
			}
		}
		return out
	}
	return BoundPipeline{Native: p}
}

// activePipeline returns the bind point's cached pipeline, or nil.
func (s *State) activePipeline(bp BindPoint) Pipeline {
	return s.bindPoints[bp].pipeline
}

// BindDescriptorSets unwraps the given sets to native handles and mirrors
// them into this bind point's tracked-set state, starting at firstSet
//.
func (s *State) BindDescriptorSets(bp BindPoint, firstSet int, sets []DescriptorSet, dynamicOffsets [][]uint32) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	bps := s.bindPoints[bp]
	native := make([]interface{}, len(sets))
	for i, set := range sets {
		idx := firstSet + i
		var offs []uint32
		if i < len(dynamicOffsets) {
			offs = dynamicOffsets[i]
		}
		var layout Layout
		if bps.pipeline != nil {
			layout = bps.pipeline.Layout()
		}
		ts := &trackedSet{
			set: set,
			layout: layout,
			setIndex: idx,
			dynamicOffsets: offs,
			recordedHash: set.CrossCompatHash(),
		}
		bps.sets[idx] = ts
		native[i] = set.Native()
		s.breadcrumbDirty = s.breadcrumbDirty || ts.recordedHash != ts.lastBreadcrumb
	}
	return native
}

// PushConstants snapshots the given bytes into the push-constant shadow
// at offset. The layer's own reserved tail range is appended on
// top of the application's bytes by UpdatePushConstants at draw time, not
// here.
func (s *State) PushConstants(offset int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := offset + len(data)
	if end > len(s.pushConstants) {
		grown := make([]byte, end)
		copy(grown, s.pushConstants)
		s.pushConstants = grown
	}
	copy(s.pushConstants[offset:end], data)
}

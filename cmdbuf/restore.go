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

// SetRebind is one descriptor set a RestorePlan asks the caller to
// re-bind: the set's native handle and the dynamic offsets it was last
// bound with.
type SetRebind struct {
	Native interface{}
	DynamicOffsets []uint32
}

// RestorePlan is what the state-restore procedure asks the
// host-API shim to (re-)issue after layer-injected work, so that from the
// application's perspective no binding state is perturbed across its own
// subsequent calls. Producing host-API calls is out of this package's
// scope; State only decides what must be reissued.
type RestorePlan struct {
	PushConstants []byte
	Pipeline interface{}
	Sets map[int]SetRebind
}

// StateRestore builds the RestorePlan for bp: the cached
// push-constant shadow bytes, the previously active pipeline's native
// handle, and every tracked set whose recorded cross-compat hash still
// matches bp's currently active layout. A tracked set whose hash no
// longer matches (because the application rebound a different-layout
// pipeline at bp without rebinding the set) is decayed: it is dropped
// from tracking and is not rebound here.
// StateRestore only reads and prunes tracked-set state, never changes a
// hash already recorded, so repeated calls against an unchanged layout
// produce an identical plan.
func (s *State) StateRestore(bp BindPoint) RestorePlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	bps := s.bindPoints[bp]
	plan := RestorePlan{
		PushConstants: append([]byte(nil), s.pushConstants...),
		Sets: map[int]SetRebind{},
	}
	if bps.pipeline == nil {
		return plan
	}
	if instrumented, ok := bps.pipeline.Instrumented(); ok && bps.boundInstrumented {
		plan.Pipeline = instrumented
	} else {
		plan.Pipeline = bps.pipeline
	}

	layout := bps.pipeline.Layout()
	for idx, ts := range bps.sets {
		if layout != nil && layout.CrossCompatHash(idx) != ts.recordedHash {
			delete(bps.sets, idx) // decayed: layout moved on since this set was bound
			continue
		}
		plan.Sets[idx] = SetRebind{Native: ts.set.Native(), DynamicOffsets: ts.dynamicOffsets}
	}
	return plan
}

// RunInjected invokes inject (the layer's own recorded commands — a
// bounds-check dispatch, an initialization-tracking copy, ...) and
// returns the RestorePlan that must be (re-)issued immediately afterward
// for both tracked bind points, bracketing every piece of layer-injected
// work as requires.
func (s *State) RunInjected(inject func()) map[BindPoint]RestorePlan {
	if inject != nil {
		inject()
	}
	out := map[BindPoint]RestorePlan{}
	for bp := BindPoint(0); bp < numBindPoints; bp++ {
		out[bp] = s.StateRestore(bp)
	}
	return out
}

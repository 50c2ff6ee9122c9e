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

import "github.com/gapid-shaderlayer/gpuav/registry"

// flushBreadcrumbs clears the dirty flag and bumps the generation counter
// a tracked set's commit_hash happens-before is attributed to. Callers
// hold s.mu.
func (s *State) flushBreadcrumbs() {
	if !s.breadcrumbDirty {
		return
	}
	s.generation++
	for _, bps := range s.bindPoints {
		for _, ts := range bps.sets {
			ts.lastBreadcrumb = ts.recordedHash
		}
	}
	s.breadcrumbDirty = false
}

// PreDispatch is invoked before forwarding a Draw/Dispatch/Indirect call
//: flush dirty breadcrumbs, then ask the registry for the
// active passes' push-constant bytes and return them to be pushed onto
// the layer's reserved tail range.
func (s *State) PreDispatch() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushBreadcrumbs()
	if s.current == nil || s.registry == nil {
		return nil
	}
	size := 0
	for _, bps := range s.bindPoints {
		if bps.pipeline == nil {
			continue
		}
		if l := bps.pipeline.Layout(); l != nil {
			if n := l.PushConstantSize(); n > size {
				size = n
			}
		}
	}
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	s.registry.UpdatePushConstants(registry.CmdBufVersion(s.generation), s.featureMask, buf)
	return buf
}

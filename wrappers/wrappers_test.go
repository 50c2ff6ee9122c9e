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

package wrappers

import (
	"testing"

	"github.com/gapid-shaderlayer/gpuav/internal/handle"
)

func TestSetUpdateRejectedOnceInvalid(t *testing.T) {
	s := NewSet(1, nil)
	if err := s.Update(TrackedWrite{Binding: 0, Type: BufferInfo}); err != nil {
		t.Fatalf("update on valid set: %v", err)
	}
	if s.CommitHash() != 1 {
		t.Fatalf("commit hash = %d, want 1", s.CommitHash())
	}
	s.Invalidate()
	if err := s.Update(TrackedWrite{Binding: 1, Type: BufferInfo}); err != ErrInvalidSet {
		t.Fatalf("update on invalid set: got %v, want ErrInvalidSet", err)
	}
}

func TestSetCrossCompatHashSyntheticZero(t *testing.T) {
	s := NewSet(1, nil)
	if h := s.CrossCompatHash(); h != 0 {
		t.Fatalf("synthetic set hash = %d, want 0", h)
	}
	layout := &SetLayout{CrossCompatHash: 42}
	s2 := NewSet(2, layout)
	if h := s2.CrossCompatHash(); h != 42 {
		t.Fatalf("layout hash = %d, want 42", h)
	}
}

func TestLayoutDiagnosticSetAppended(t *testing.T) {
	l := NewLayout([]uint64{10, 20}, []PushConstantRange{{PassName: "bounds", Offset: 0, Size: 16}})
	if l.DiagnosticSetIndex() != 2 {
		t.Fatalf("diagnostic set index = %d, want 2", l.DiagnosticSetIndex())
	}
	if l.CrossCompatHash(2) != 0 {
		t.Fatalf("synthetic set hash should be 0")
	}
	if l.CrossCompatHash(0) != 10 || l.CrossCompatHash(1) != 20 {
		t.Fatalf("public set hashes not preserved")
	}
	if l.PushConstantSize() != 16 {
		t.Fatalf("push constant size = %d, want 16", l.PushConstantSize())
	}
}

func TestModuleUsagesRefcount(t *testing.T) {
	m := NewModule([]byte("src"))
	m.Retain()
	if m.Release() {
		t.Fatalf("release should not hit zero yet")
	}
	if !m.Release() {
		t.Fatalf("release should hit zero on second release")
	}
	if _, ok := m.InstrumentedBitcode(); ok {
		t.Fatalf("instrumented should not be published yet")
	}
	m.SetInstrumented([]byte("bitcode"))
	got, ok := m.InstrumentedBitcode()
	if !ok || string(got) != "bitcode" {
		t.Fatalf("instrumented bitcode = %q, %v", got, ok)
	}
}

func TestPoolResetSnapshotsMembership(t *testing.T) {
	arena := handle.NewArena[*Set]()
	p := NewPool(arena)
	r1 := arena.Create(NewSet(1, nil))
	p.Track(r1)
	snap := p.Reset()
	if len(snap) != 1 || snap[0] != r1 {
		t.Fatalf("reset snapshot = %v, want [%v]", snap, r1)
	}
	if more := p.Reset(); len(more) != 0 {
		t.Fatalf("second reset should see no new members, got %v", more)
	}
}

func TestPipelineInstrumentedPublication(t *testing.T) {
	p := &Pipeline{Kind: Compute}
	if _, ok := p.Instrumented(); ok {
		t.Fatalf("instrumented should be unset initially")
	}
	p.SetInstrumented(7)
	got, ok := p.Instrumented()
	if !ok || got != 7 {
		t.Fatalf("instrumented = %d, %v, want 7, true", got, ok)
	}
}

func TestCloneIsIndependentCopy(t *testing.T) {
	src := []byte{1, 2, 3}
	a := Clone(src)
	src[0] = 99
	if a.Bytes()[0] != 1 {
		t.Fatalf("clone should not alias source buffer")
	}
}

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

package rewriter

import "testing"

func TestRelativeRefRoundTrips(t *testing.T) {
	cases := []struct{ anchor, absolute uint32 }{
		{10, 3}, {10, 9}, {0, 0}, {100, 1},
	}
	for _, c := range cases {
		ref := NewRelativeRef(c.anchor, c.absolute)
		if got := ref.Absolute(); got != c.absolute {
			t.Errorf("NewRelativeRef(%d,%d).Absolute() = %d, want %d", c.anchor, c.absolute, got, c.absolute)
		}
	}
}

func TestForwardRefRoundTrips(t *testing.T) {
	cases := []struct{ anchor, provisional uint32 }{
		{5, 8}, {0, 1}, {20, 20},
	}
	for _, c := range cases {
		ref := NewForwardRef(c.anchor, c.provisional)
		if got := ref.Absolute(); got != c.provisional {
			t.Errorf("NewForwardRef(%d,%d).Absolute() = %d, want %d", c.anchor, c.provisional, got, c.provisional)
		}
	}
}

func TestIsForward(t *testing.T) {
	if !IsForward(10, 10) {
		t.Error("IsForward(10,10) = false, want true (anchor itself is not yet defined)")
	}
	if !IsForward(10, 15) {
		t.Error("IsForward(10,15) = false, want true")
	}
	if IsForward(10, 9) {
		t.Error("IsForward(10,9) = true, want false (backward reference)")
	}
}

func TestIDMapBranchMergesChildHead(t *testing.T) {
	root := NewIDMap()
	root.Allocate()
	root.Allocate()

	snap := root.CreateSnapshot()
	if got := snap.Head(); got != 2 {
		t.Fatalf("snapshot head = %d, want 2", got)
	}
	snap.Allocate()
	snap.Allocate()
	snap.Allocate()
	snap.Branch()

	if got := root.Head(); got != 5 {
		t.Fatalf("root head after Branch = %d, want 5", got)
	}

	second := root.CreateSnapshot()
	if got := second.Head(); got != 5 {
		t.Fatalf("second snapshot head = %d, want 5 (no collision with first)", got)
	}
}

func TestIDMapRevertDoesNotAdvanceParent(t *testing.T) {
	root := NewIDMap()
	root.Allocate()

	snap := root.CreateSnapshot()
	snap.Allocate()
	snap.Allocate()
	snap.Revert()

	if got := root.Head(); got != 1 {
		t.Fatalf("root head after Revert = %d, want 1 (unchanged)", got)
	}
}

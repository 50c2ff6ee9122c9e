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

// TestSVOXSequentialPreservesWidth checks the width half of property 7:
// a sequential SVOX value of width N reports N lanes, and extracting each
// lane yields its pre-allocated lane id.
func TestSVOXSequentialPreservesWidth(t *testing.T) {
	svox := NewSVOXTable()
	elemTy := Type{Kind: TypeScalar}

	next := uint32(100)
	alloc := func() uint32 {
		id := next
		next++
		return id
	}

	resultID, lanes := svox.AllocateSequential(alloc, 4, elemTy)
	if got := svox.SVOXCount(resultID); got != 4 {
		t.Fatalf("SVOXCount = %d, want 4", got)
	}
	if len(lanes) != 4 {
		t.Fatalf("len(lanes) = %d, want 4", len(lanes))
	}

	for i := 0; i < 4; i++ {
		lane, needsExtract, err := svox.ExtractElement(resultID, i)
		if err != nil {
			t.Fatalf("ExtractElement(%d): %v", i, err)
		}
		if needsExtract {
			t.Fatalf("ExtractElement(%d) unexpectedly required an ExtractVal for a sequential SVOX value", i)
		}
		if lane != lanes[i] {
			t.Fatalf("ExtractElement(%d) = %d, want pre-allocated lane id %d", i, lane, lanes[i])
		}
	}

	if err := svox.ValidatePostcondition(resultID, ILAddressChain); err != nil {
		t.Fatalf("ValidatePostcondition: %v", err)
	}
}

func TestSVOXExtractOutOfRange(t *testing.T) {
	svox := NewSVOXTable()
	next := uint32(0)
	alloc := func() uint32 { id := next; next++; return id }
	resultID, _ := svox.AllocateSequential(alloc, 3, Type{Kind: TypeScalar})

	if _, _, err := svox.ExtractElement(resultID, 3); err == nil {
		t.Fatal("expected an error extracting lane 3 of a width-3 SVOX value")
	}
}

func TestSVOXSingularPassesThrough(t *testing.T) {
	svox := NewSVOXTable()
	if got := svox.SVOXCount(42); got != 1 {
		t.Fatalf("SVOXCount of an untracked id = %d, want 1", got)
	}
	id, needsExtract, err := svox.ExtractElement(42, 0)
	if err != nil {
		t.Fatalf("ExtractElement: %v", err)
	}
	if needsExtract {
		t.Fatal("Singular/untracked value should never require an ExtractVal")
	}
	if id != 42 {
		t.Fatalf("ExtractElement(42,0) = %d, want 42 (identity for Singular)", id)
	}
}

// TestSVOXTagNeverReassigned enforces the "a user-mapping tag is never
// changed after assignment" invariant.
func TestSVOXTagNeverReassigned(t *testing.T) {
	svox := NewSVOXTable()
	if err := svox.Assign(7, VectorOnStruct, 2, Type{Kind: TypeScalar}, nil); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := svox.Assign(7, VectorOnSequential, 2, Type{Kind: TypeScalar}, []uint32{1, 2}); err == nil {
		t.Fatal("expected an error reassigning id 7 to a different SVOX tag")
	}
	// Re-assigning the same tag/width is idempotent, not an error.
	if err := svox.Assign(7, VectorOnStruct, 2, Type{Kind: TypeScalar}, nil); err != nil {
		t.Fatalf("idempotent re-Assign: %v", err)
	}
}

// TestSVOXRejectsUnexposedVectorFromNonPassthrough enforces the
// postcondition that only UnexposedInstruction may produce a vector
// result over an Unexposed element type.
func TestSVOXRejectsUnexposedVectorFromNonPassthrough(t *testing.T) {
	svox := NewSVOXTable()
	next := uint32(0)
	alloc := func() uint32 { id := next; next++; return id }
	resultID, _ := svox.AllocateSequential(alloc, 2, Type{Kind: TypeUnexposed})

	if err := svox.ValidatePostcondition(resultID, ILAdd); err == nil {
		t.Fatal("expected ValidatePostcondition to reject a non-passthrough op producing an Unexposed-element vector")
	}
	if err := svox.ValidatePostcondition(resultID, ILUnexposedInstruction); err != nil {
		t.Fatalf("ValidatePostcondition should accept the passthrough op: %v", err)
	}
}

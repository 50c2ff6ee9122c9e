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

// simpleAddFunction is: %0 = alloca i32; %1 = load %0; %2 = add %1, %1;
// store %2, %0; ret void. Record index == definition order.
func simpleAddFunction() []Record {
	i32 := Type{Kind: TypeScalar}
	return []Record{
		{Opcode: OpAlloca, HasValue: true, Type: i32}, // 0: %0
		{Opcode: OpLoad, HasValue: true, Type: i32, Operands: []uint32{0}}, // 1: %1 = load %0
		{Opcode: OpBinAdd, HasValue: true, Type: i32, Operands: []uint32{1, 1}}, // 2: %2 = add %1,%1
		{Opcode: OpStore, HasValue: false, Operands: []uint32{0, 2}}, // 3: store %2,%0
		{Opcode: OpRet, HasValue: false}, // 4: ret
	}
}

func TestParseFunctionBlockAssignsSequentialIDs(t *testing.T) {
	fn, err := ParseFunctionBlock(simpleAddFunction(), nil)
	if err != nil {
		t.Fatalf("ParseFunctionBlock: %v", err)
	}
	if len(fn.Instructions) != 5 {
		t.Fatalf("got %d instructions, want 5", len(fn.Instructions))
	}
	if fn.Instructions[2].Op != ILAdd {
		t.Fatalf("instruction 2 op = %v, want Add", fn.Instructions[2].Op)
	}
	// %1 is used twice by the add; both operands must decode to the same
	// absolute id.
	add := fn.Instructions[2]
	if len(add.Operands) != 2 {
		t.Fatalf("add has %d operands, want 2", len(add.Operands))
	}
	if add.Operands[0].Absolute() != add.Operands[1].Absolute() {
		t.Fatalf("add operands decode to different ids: %d vs %d", add.Operands[0].Absolute(), add.Operands[1].Absolute())
	}
	if add.Operands[0].Absolute() != fn.Instructions[1].ResultID {
		t.Fatalf("add operand decodes to %d, want load's result id %d", add.Operands[0].Absolute(), fn.Instructions[1].ResultID)
	}
}

// TestForwardReferencePhiResolves exercises a Phi record whose incoming
// value is defined later in the block (a loop back-edge), the case
// calls out forward refs for.
func TestForwardReferencePhiResolves(t *testing.T) {
	i32 := Type{Kind: TypeScalar}
	records := []Record{
		{Opcode: OpPhi, HasValue: true, Type: i32, Incoming: []PhiIncoming{
				{Value: 2, Branch: 0}, // forward reference to record 2, defined below
		}},
		{Opcode: OpBinAdd, HasValue: true, Type: i32, Operands: []uint32{0, 0}},
		{Opcode: OpBinSub, HasValue: true, Type: i32, Operands: []uint32{1, 1}}, // record index 2
	}

	fn, err := ParseFunctionBlock(records, nil)
	if err != nil {
		t.Fatalf("ParseFunctionBlock: %v", err)
	}
	phi := fn.Instructions[0]
	if len(phi.Incoming) != 1 {
		t.Fatalf("phi has %d incoming values, want 1", len(phi.Incoming))
	}
	if got, want := phi.Incoming[0].Value.Absolute(), fn.Instructions[2].ResultID; got != want {
		t.Fatalf("phi incoming value decodes to %d, want forward-referenced record 2's result id %d", got, want)
	}
}

// TestUnknownOpcodeIsFatal exercises "Unknown records in
// a function block are fatal during parse" failure semantics.
func TestUnknownOpcodeIsFatal(t *testing.T) {
	records := []Record{{Opcode: LLVMOpcode(9999), HasValue: false}}
	if _, err := ParseFunctionBlock(records, nil); err == nil {
		t.Fatal("expected ParseFunctionBlock to reject an unrecognized opcode")
	}
}

// TestCastCanonicalizesUnsignedType exercises the non-canonical-type
// redirect from failure semantics.
func TestCastCanonicalizesUnsignedType(t *testing.T) {
	records := []Record{
		{Opcode: OpAlloca, HasValue: true, Type: Type{Kind: TypeScalar}},
		{Opcode: OpCastZExt, HasValue: true, Type: Type{Kind: TypeScalar, Unsigned: true}, Operands: []uint32{0}},
	}
	fn, err := ParseFunctionBlock(records, nil)
	if err != nil {
		t.Fatalf("ParseFunctionBlock: %v", err)
	}
	if fn.Instructions[1].Type.Unsigned {
		t.Fatal("cast result type still marked Unsigned after canonicalization")
	}
}

// TestRoundTripAllocationAndWritePass exercises // "Compilation (IL -> bitcode)": the allocation pass then the write pass
// must reproduce the same operand graph the parse stage built, and every
// operand must resolve to a real reserved id.
func TestRoundTripAllocationAndWritePass(t *testing.T) {
	fn, err := ParseFunctionBlock(simpleAddFunction(), nil)
	if err != nil {
		t.Fatalf("ParseFunctionBlock: %v", err)
	}

	mapping := AllocationPass(fn, 0)
	records, err := WritePass(fn, mapping)
	if err != nil {
		t.Fatalf("WritePass: %v", err)
	}
	if len(records) != len(fn.Instructions) {
		t.Fatalf("got %d bitcode records, want %d", len(records), len(fn.Instructions))
	}

	// store's second operand must resolve to the add's reserved bitcode
	// id, and its first operand to the alloca's.
	storeIdx := 3
	allocaID, _ := mapping.ID(0)
	addID, _ := mapping.ID(2)
	store := records[storeIdx]
	if len(store.Operands) != 2 {
		t.Fatalf("store has %d operands, want 2", len(store.Operands))
	}
	if store.Operands[0] != allocaID {
		t.Fatalf("store address operand = %d, want alloca's bitcode id %d", store.Operands[0], allocaID)
	}
	if store.Operands[1] != addID {
		t.Fatalf("store value operand = %d, want add's bitcode id %d", store.Operands[1], addID)
	}
}

// TestStitchTwoFunctionsDoNotCollide exercises Stitching's
// segmented id_map guarantee across function boundaries.
func TestStitchTwoFunctionsDoNotCollide(t *testing.T) {
	fnA, err := ParseFunctionBlock(simpleAddFunction(), nil)
	if err != nil {
		t.Fatalf("parse fnA: %v", err)
	}
	fnB, err := ParseFunctionBlock(simpleAddFunction(), nil)
	if err != nil {
		t.Fatalf("parse fnB: %v", err)
	}

	s := NewStitcher(0)
	out, nextID, err := s.CompileModule([]*Function{fnA, fnB}, nil)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d stitched functions, want 2", len(out))
	}
	if out[0].LastID > out[1].FirstID {
		t.Fatalf("fnA's ids [%d,%d) overlap fnB's starting at %d", out[0].FirstID, out[0].LastID, out[1].FirstID)
	}
	if nextID != out[1].LastID {
		t.Fatalf("module head after stitching = %d, want %d", nextID, out[1].LastID)
	}
}

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

// AddressClass marks a Load/Store/Alloca record's address kind. Buffer,
// Texture and Resource addresses short-circuit into typed IL loads rather
// than pointer loads.
type AddressClass int

const (
	AddressGeneric AddressClass = iota
	AddressBuffer
	AddressTexture
	AddressResource
)

// PhiIncoming is one (value, branch) pair of a Phi record.
type PhiIncoming struct {
	Value uint32 // absolute operand ID, record-index-relative
	Branch int // block-local branch index
}

// Record is one decoded function-block record, as produced by the
// physical-block scanner that precedes this layer (BlockScanner, in
// blockscan.go). Index fields that reference other values (Operands,
// PhiIncoming.Value) carry the absolute record index of their defining
// record; ParseFunctionBlock turns those into RelativeRef-encoded
// operands. A forward reference is a RelativeRef too, whose Value wraps
// around in uint32 arithmetic; the parser does not use ForwardRef.
type Record struct {
	Opcode LLVMOpcode
	HasValue bool
	Type Type

	Operands []uint32 // absolute defining-record indices

	// Cmp
	Predicate Predicate

	// GEP / InBoundsGEP
	Base uint32
	Indices []GEPIndex

	// Br / Switch
	BranchTargets []int

	// Phi
	Incoming []PhiIncoming

	// Call
	CalleeSymbol string
	DXILOpcode int // used for a "dx.op." call when no scanner resolves CallArgs[0]
	CallArgs []uint32

	// Load / Store / Alloca
	Address AddressClass

	// ExtractVal / InsertVal / ExtractElt / InsertElt
	ExtractIndices []GEPIndex
	DynamicIndex bool
}

// BlockScanner records the boundaries of the physical blocks that precede
// the function block in bitcode layout order (type, global/constants,
// metadata, symbol, function-attribute), deferring their contents to the
// function-block rewriter. summarizes this scan layer without
// detailing it; it is kept present here as a real, if thin, pass so the
// function-block rewriter always has a caller that has already resolved
// the constant map and symbol table the function block depends on (DXIL
// intrinsic opcode resolution, in particular, reads through the constant
// map this scan populates).
type BlockScanner struct {
	TypeBlockEnd int
	ConstantsBlockEnd int
	MetadataBlockEnd int
	SymbolBlockEnd int
	FunctionAttrEnd int

	// ConstantMap resolves a constant-pool index (as seen in a Call
	// record's first argument) to its integer value, used to recover a
	// dx.op.* intrinsic's opcode number.
	ConstantMap map[uint32]int64
}

// NewBlockScanner wraps a constant map already resolved by the preceding
// physical-block scan.
func NewBlockScanner(constants map[uint32]int64) *BlockScanner {
	return &BlockScanner{ConstantMap: constants}
}

// ResolveDXILOpcode looks up a dx.op.* call's opcode argument through the
// constant map populated by the physical-block scan.
func (s *BlockScanner) ResolveDXILOpcode(opcodeConstant uint32) (int, bool) {
	v, ok := s.ConstantMap[opcodeConstant]
	return int(v), ok
}

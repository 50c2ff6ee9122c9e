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

import "github.com/pkg/errors"

// UnexposedTraits carries the two booleans downstream analyses need for
// an UnexposedInstruction: whether it can be folded away
// when its operands are immediates, and whether its result is divergent
// across lanes.
type UnexposedTraits struct {
	BackendOpcode int
	Symbol string
	FoldableWithImmediates bool
	Divergent bool
}

// Instruction is one backend-IL instruction produced from a function
// block record.
type Instruction struct {
	ResultID uint32
	HasValue bool
	Op ILOp
	Type Type
	Predicate Predicate

	Operands []RelativeRef
	BranchTargets []int
	Incoming []PhiIncomingRef
	Indices []GEPIndex

	Traits UnexposedTraits
}

// PhiIncomingRef is one resolved (value, branch) pair of a Phi
// instruction; Value decodes through Value.Absolute().
type PhiIncomingRef struct {
	Value RelativeRef
	Branch int
}

// Function is the parsed result of one LLVM function block.
type Function struct {
	IDs *IDMap
	SVOX *SVOXTable
	Instructions []Instruction
}

// divergentDXILOpcodes classifies the fixed DXIL opcode-trait tables
// references ("driven by opcode tables from the DXIL
// specification — the set is fixed and enumerated"). Only the traits
// this rewriter actually consumes downstream (bounds/race instrumentation
// decisions in the passes package) are modeled.
var divergentDXILOpcodes = map[DXILOpcode]bool{
	DXWaveReadFirst: true, DXWaveAnyTrue: true, DXWaveAllTrue: true,
	DXWaveBallot: true, DXWaveRead: true, DXWaveAllEqual: true,
	DXWaveSum: true, DXWaveProduct: true, DXWaveMin: true, DXWaveMax: true,
	DXWavePrefixSum: true, DXWavePrefixProduct: true, DXWavePrefixCountBits: true,
}

// ParseFunctionBlock implements "Parsing a function
// block": a single pass over records, allocating a result ID per
// value-producing record, encoding every operand relative to the
// record's anchor (the id_map head at the time the record is visited),
// and translating each record to its IL instruction per the opcode
// tables. scanner resolves a Call record's dx.op.* opcode argument
// through the constant map the preceding physical-block scan produced.
func ParseFunctionBlock(records []Record, scanner *BlockScanner) (*Function, error) {
	f := &Function{IDs: NewIDMap(), SVOX: NewSVOXTable()}

	defined := map[uint32]uint32{} // absolute record index -> allocated result ID
	provisional := map[uint32]uint32{} // absolute record index -> forward-ref placeholder

	resolve := func(anchor uint32, absolute uint32) RelativeRef {
		if id, ok := defined[absolute]; ok {
			return NewRelativeRef(anchor, id)
		}
		id, ok := provisional[absolute]
		if !ok {
			id = f.IDs.Allocate()
			provisional[absolute] = id
		}
		return NewRelativeRef(anchor, id)
	}

	for i, rec := range records {
		anchor := f.IDs.Head()
		absIdx := uint32(i)

		var resultID uint32
		if rec.HasValue {
			if id, ok := provisional[absIdx]; ok {
				resultID = id
			} else {
				resultID = f.IDs.Allocate()
			}
			defined[absIdx] = resultID
		}

		inst, err := translateRecord(f, rec, anchor, resultID, resolve, scanner)
		if err != nil {
			return nil, errors.Wrapf(err, "function block record %d", i)
		}
		inst.ResultID = resultID
		inst.HasValue = rec.HasValue
		f.Instructions = append(f.Instructions, inst)

		if rec.HasValue {
			if err := f.SVOX.ValidatePostcondition(resultID, inst.Op); err != nil {
				return nil, errors.Wrapf(err, "function block record %d", i)
			}
		}
	}
	return f, nil
}

func translateRecord(f *Function, rec Record, anchor uint32, resultID uint32, resolve func(uint32, uint32) RelativeRef, scanner *BlockScanner) (Instruction, error) {
	switch rec.Opcode {
	case OpBinAdd, OpBinSub, OpBinMul, OpBinDiv, OpBinRem, OpBinShl, OpBinShr, OpBinAnd, OpBinOr, OpBinXor:
		if len(rec.Operands) != 2 {
			return Instruction{}, errors.Errorf("BinOp record requires 2 operands, got %d", len(rec.Operands))
		}
		return Instruction{
			Op: binOpTranslation[rec.Opcode],
			Type: rec.Type,
			Operands: []RelativeRef{
				resolve(anchor, rec.Operands[0]),
				resolve(anchor, rec.Operands[1]),
			},
		}, nil

	case OpCmpFloat, OpCmpInt:
		if len(rec.Operands) != 2 {
			return Instruction{}, errors.Errorf("Cmp record requires 2 operands, got %d", len(rec.Operands))
		}
		ops := []RelativeRef{resolve(anchor, rec.Operands[0]), resolve(anchor, rec.Operands[1])}
		if il, ok := cmpTranslation[rec.Predicate]; ok {
			return Instruction{Op: il, Type: rec.Type, Predicate: rec.Predicate, Operands: ops}, nil
		}
		return Instruction{
			Op: ILUnexposedInstruction, Type: rec.Type, Predicate: rec.Predicate, Operands: ops,
			Traits: UnexposedTraits{Symbol: "cmp.unsupported-predicate", FoldableWithImmediates: true},
		}, nil

		case OpCastBitCast, OpCastZExt, OpCastSExt, OpCastTrunc, OpCastFPTrunc,
		OpCastFPToSI, OpCastFPToUI, OpCastSIToFP, OpCastUIToFP, OpCastPtrToInt, OpCastIntToPtr:
		if len(rec.Operands) != 1 {
			return Instruction{}, errors.Errorf("Cast record requires 1 operand, got %d", len(rec.Operands))
		}
		return Instruction{
			Op: castTranslation[rec.Opcode],
			Type: rec.Type.Canonicalize(),
			Operands: []RelativeRef{resolve(anchor, rec.Operands[0])},
		}, nil

	case OpGEP, OpInBoundsGEP:
		resultType, err := WalkAddressChain(rec.Type, rec.Indices)
		if err != nil {
			return Instruction{}, errors.Wrap(err, "GEP")
		}
		return Instruction{
			Op: ILAddressChain,
			Type: resultType,
			Operands: []RelativeRef{resolve(anchor, rec.Base)},
			Indices: rec.Indices,
		}, nil

	case OpPhi:
		incoming := make([]PhiIncomingRef, len(rec.Incoming))
		for i, in := range rec.Incoming {
			incoming[i] = PhiIncomingRef{Value: resolve(anchor, in.Value), Branch: in.Branch}
		}
		return Instruction{Op: ILPhi, Type: rec.Type, Incoming: incoming}, nil

	case OpBr:
		if len(rec.BranchTargets) == 1 {
			return Instruction{Op: ILBranch, BranchTargets: rec.BranchTargets}, nil
		}
		if len(rec.Operands) != 1 || len(rec.BranchTargets) != 2 {
			return Instruction{}, errors.Errorf("conditional Br requires 1 condition operand and 2 targets")
		}
		return Instruction{
			Op: ILBranchConditional,
			Operands: []RelativeRef{resolve(anchor, rec.Operands[0])},
			BranchTargets: rec.BranchTargets,
		}, nil

	case OpSwitch:
		if len(rec.Operands) != 1 {
			return Instruction{}, errors.Errorf("Switch record requires 1 selector operand")
		}
		return Instruction{
			Op: ILSwitch,
			Operands: []RelativeRef{resolve(anchor, rec.Operands[0])},
			BranchTargets: rec.BranchTargets,
		}, nil

	case OpRet:
		var ops []RelativeRef
		if len(rec.Operands) == 1 {
			ops = []RelativeRef{resolve(anchor, rec.Operands[0])}
		}
		return Instruction{Op: ILReturn, Operands: ops}, nil

	case OpLoad:
		if len(rec.Operands) != 1 {
			return Instruction{}, errors.Errorf("Load record requires 1 address operand")
		}
		return Instruction{Op: ILLoad, Type: rec.Type, Operands: []RelativeRef{resolve(anchor, rec.Operands[0])}}, nil

	case OpStore:
		if len(rec.Operands) != 2 {
			return Instruction{}, errors.Errorf("Store record requires address and value operands")
		}
		return Instruction{
			Op: ILStore,
			Operands: []RelativeRef{
				resolve(anchor, rec.Operands[0]),
				resolve(anchor, rec.Operands[1]),
			},
		}, nil

	case OpAlloca:
		return Instruction{Op: ILAlloca, Type: Type{Kind: TypePointer, Elem: &rec.Type}}, nil

	case OpCall:
		return translateCall(f, rec, anchor, resultID, resolve, scanner)

	case OpExtractVal, OpExtractElt:
		if len(rec.Operands) != 1 {
			return Instruction{}, errors.Errorf("Extract record requires 1 base operand")
		}
		return Instruction{
			Op: ILExtract,
			Type: rec.Type,
			Operands: []RelativeRef{resolve(anchor, rec.Operands[0])},
			Indices: rec.ExtractIndices,
		}, nil

	case OpInsertVal, OpInsertElt:
		if len(rec.Operands) != 2 {
			return Instruction{}, errors.Errorf("Insert record requires base and value operands")
		}
		return Instruction{
			Op: ILInsert,
			Type: rec.Type,
			Operands: []RelativeRef{
				resolve(anchor, rec.Operands[0]),
				resolve(anchor, rec.Operands[1]),
			},
			Indices: rec.ExtractIndices,
		}, nil

	case OpVSelect:
		if len(rec.Operands) != 3 {
			return Instruction{}, errors.Errorf("VSelect record requires 3 operands")
		}
		return Instruction{
			Op: ILSelect,
			Type: rec.Type,
			Operands: []RelativeRef{
				resolve(anchor, rec.Operands[0]),
				resolve(anchor, rec.Operands[1]),
				resolve(anchor, rec.Operands[2]),
			},
		}, nil
	}

	return Instruction{}, errors.Errorf("unknown function-block record opcode %d: bitcode is malformed", rec.Opcode)
}

func translateCall(f *Function, rec Record, anchor uint32, resultID uint32, resolve func(uint32, uint32) RelativeRef, scanner *BlockScanner) (Instruction, error) {
	ops := make([]RelativeRef, len(rec.CallArgs))
	for i, a := range rec.CallArgs {
		ops[i] = resolve(anchor, a)
	}

	if !IsDXILIntrinsic(rec.CalleeSymbol) {
		return Instruction{
			Op: ILUnexposedInstruction, Type: rec.Type, Operands: ops,
			Traits: UnexposedTraits{Symbol: rec.CalleeSymbol, FoldableWithImmediates: false},
		}, nil
	}

	opcode := rec.DXILOpcode
	if scanner != nil && len(rec.CallArgs) > 0 {
		if resolved, ok := scanner.ResolveDXILOpcode(rec.CallArgs[0]); ok {
			opcode = resolved
		}
	}
	trans := translateIntrinsic(opcode)
	inst := Instruction{Op: trans.ilOp, Type: rec.Type, Operands: ops}
	if trans.ilOp == ILUnexposedInstruction {
		inst.Traits = UnexposedTraits{
			BackendOpcode: opcode,
			Symbol: rec.CalleeSymbol,
			FoldableWithImmediates: false,
			Divergent: divergentDXILOpcodes[DXILOpcode(opcode)],
		}
	}

	if rec.HasValue && trans.resultSVOX {
		width := rec.Type.Count
		if width <= 0 {
			width = 1
		}
		if err := f.SVOX.Assign(resultID, VectorOnStruct, width, *elementTypeOf(rec.Type), nil); err != nil {
			return Instruction{}, err
		}
	}
	return inst, nil
}

func elementTypeOf(t Type) *Type {
	if t.Elem != nil {
		return t.Elem
	}
	return &t
}

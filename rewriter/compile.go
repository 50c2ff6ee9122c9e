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

// BitcodeRecord is one emitted LLVM record, the output counterpart of
// Record. Operands are resolved, absolute-encoded: bitcode emission
// happens after the write pass has remapped every ID through the
// UserMapping.
type BitcodeRecord struct {
	Opcode LLVMOpcode
	Intrinsic DXILOpcode
	IsIntrinsic bool
	Type Type
	Operands []uint32
	Predicate Predicate
	BranchTargets []int
}

// UserMapping is the result of the allocation pass: a mapping from the
// IL function's instruction index to its reserved bitcode result ID.
type UserMapping struct {
	idByInstruction map[int]uint32
	next uint32
}

// NewUserMapping creates an empty UserMapping, allocating bitcode IDs
// starting at startID (non-zero when compiling a function other than
// the first in a multi-function module).
func NewUserMapping(startID uint32) *UserMapping {
	return &UserMapping{idByInstruction: map[int]uint32{}, next: startID}
}

func (u *UserMapping) alloc() uint32 {
	id := u.next
	u.next++
	return id
}

// ID returns the bitcode ID reserved for instruction index i.
func (u *UserMapping) ID(i int) (uint32, bool) {
	id, ok := u.idByInstruction[i]
	return id, ok
}

// Next reports the ID the next allocation would receive; callers chain
// multiple functions' UserMappings by feeding this into NewUserMapping.
func (u *UserMapping) Next() uint32 { return u.next }

// AllocationPass walks fn's IL instructions and reserves a bitcode result
// ID for each one that has a value, producing the "user-mapping" table
// "Compilation (IL -> bitcode)" step 1 describes.
func AllocationPass(fn *Function, startID uint32) *UserMapping {
	m := NewUserMapping(startID)
	for i, inst := range fn.Instructions {
		if inst.HasValue {
			m.idByInstruction[i] = m.alloc()
		}
	}
	return m
}

// instructionIndexOf maps an IL ResultID back to its instruction index,
// used by the write pass to remap operands (which are recorded as
// RelativeRef against the IL's own id_map, not the bitcode UserMapping).
func instructionIndexOf(fn *Function) map[uint32]int {
	out := map[uint32]int{}
	for i, inst := range fn.Instructions {
		if inst.HasValue {
			out[inst.ResultID] = i
		}
	}
	return out
}

// WritePass walks fn's IL instructions a second time, emitting one
// BitcodeRecord per instruction with every operand remapped through
// mapping to its absolute bitcode ID. Forward references are not
// re-encoded: an operand naming an instruction written later is emitted
// as an absolute ID like any other.
func WritePass(fn *Function, mapping *UserMapping) ([]BitcodeRecord, error) {
	byResult := instructionIndexOf(fn)
	out := make([]BitcodeRecord, 0, len(fn.Instructions))

	remap := func(ref RelativeRef) (uint32, error) {
		absolute := ref.Absolute()
		idx, ok := byResult[absolute]
		if !ok {
			return 0, errors.Errorf("write pass: operand references unknown IL id %d", absolute)
		}
		id, ok := mapping.ID(idx)
		if !ok {
			return 0, errors.Errorf("write pass: instruction %d has no reserved bitcode id", idx)
		}
		return id, nil
	}

	for _, inst := range fn.Instructions {
		rec := BitcodeRecord{Opcode: bitcodeOpcodeOf(inst.Op), Type: inst.Type, Predicate: inst.Predicate, BranchTargets: inst.BranchTargets}
		if inst.Traits.Symbol != "" && inst.Op == ILUnexposedInstruction {
			rec.IsIntrinsic = true
			rec.Intrinsic = DXILOpcode(inst.Traits.BackendOpcode)
		}
		for _, ref := range inst.Operands {
			id, err := remap(ref)
			if err != nil {
				return nil, err
			}
			rec.Operands = append(rec.Operands, id)
		}
		for _, in := range inst.Incoming {
			id, err := remap(in.Value)
			if err != nil {
				return nil, err
			}
			rec.Operands = append(rec.Operands, id)
		}
		out = append(out, rec)
	}
	return out, nil
}

// bitcodeOpcodeOf is the inverse of the LLVM-record translation table,
// used by the write pass to pick the record kind an IL op compiles back
// to. Several LLVM opcodes map to the same IL op (e.g. every Cast
// variant that degrades to BitCast); the write pass re-emits the
// canonical BitCast form rather than trying to recover which of several
// source casts produced it, matching how the original lowering already
// collapses that distinction.
func bitcodeOpcodeOf(op ILOp) LLVMOpcode {
	switch op {
	case ILAdd:
		return OpBinAdd
	case ILSub:
		return OpBinSub
	case ILMul:
		return OpBinMul
	case ILDiv:
		return OpBinDiv
	case ILRem:
		return OpBinRem
	case ILBitShiftLeft:
		return OpBinShl
	case ILBitShiftRight:
		return OpBinShr
	case ILAnd:
		return OpBinAnd
	case ILOr:
		return OpBinOr
	case ILBitXOr:
		return OpBinXor
	case ILEqual, ILNotEqual, ILLess, ILLessEq, ILGreater, ILGreaterEq:
		return OpCmpInt
	case ILBitCast:
		return OpCastBitCast
	case ILTrunc:
		return OpCastTrunc
	case ILFloatToInt:
		return OpCastFPToSI
	case ILIntToFloat:
		return OpCastSIToFP
	case ILAddressChain:
		return OpGEP
	case ILPhi:
		return OpPhi
	case ILBranch, ILBranchConditional:
		return OpBr
	case ILSwitch:
		return OpSwitch
	case ILReturn:
		return OpRet
	case ILLoad:
		return OpLoad
	case ILStore:
		return OpStore
	case ILAlloca:
		return OpAlloca
	case ILExtract:
		return OpExtractVal
	case ILInsert:
		return OpInsertVal
	case ILSelect:
		return OpVSelect
	}
	return OpCall
}

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

// LLVMOpcode names one function-block record kind the parser recognizes
//.
type LLVMOpcode int

const (
	OpBinAdd LLVMOpcode = iota
	OpBinSub
	OpBinMul
	OpBinDiv
	OpBinRem
	OpBinShl
	OpBinShr
	OpBinAnd
	OpBinOr
	OpBinXor
	OpCmpFloat
	OpCmpInt
	OpCastBitCast
	OpCastZExt
	OpCastSExt
	OpCastTrunc
	OpCastFPTrunc
	OpCastFPToSI
	OpCastFPToUI
	OpCastSIToFP
	OpCastUIToFP
	OpCastPtrToInt
	OpCastIntToPtr
	OpGEP
	OpInBoundsGEP
	OpPhi
	OpBr
	OpSwitch
	OpRet
	OpLoad
	OpStore
	OpAlloca
	OpCall
	OpExtractVal
	OpInsertVal
	OpExtractElt
	OpInsertElt
	OpVSelect
)

// ILOp names a backend IL instruction kind.
type ILOp int

const (
	ILAdd ILOp = iota
	ILSub
	ILMul
	ILDiv
	ILRem
	ILBitShiftLeft
	ILBitShiftRight
	ILAnd
	ILOr
	ILBitXOr
	ILEqual
	ILNotEqual
	ILLess
	ILLessEq
	ILGreater
	ILGreaterEq
	ILBitCast
	ILTrunc
	ILFloatToInt
	ILIntToFloat
	ILAddressChain
	ILPhi
	ILBranch
	ILBranchConditional
	ILSwitch
	ILReturn
	ILLoad
	ILStore
	ILAlloca
	ILExtract
	ILInsert
	ILSelect
	ILUnexposedInstruction
)

// binOpTranslation is the BinOp row of LLVM-record table.
var binOpTranslation = map[LLVMOpcode]ILOp{
	OpBinAdd: ILAdd,
	OpBinSub: ILSub,
	OpBinMul: ILMul,
	OpBinDiv: ILDiv,
	OpBinRem: ILRem,
	OpBinShl: ILBitShiftLeft,
	OpBinShr: ILBitShiftRight,
	OpBinAnd: ILAnd,
	OpBinOr: ILOr,
	OpBinXor: ILBitXOr,
}

// Predicate is a Cmp record's comparison predicate.
type Predicate int

const (
	PredNone Predicate = iota
	PredEqual
	PredNotEqual
	PredLess
	PredLessEq
	PredGreater
	PredGreaterEq
	PredUnsupported
)

// cmpTranslation is the Cmp row: supported predicates translate directly;
// unsupported ones degrade to an unexposed instruction at the call site.
var cmpTranslation = map[Predicate]ILOp{
	PredEqual: ILEqual,
	PredNotEqual: ILNotEqual,
	PredLess: ILLess,
	PredLessEq: ILLessEq,
	PredGreater: ILGreater,
	PredGreaterEq: ILGreaterEq,
}

// castTranslation is the Cast row: casts with a direct IL counterpart
// translate to it; BitCast, int<->int truncation/extension within the
// same signedness, PtrToInt and IntToPtr carry no distinct IL shape of
// their own and lower to BitCast, matching the backend IL's treatment of
// pointer-sized reinterpretation as a bit-preserving cast.
var castTranslation = map[LLVMOpcode]ILOp{
	OpCastBitCast: ILBitCast,
	OpCastZExt: ILBitCast,
	OpCastSExt: ILBitCast,
	OpCastTrunc: ILTrunc,
	OpCastFPTrunc: ILTrunc,
	OpCastFPToSI: ILFloatToInt,
	OpCastFPToUI: ILFloatToInt,
	OpCastSIToFP: ILIntToFloat,
	OpCastUIToFP: ILIntToFloat,
	OpCastPtrToInt: ILBitCast,
	OpCastIntToPtr: ILBitCast,
}

func (op ILOp) String() string {
	switch op {
	case ILAdd:
		return "Add"
	case ILSub:
		return "Sub"
	case ILMul:
		return "Mul"
	case ILDiv:
		return "Div"
	case ILRem:
		return "Rem"
	case ILBitShiftLeft:
		return "BitShiftLeft"
	case ILBitShiftRight:
		return "BitShiftRight"
	case ILAnd:
		return "And"
	case ILOr:
		return "Or"
	case ILBitXOr:
		return "BitXOr"
	case ILEqual:
		return "Equal"
	case ILNotEqual:
		return "NotEqual"
	case ILLess:
		return "Less"
	case ILLessEq:
		return "LessEq"
	case ILGreater:
		return "Greater"
	case ILGreaterEq:
		return "GreaterEq"
	case ILBitCast:
		return "BitCast"
	case ILTrunc:
		return "Trunc"
	case ILFloatToInt:
		return "FloatToInt"
	case ILIntToFloat:
		return "IntToFloat"
	case ILAddressChain:
		return "AddressChain"
	case ILPhi:
		return "Phi"
	case ILBranch:
		return "Branch"
	case ILBranchConditional:
		return "BranchConditional"
	case ILSwitch:
		return "Switch"
	case ILReturn:
		return "Return"
	case ILLoad:
		return "Load"
	case ILStore:
		return "Store"
	case ILAlloca:
		return "Alloca"
	case ILExtract:
		return "Extract"
	case ILInsert:
		return "Insert"
	case ILSelect:
		return "Select"
	case ILUnexposedInstruction:
		return "UnexposedInstruction"
	}
	return "?"
}

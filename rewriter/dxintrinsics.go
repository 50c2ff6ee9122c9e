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

import "strings"

// DXILOpcode names one "dx.op.*" intrinsic recognized by its first call
// argument. Not exhaustive — only the
// opcodes names are given symbolic constants; any other resolved
// opcode number falls through to an UnexposedInstruction.
type DXILOpcode int

const (
	DXCreateHandle DXILOpcode = iota
	DXCreateHandleFromBinding
	DXCreateHandleFromHeap
	DXAnnotateHandle
	DXBufferLoad
	DXRawBufferLoad
	DXBufferStore
	DXRawBufferStore
	DXTextureLoad
	DXTextureStore
	DXSample
	DXSampleLevel
	DXSampleBias
	DXSampleGrad
	DXSampleCmp
	DXSampleCmpLevelZero
	DXAtomicBinOp
	DXAtomicCompareExchange
	DXIsNaN
	DXIsInf
	DXWaveReadFirst
	DXWaveAnyTrue
	DXWaveAllTrue
	DXWaveBallot
	DXWaveRead
	DXWaveAllEqual
	DXWaveBitAnd
	DXWaveBitOr
	DXWaveBitXOr
	DXWaveCountBits
	DXWaveSum
	DXWaveProduct
	DXWaveMin
	DXWaveMax
	DXWavePrefixSum
	DXWavePrefixProduct
	DXWavePrefixCountBits
	DXGetDimensions
	DXThreadId
)

// dxPrefix is the callee-symbol prefix that marks a Call record as a DXIL
// intrinsic.
const dxPrefix = "dx.op."

// IsDXILIntrinsic reports whether symbol names a dx.op.* intrinsic.
func IsDXILIntrinsic(symbol string) bool { return strings.HasPrefix(symbol, dxPrefix) }

// intrinsicTranslation is one DXIL-opcode table row: the IL op an
// intrinsic lowers to, and whether its result or one of its operands
// must be packed/unpacked as an SVOX value.
type intrinsicTranslation struct {
	ilOp ILOp
	resultSVOX bool // result is a multi-lane SVOX value (BufferStore-style vectorization)
	unpackResult bool // result is a struct that must be unpacked into SVOX (GetDimensions)
}

var dxilTranslation = map[DXILOpcode]intrinsicTranslation{
	DXCreateHandle: {ilOp: ILAddressChain},
	DXCreateHandleFromBinding: {ilOp: ILAddressChain},
	DXCreateHandleFromHeap: {ilOp: ILAddressChain},
	DXAnnotateHandle: {ilOp: ILUnexposedInstruction},
	DXBufferLoad: {ilOp: ILLoad},
	DXRawBufferLoad: {ilOp: ILLoad},
	DXBufferStore: {ilOp: ILStore, resultSVOX: true},
	DXRawBufferStore: {ilOp: ILStore, resultSVOX: true},
	DXTextureLoad: {ilOp: ILLoad, resultSVOX: true},
	DXTextureStore: {ilOp: ILStore, resultSVOX: true},
	DXSample: {ilOp: ILUnexposedInstruction},
	DXSampleLevel: {ilOp: ILUnexposedInstruction},
	DXSampleBias: {ilOp: ILUnexposedInstruction},
	DXSampleGrad: {ilOp: ILUnexposedInstruction},
	DXSampleCmp: {ilOp: ILUnexposedInstruction},
	DXSampleCmpLevelZero: {ilOp: ILUnexposedInstruction},
	DXAtomicBinOp: {ilOp: ILUnexposedInstruction},
	DXAtomicCompareExchange: {ilOp: ILUnexposedInstruction},
	DXIsNaN: {ilOp: ILUnexposedInstruction},
	DXIsInf: {ilOp: ILUnexposedInstruction},
	DXWaveReadFirst: {ilOp: ILUnexposedInstruction},
	DXWaveAnyTrue: {ilOp: ILUnexposedInstruction},
	DXWaveAllTrue: {ilOp: ILUnexposedInstruction},
	DXWaveBallot: {ilOp: ILUnexposedInstruction},
	DXWaveRead: {ilOp: ILUnexposedInstruction},
	DXWaveAllEqual: {ilOp: ILUnexposedInstruction},
	DXWaveBitAnd: {ilOp: ILUnexposedInstruction},
	DXWaveBitOr: {ilOp: ILUnexposedInstruction},
	DXWaveBitXOr: {ilOp: ILUnexposedInstruction},
	DXWaveCountBits: {ilOp: ILUnexposedInstruction},
	DXWaveSum: {ilOp: ILUnexposedInstruction},
	DXWaveProduct: {ilOp: ILUnexposedInstruction},
	DXWaveMin: {ilOp: ILUnexposedInstruction},
	DXWaveMax: {ilOp: ILUnexposedInstruction},
	DXWavePrefixSum: {ilOp: ILUnexposedInstruction},
	DXWavePrefixProduct: {ilOp: ILUnexposedInstruction},
	DXWavePrefixCountBits: {ilOp: ILUnexposedInstruction},
	DXGetDimensions: {ilOp: ILUnexposedInstruction, unpackResult: true, resultSVOX: true},
	DXThreadId: {ilOp: ILUnexposedInstruction, resultSVOX: true},
}

// translateIntrinsic resolves a Call record's DXIL opcode to its IL
// translation, falling back to a plain UnexposedInstruction for any
// opcode doesn't name explicitly.
func translateIntrinsic(opcode int) intrinsicTranslation {
	if t, ok := dxilTranslation[DXILOpcode(opcode)]; ok {
		return t
	}
	return intrinsicTranslation{ilOp: ILUnexposedInstruction}
}

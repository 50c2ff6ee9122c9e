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

// ResourceClass names one DXIL resource binding class.
type ResourceClass int

const (
	ClassSRV ResourceClass = iota
	ClassUAV
	ClassCBV
	ClassSampler
)

// BindingRange describes a resource's root-signature binding: either a
// fully constant space/range, or a constant base plus a dynamic offset
// (DXC's "add lhs, constant" pattern) "Resource-token
// lowering" step 2.
type BindingRange struct {
	Class ResourceClass
	Space uint32
	RangeLower uint32
	RangeUpper uint32
	DynamicBase bool
	DynamicValue RelativeRef // valid iff DynamicBase
}

// RootMapping is the physical root-signature placement of one binding:
// either root-inline (loaded directly from a constant-buffer row) or a
// descriptor table (requiring a PRMT lookup) step 3.
type RootMapping struct {
	Inline bool
	ConstantBufferRow uint32 // valid iff Inline
	CBOffset uint32 // valid iff !Inline
	TableMappingOffset uint32 // valid iff !Inline
	StaticSampler bool
}

// Sentinels matching step 4's tokens.
const (
	TokenInvalidOutOfBounds uint32 = 0xFFFFFFF0
	TokenInvalidTableNotBound uint32 = 0xFFFFFFF1
	InvalidCBOffsetMarker uint32 = 0xFFFFFFFF
)

// ResourceTokenMetadata is the struct-constant packed by LowerResourceToken
//: a PUID plus the bookkeeping needed to re-derive
// the guard conditions during instrumentation.
type ResourceTokenMetadata struct {
	DescriptorOffset RelativeRef // BufferLoad index into the PRMT, or zero if static/guarded-out
	OutOfHeap bool
	TableNotBound bool
	StaticToken uint32 // valid iff StaticSampler
}

// LowerResourceToken implements "Resource-token lowering":
// given a resource's root-signature mapping and its current VRMT bound,
// it computes the PRMT descriptor offset (guarding against an out-of-heap
// or not-yet-bound table), or returns a constant valid token immediately
// for a static sampler.
func LowerResourceToken(mapping RootMapping, binding BindingRange, metadataStride, fieldIndex uint32, vrmtBound uint32, resolveDynamic func(RelativeRef) (uint32, bool)) (ResourceTokenMetadata, error) {
	if mapping.StaticSampler {
		return ResourceTokenMetadata{StaticToken: 1}, nil
	}

	if mapping.Inline {
		// Root-inline parameters load their token directly from a
		// constant-buffer row; no PRMT lookup or bounds guard applies.
		return ResourceTokenMetadata{}, nil
	}

	if mapping.CBOffset == InvalidCBOffsetMarker {
		return ResourceTokenMetadata{TableNotBound: true}, nil
	}

	dynamicOffset := uint32(0)
	if binding.DynamicBase {
		v, ok := resolveDynamic(binding.DynamicValue)
		if !ok {
			return ResourceTokenMetadata{}, errors.New("rewriter: dynamic resource-table offset could not be resolved")
		}
		dynamicOffset = v
	}

	descriptorOffset := mapping.CBOffset + mapping.TableMappingOffset + dynamicOffset
	if descriptorOffset >= vrmtBound {
		return ResourceTokenMetadata{OutOfHeap: true}, nil
	}

	loadIndex := descriptorOffset*metadataStride + fieldIndex
	return ResourceTokenMetadata{
		DescriptorOffset: RelativeRef{Value: loadIndex},
	}, nil
}

// PackResourceTokenMetadata packs the lowered metadata fields into a
// struct constant tagged StructOnSequential,
// allocating one result ID plus one scalar ID per field through alloc.
func PackResourceTokenMetadata(svox *SVOXTable, alloc func() uint32, fields int) (resultID uint32, fieldIDs []uint32) {
	resultID = alloc()
	fieldIDs = make([]uint32, fields)
	for i := range fieldIDs {
		fieldIDs[i] = alloc()
	}
	svox.values[resultID] = svoxValue{
		tag: StructOnSequential,
		width: fields,
		sequential: fieldIDs,
	}
	return resultID, fieldIDs
}

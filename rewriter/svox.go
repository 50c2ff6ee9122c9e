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

// SVOXTag is the per-ID user-mapping tag the rewriter maintains to bridge
// DXIL's scalarized values to the backend IL's vector-aware ones emulation.
type SVOXTag int

const (
	Singular SVOXTag = iota
	VectorOnStruct
	VectorOnSequential
	StructOnSequential
)

// svoxValue records one ID's SVOX shape: its tag, its vector width, and
// (for the sequential tags) the contiguous range of per-lane scalar IDs
// it owns.
type svoxValue struct {
	tag SVOXTag
	width int
	elementTy Type
	sequential []uint32 // valid for VectorOnSequential / StructOnSequential
}

// SVOXTable tracks every SVOX-tagged ID produced while parsing or
// compiling one function. A user-mapping tag is never changed once
// assigned; Assign enforces that.
type SVOXTable struct {
	values map[uint32]svoxValue
}

// NewSVOXTable returns an empty table.
func NewSVOXTable() *SVOXTable {
	return &SVOXTable{values: map[uint32]svoxValue{}}
}

// Assign records id's SVOX shape. It is an error to reassign an id that
// already has a tag, preserving the "never changed after assignment"
// invariant.
func (t *SVOXTable) Assign(id uint32, tag SVOXTag, width int, elementTy Type, sequential []uint32) error {
	if existing, ok := t.values[id]; ok {
		if existing.tag != tag || existing.width != width {
			return errors.Errorf("svox: id %d already tagged %v/width %d, cannot reassign to %v/width %d", id, existing.tag, existing.width, tag, width)
		}
		return nil
	}
	t.values[id] = svoxValue{tag: tag, width: width, elementTy: elementTy, sequential: sequential}
	return nil
}

// IsSVOX reports whether id has an SVOX tag at all (including Singular).
func (t *SVOXTable) IsSVOX(id uint32) bool {
	_, ok := t.values[id]
	return ok
}

// SVOXCount reports id's vector width (1 for Singular or an untracked
// id).
func (t *SVOXTable) SVOXCount(id uint32) int {
	v, ok := t.values[id]
	if !ok {
		return 1
	}
	if v.width == 0 {
		return 1
	}
	return v.width
}

// ExtractElement returns the scalar ID/record describing lane i of id.
// For Singular values it returns id itself; for VectorOnStruct it
// reports that a scalar ExtractVal record must be synthesized (the
// caller does so and calls Assign for the new ID); for the sequential
// tags it returns the pre-allocated scalar ID directly.
func (t *SVOXTable) ExtractElement(id uint32, i int) (scalarID uint32, needsExtractVal bool, err error) {
	v, ok := t.values[id]
	if !ok || v.tag == Singular {
		return id, false, nil
	}
	if i < 0 || i >= v.width {
		return 0, false, errors.Errorf("svox: lane %d out of range for width-%d value %d", i, v.width, id)
	}
	switch v.tag {
	case VectorOnStruct:
		return 0, true, nil
	case VectorOnSequential, StructOnSequential:
		return v.sequential[i], false, nil
	}
	return 0, false, errors.Errorf("svox: id %d has unknown tag %v", id, v.tag)
}

// AllocateSequential allocates one result IL ID (for the combined
// value) plus n contiguous per-lane scalar IDs using alloc, tags the
// result VectorOnSequential, and records it.
func (t *SVOXTable) AllocateSequential(alloc func() uint32, n int, elementTy Type) (resultID uint32, laneIDs []uint32) {
	resultID = alloc()
	laneIDs = make([]uint32, n)
	for i := range laneIDs {
		laneIDs[i] = alloc()
	}
	t.values[resultID] = svoxValue{tag: VectorOnSequential, width: n, elementTy: elementTy, sequential: laneIDs}
	return resultID, laneIDs
}

// BinaryOpSVOX models binary_op_svox: applying a scalar binary op
// per-lane across two same-width SVOX operands (or passing through
// unchanged if both are Singular), returning the lane count the caller
// should emit per-lane scalar IL instructions for.
func (t *SVOXTable) BinaryOpSVOX(lhs, rhs uint32) (lanes int, err error) {
	lw, rw := t.SVOXCount(lhs), t.SVOXCount(rhs)
	if lw != rw {
		return 0, errors.Errorf("svox: binary op operand width mismatch: %d vs %d", lw, rw)
	}
	return lw, nil
}

// ValidatePostcondition checks SVOX invariants for a
// single instruction result: consistent width (ExtractCount(v) == the
// value's declared width), and that no instruction other than
// UnexposedInstruction has a vector result over an Unexposed element
// type.
func (t *SVOXTable) ValidatePostcondition(id uint32, op ILOp) error {
	v, ok := t.values[id]
	if !ok || v.tag == Singular {
		return nil
	}
	if len(v.sequential) != 0 && len(v.sequential) != v.width {
		return errors.Errorf("svox: id %d declares width %d but tracks %d lane ids", id, v.width, len(v.sequential))
	}
	if v.elementTy.Kind == TypeUnexposed && op != ILUnexposedInstruction {
		return errors.Errorf("svox: id %d is a vector of Unexposed element type produced by non-passthrough op %v", id, op)
	}
	return nil
}

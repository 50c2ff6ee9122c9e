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

// TypeKind distinguishes the handful of type shapes the rewriter needs in
// order to walk a GEP's index chain and to canonicalize non-canonical
// (unsigned) integer types.
type TypeKind int

const (
	TypeScalar TypeKind = iota
	TypePointer
	TypeArray
	TypeVector
	TypeMatrix
	TypeStruct
	TypeUnexposed
)

// Type is a minimal backend-IL/DXIL type description: enough to walk an
// address chain and decide canonicalization, not a full type system.
type Type struct {
	Kind TypeKind
	Elem *Type // Pointer/Array/Vector/Matrix element type
	Fields []Type // Struct field types, in declaration order
	Count int // Array/Vector/Matrix element count
	Unsigned bool // non-canonical; redirected to signed at compile time
}

// Canonicalize redirects a non-canonical unsigned-integer scalar to its
// signed equivalent at type-compile time, with a remapper redirect so
// downstream ID references still resolve.
func (t Type) Canonicalize() Type {
	if t.Kind == TypeScalar {
		t.Unsigned = false
	}
	return t
}

// GEPIndex is one index in a GEP/InBoundsGEP chain: either a constant
// field/element index or a dynamic (non-constant) one.
type GEPIndex struct {
	Constant bool
	Index int // valid when Constant
}

// WalkAddressChain computes the resulting IL type of an AddressChain
// instruction by walking base through indices, descending through
// pointer, array, vector, matrix and struct kinds in turn.
func WalkAddressChain(base Type, indices []GEPIndex) (Type, error) {
	cur := base
	for i, idx := range indices {
		switch cur.Kind {
		case TypePointer, TypeArray, TypeVector, TypeMatrix:
			if cur.Elem == nil {
				return Type{}, errors.Errorf("address chain index %d: %v has no element type", i, cur.Kind)
			}
			cur = *cur.Elem
		case TypeStruct:
			if !idx.Constant {
				return Type{}, errors.Errorf("address chain index %d: struct field index must be constant", i)
			}
			if idx.Index < 0 || idx.Index >= len(cur.Fields) {
				return Type{}, errors.Errorf("address chain index %d: struct field %d out of range (%d fields)", i, idx.Index, len(cur.Fields))
			}
			cur = cur.Fields[idx.Index]
		default:
			return Type{}, errors.Errorf("address chain index %d: cannot index into %v", i, cur.Kind)
		}
	}
	return cur, nil
}

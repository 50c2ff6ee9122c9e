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

// Package rewriter implements the DXIL/LLVM bitcode rewriter: parsing a
// function block into backend IL instructions, Scalar-Vector-Or-X (SVOX)
// emulation, constant-block migration, resource-token lowering, and
// compiling/stitching IL back into bitcode.
package rewriter

// RelativeRef is an LLVM operand ID encoded relative to the anchor of the
// record that references it.
type RelativeRef struct {
	Anchor uint32
	Value uint32
}

// NewRelativeRef encodes a reference to absolute from a record whose
// anchor is the given id_map head.
func NewRelativeRef(anchor, absolute uint32) RelativeRef {
	return RelativeRef{Anchor: anchor, Value: anchor - absolute}
}

// Absolute decodes the referenced ID.
func (r RelativeRef) Absolute() uint32 { return r.Anchor - r.Value }

// ForwardRef is a reference to a value whose definition has not yet been
// visited when the reference is encoded (phi incoming values, branch
// targets, self-recursive calls). It uses the "inverse sign bit encoding"
// calls out: the target is ahead of the anchor rather than
// behind it, so decoding adds rather than subtracts.
type ForwardRef struct {
	Anchor uint32
	Value uint32
}

// NewForwardRef encodes a reference to a provisional (not-yet-resolved)
// ID allocated ahead of the current anchor.
func NewForwardRef(anchor, provisional uint32) ForwardRef {
	return ForwardRef{Anchor: anchor, Value: provisional - anchor}
}

// Absolute decodes the referenced provisional ID.
func (r ForwardRef) Absolute() uint32 { return r.Anchor + r.Value }

// IsForward reports whether ref, taken at the given anchor, refers to an
// ID at or after the anchor (i.e. must be encoded as a ForwardRef rather
// than a RelativeRef).
func IsForward(anchor, absolute uint32) bool { return absolute >= anchor }

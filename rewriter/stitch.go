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

// StitchedFunction is one function's compiled bitcode, positioned in the
// module's output record stream.
type StitchedFunction struct {
	Records []BitcodeRecord
	// FirstID and LastID bound the bitcode IDs this function's
	// instructions were allocated, for diagnostics.
	FirstID, LastID uint32
}

// Stitcher compiles every function of a multi-function module in turn,
// using a segmented IDMap so no two functions' bitcode IDs ever collide,
// each function's snapshot merged back into the parent map as it retires.
type Stitcher struct {
	Module *IDMap
}

// NewStitcher creates a Stitcher whose module-level IDMap starts
// allocating at the given ID (non-zero when globals/constants already
// occupy the low end of the ID space).
func NewStitcher(startID uint32) *Stitcher {
	m := NewIDMap()
	for m.Head() < startID {
		m.Allocate()
	}
	return &Stitcher{Module: m}
}

// Compile runs the two-pass compile (allocate, then write) for one
// function using a branched snapshot of the module id_map, then commits
// the snapshot's final head back so the next function's IDs continue
// after it.
func (s *Stitcher) Compile(fn *Function) (StitchedFunction, error) {
	snapshot := s.Module.CreateSnapshot()
	startID := snapshot.Head()

	mapping := AllocationPass(fn, startID)
	records, err := WritePass(fn, mapping)
	if err != nil {
		snapshot.Revert()
		return StitchedFunction{}, errors.Wrap(err, "stitch: compiling function")
	}

	for mapping.Next() > snapshot.Head() {
		snapshot.Allocate()
	}
	snapshot.Branch()

	return StitchedFunction{Records: records, FirstID: startID, LastID: mapping.Next()}, nil
}

// PatchConstantReferences rewrites any operand in records that refers to
// a constant's original per-function source anchor into its migrated
// global ID, per the constant_relocation list recorded during migration
//.
func PatchConstantReferences(records []BitcodeRecord, migrator *ConstantMigrator) {
	for i, rec := range records {
		for j, operand := range rec.Operands {
			if globalID, ok := migrator.Resolve(operand); ok {
				records[i].Operands[j] = globalID
			}
		}
	}
}

// CompileModule stitches every function of fns in order, returning one
// StitchedFunction per input function plus the module id_map's final
// head (the next free bitcode ID, useful for appending a trailer block).
func (s *Stitcher) CompileModule(fns []*Function, migrator *ConstantMigrator) ([]StitchedFunction, uint32, error) {
	out := make([]StitchedFunction, 0, len(fns))
	for i, fn := range fns {
		sf, err := s.Compile(fn)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "function %d", i)
		}
		if migrator != nil {
			PatchConstantReferences(sf.Records, migrator)
		}
		out = append(out, sf)
	}
	return out, s.Module.Head(), nil
}

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

// ConstantRecord is one per-function constant the migration pass hoists
// into the global constants block.
type ConstantRecord struct {
	SourceAnchor uint32 // the id_map anchor it was defined under inside its function
	Value interface{}
	Type Type
	// HadAbbreviation reports whether the source record used a
	// block-local abbreviation; those are stripped on migration since
	// block-local abbreviations are unsafe to reuse after relocation
	//.
	HadAbbreviation bool
}

// ConstantRelocation maps one migrated constant's original per-function
// anchor to the global ID it was assigned in the hoisted block, so
// stitch-time patching can retarget every reference to it.
type ConstantRelocation struct {
	SourceAnchor uint32
	GlobalID uint32
}

// ConstantMigrator hoists per-function constant-block records into one
// global constants block during a one-shot pre-pass, working around the host bitcode reader's
// forward-reference bug for metadata values defined inside functions.
type ConstantMigrator struct {
	globals *IDMap
	relocations []ConstantRelocation
	Hoisted []ConstantRecord
}

// NewConstantMigrator creates a migrator that allocates hoisted
// constants' global IDs from globals (the module's global constants
// id_map).
func NewConstantMigrator(globals *IDMap) *ConstantMigrator {
	return &ConstantMigrator{globals: globals}
}

// Migrate hoists one function-local constant record into the global
// constants block, stripping any block-local abbreviation, and records
// the source-anchor-to-global-ID relocation for stitch-time patching.
func (m *ConstantMigrator) Migrate(rec ConstantRecord) uint32 {
	rec.HadAbbreviation = false // abbreviations are unsafe after relocation
	globalID := m.globals.Allocate()
	m.Hoisted = append(m.Hoisted, rec)
	m.relocations = append(m.relocations, ConstantRelocation{SourceAnchor: rec.SourceAnchor, GlobalID: globalID})
	return globalID
}

// Relocations returns the full source-anchor -> global-ID list for
// stitch-time patching.
func (m *ConstantMigrator) Relocations() []ConstantRelocation {
	return append([]ConstantRelocation(nil), m.relocations...)
}

// Resolve looks up the global ID a migrated constant's original source
// anchor was assigned, for patching a reference encountered during
// stitching.
func (m *ConstantMigrator) Resolve(sourceAnchor uint32) (uint32, bool) {
	for _, r := range m.relocations {
		if r.SourceAnchor == sourceAnchor {
			return r.GlobalID, true
		}
	}
	return 0, false
}

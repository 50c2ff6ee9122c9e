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

// IDMap linearly assigns stable IL identifiers to LLVM values in
// definition order. Multi-function modules use a
// segmented IDMap: CreateSnapshot branches a child map for one function
// body, and Branch merges its final head back onto the parent so that no
// two functions' IDs ever collide.
type IDMap struct {
	head uint32
	resolved map[uint32]uint32
	parent *IDMap
}

// NewIDMap returns an empty, unbranched IDMap.
func NewIDMap() *IDMap {
	return &IDMap{resolved: map[uint32]uint32{}}
}

// Head returns the next ID Allocate would hand out, and the anchor every
// record parsed right now is encoded relative to.
func (m *IDMap) Head() uint32 { return m.head }

// Allocate reserves and returns the next stable IL ID.
func (m *IDMap) Allocate() uint32 {
	id := m.head
	m.head++
	return id
}

// Resolve binds a forward-reference placeholder to its now-visited
// definition. Lookups of the placeholder afterward return definition.
func (m *IDMap) Resolve(placeholder, definition uint32) {
	m.resolved[placeholder] = definition
}

// Lookup follows a resolved forward reference to its final ID, returning
// id unchanged if it was never a placeholder (or is already resolved to
// itself).
func (m *IDMap) Lookup(id uint32) uint32 {
	if def, ok := m.resolved[id]; ok {
		return def
	}
	return id
}

// CreateSnapshot branches a child IDMap that starts allocating from this
// map's current head, for compiling one function body of a multi-function
// module.
func (m *IDMap) CreateSnapshot() *IDMap {
	return &IDMap{head: m.head, resolved: map[uint32]uint32{}, parent: m}
}

// Branch commits this snapshot's final head back onto its parent, so
// the next function's IDs continue where this one left off, never
// colliding with it.
func (m *IDMap) Branch() {
	if m.parent == nil {
		return
	}
	if m.head > m.parent.head {
		m.parent.head = m.head
	}
}

// Revert discards this snapshot without advancing its parent's head,
// used when a speculative compile attempt (e.g. a failed allocation pass)
// is abandoned.
func (m *IDMap) Revert() {}

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

// Package handle implements the deferred-release handle arena described in
//: each handle kind lives in a typed arena; outside references
// hold (index, generation); release decrements a refcount stored in the
// entry, and at zero the entry is invalidated and its generation bumped.
// This trades the embedded-atomic-refcount-in-polymorphic-pointer
// scheme for one that cannot alias a freed slot to a stale Ref.
package handle

import "sync"

// Ref identifies one live (or once-live) entry in an Arena.
type Ref struct {
	index uint32
	generation uint32
}

// Valid reports whether r was ever issued by an arena (the zero Ref never is).
func (r Ref) Valid() bool { return r.generation != 0 }

type entry[T any] struct {
	value T
	generation uint32
	refcount int32
	live bool
}

// Arena is a generational, refcounted store of handles of type T.
// Zero value is not usable; use NewArena.
type Arena[T any] struct {
	mu sync.Mutex
	entries []entry[T]
	free []uint32
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Create inserts value with an initial refcount of 1 (matching the
// `usages` field starting at 1) and returns its Ref.
func (a *Arena[T]) Create(value T) Ref {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		e := &a.entries[idx]
		e.value = value
		e.refcount = 1
		e.live = true
		return Ref{index: idx, generation: e.generation}
	}

	idx := uint32(len(a.entries))
	a.entries = append(a.entries, entry[T]{value: value, generation: 1, refcount: 1, live: true})
	return Ref{index: idx, generation: 1}
}

// Get returns the value for ref and whether it is still live.
func (a *Arena[T]) Get(ref Ref) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var zero T
	if int(ref.index) >= len(a.entries) {
		return zero, false
	}
	e := &a.entries[ref.index]
	if !e.live || e.generation != ref.generation {
		return zero, false
	}
	return e.value, true
}

// Retain increments the refcount for ref. Returns false if ref is stale.
func (a *Arena[T]) Retain(ref Ref) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(ref.index) >= len(a.entries) {
		return false
	}
	e := &a.entries[ref.index]
	if !e.live || e.generation != ref.generation {
		return false
	}
	e.refcount++
	return true
}

// Release decrements the refcount for ref. When it reaches zero, the entry
// is invalidated, its generation bumped, and destroy (if non-nil) is
// invoked outside the arena's lock with the final value.
func (a *Arena[T]) Release(ref Ref, destroy func(T)) bool {
	a.mu.Lock()
	if int(ref.index) >= len(a.entries) {
		a.mu.Unlock()
		return false
	}
	e := &a.entries[ref.index]
	if !e.live || e.generation != ref.generation {
		a.mu.Unlock()
		return false
	}
	e.refcount--
	var finalValue T
	freed := false
	if e.refcount <= 0 {
		finalValue = e.value
		var zero T
		e.value = zero
		e.live = false
		e.generation++
		a.free = append(a.free, ref.index)
		freed = true
	}
	a.mu.Unlock()

	if freed && destroy != nil {
		destroy(finalValue)
	}
	return true
}

// Len returns the number of live entries (for tests).
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.live {
			n++
		}
	}
	return n
}

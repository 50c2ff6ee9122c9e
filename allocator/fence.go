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

package allocator

import "sync"

// GroupedFence is the refcounted fence shared by every allocation
// submitted in one batch. It is freed back to the pool
// only when refcount reaches zero.
type GroupedFence struct {
	ID uint64
	refcount int32
	signaled bool
}

// FencePool hands out GroupedFences with refcount==0, and recycles them
// once their refcount returns to zero after signalling.
type FencePool struct {
	mu sync.Mutex
	free []*GroupedFence
	nextID uint64
	inFlight map[uint64]*GroupedFence
}

// NewFencePool creates an empty FencePool.
func NewFencePool() *FencePool {
	return &FencePool{inFlight: map[uint64]*GroupedFence{}}
}

// Pop returns a pooled fence with refcount 0, creating one if the pool is
// empty.
func (p *FencePool) Pop() *GroupedFence {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		f.signaled = false
		p.inFlight[f.ID] = f
		return f
	}
	f := &GroupedFence{ID: p.nextID}
	p.nextID++
	p.inFlight[f.ID] = f
	return f
}

// Group increments f's refcount by n, once per allocation submitted
// grouped onto it.
func (p *FencePool) Group(f *GroupedFence, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.refcount += int32(n)
}

// Signal marks f as GPU-signalled. It does not by itself return the fence
// to the pool — that only happens once every allocation referencing it has
// called Release (refcount reaches zero)'s fence-refcount
// safety property.
func (p *FencePool) Signal(f *GroupedFence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.signaled = true
}

// Release decrements f's refcount by one (one allocation finished with the
// fence). When the count reaches zero, f returns to the free pool.
func (p *FencePool) Release(f *GroupedFence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.refcount--
	if f.refcount <= 0 {
		delete(p.inFlight, f.ID)
		p.free = append(p.free, f)
	}
}

// Signaled reports whether f has been signalled.
func (f *GroupedFence) Signaled() bool { return f.signaled }

// Refcount returns f's current refcount (for tests).
func (f *GroupedFence) Refcount() int32 { return f.refcount }

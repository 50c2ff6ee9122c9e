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

// Package shadercache implements the content-addressed Shader Cache: a
// (feature-version UID, source-create-info) -> rewritten bitcode map,
// keyed by a SHA-1 digest computed through a pooled hasher, with a
// background auto-serialization worker and growth-factor throttling.
package shadercache

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/gapid-shaderlayer/gpuav/internal/crash"
	"github.com/gapid-shaderlayer/gpuav/internal/id"
	"github.com/gapid-shaderlayer/gpuav/internal/xlog"
)

// Key identifies a cache entry: the active feature-version and the
// byte-identical source blob plus its create-info.
type Key struct {
	FeatureVersionUID id.ID
	SourceCreateInfo []byte
	SourceBlob []byte
}

// ID returns the 64-bit-equivalent content hash calls the cache
// key. We use the full 160-bit id.ID rather than truncating to 64 bits,
// since nothing in this package depends on the key's width.
func (k Key) ID() id.ID {
	return id.Of(k.FeatureVersionUID[:], k.SourceCreateInfo, k.SourceBlob)
}

// Entry is the cached instrumented create-info for one Key.
type Entry struct {
	InstrumentedCreateInfo []byte
}

// Serializer converts cache entries to and from their (out of scope)
// on-disk format. The format itself is an external collaborator per
// ; this package only calls through the interface.
type Serializer interface {
	Serialize(w io.Writer, key Key, e *Entry) error
	Deserialize(r io.Reader) (Key, *Entry, error)
}

type record struct {
	key Key
	entry *Entry
}

// Cache is the shader cache described above.
type Cache struct {
	mu sync.Mutex
	records map[id.ID]*record
	pending int

	growthFactor float64
	missThreshold int
	missesSinceSer int

	serializer Serializer
	wake chan struct{}
	wakeOnce sync.Once
	sink *xlog.Sink
}

// Options configures a new Cache.
type Options struct {
	// GrowthFactor raises MissThreshold by this factor after every
	// successful auto-serialization flush, throttling I/O as the cache
	// warms. Must be > 1; defaults to 2 if <= 1.
	GrowthFactor float64
	// MissThreshold is the initial number of cache misses required to
	// trigger an auto-serialization flush.
	MissThreshold int
	Serializer Serializer
	Sink *xlog.Sink
}

// New creates an empty Cache and starts its auto-serialization worker.
func New(ctx context.Context, opts Options) *Cache {
	if opts.GrowthFactor <= 1 {
		opts.GrowthFactor = 2
	}
	if opts.MissThreshold <= 0 {
		opts.MissThreshold = 16
	}
	c := &Cache{
		records: map[id.ID]*record{},
		growthFactor: opts.GrowthFactor,
		missThreshold: opts.MissThreshold,
		serializer: opts.Serializer,
		wake: make(chan struct{}, 1),
		sink: opts.Sink,
	}
	crash.Go(func() { c.serializeWorker(ctx) })
	return c
}

// Query looks up key, returning the cached entry and whether it was found.
func (c *Cache) Query(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[key.ID()]
	if !ok {
		return nil, false
	}
	return r.entry, true
}

// Insert stores entry under key if absent, incrementing the pending-entries
// counter on a fresh insert (a "miss then insert"). It is
// a no-op if the key is already present.
func (c *Cache) Insert(key Key, entry *Entry) {
	c.mu.Lock()
	id := key.ID()
	_, exists := c.records[id]
	if !exists {
		c.records[id] = &record{key: key, entry: entry}
		c.pending++
		c.missesSinceSer++
		shouldWake := c.missesSinceSer >= c.missThreshold
		c.mu.Unlock()
		if shouldWake {
			c.AutoSerialize()
		}
		return
	}
	c.mu.Unlock()
}

// PendingEntries returns the number of inserted-but-not-yet-serialized
// entries.
func (c *Cache) PendingEntries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// AutoSerialize wakes the background worker at most once; redundant calls
// before the worker drains are coalesced.
func (c *Cache) AutoSerialize() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Cache) serializeWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.flush(ctx)
		}
	}
}

func (c *Cache) flush(ctx context.Context) {
	if c.serializer == nil {
		return
	}
	c.mu.Lock()
	pending := make([]*record, 0, c.pending)
	for _, r := range c.records {
		pending = append(pending, r)
	}
	c.mu.Unlock()

	serialized := 0
	for _, r := range pending {
		if err := c.serializeOne(r); err != nil {
			xlog.In(ctx, c.sink).Warning().Log("shadercache: serialize failed for %v: %v", r.key.ID(), err)
			continue
		}
		serialized++
	}

	c.mu.Lock()
	if c.pending >= serialized {
		c.pending -= serialized
	} else {
		c.pending = 0
	}
	c.missesSinceSer = 0
	c.missThreshold = int(float64(c.missThreshold) * c.growthFactor)
	c.mu.Unlock()
}

// serializeOne is a seam tests can stub; production wiring would write to
// a real io.Writer supplied by the (out of scope) on-disk format.
func (c *Cache) serializeOne(r *record) error {
	return c.serializer.Serialize(discard{}, r.key, r.entry)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Load deserializes every entry the Serializer yields until it returns
// io.EOF, then adds them all to the cache. On any other error the entries
// read so far are discarded, so a failed load adds nothing to the cache;
// the failure is logged rather than returned.
func (c *Cache) Load(ctx context.Context, r io.Reader) {
	if c.serializer == nil {
		return
	}
	loaded := map[id.ID]*record{}
	for {
		key, entry, err := c.serializer.Deserialize(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				xlog.In(ctx, c.sink).Warning().Log("shadercache: deserialize failed: %v", err)
				return
			}
			c.mu.Lock()
			for k, rec := range loaded {
				c.records[k] = rec
			}
			c.mu.Unlock()
			return
		}
		loaded[key.ID()] = &record{key: key, entry: entry}
	}
}

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

// Package id provides the content-hash identifiers used to key the shader
// cache and to name instrumented-shader and pipeline-layout records.
package id

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"sync"
)

// Size is the size of an ID in bytes.
const Size = 20

// ID is a content-addressable identifier.
type ID [Size]byte

// IsValid returns true if the id is not the zero value.
func (id ID) IsValid() bool { return id != ID{} }

func (id ID) String() string { return hex.EncodeToString(id[:]) }

func (id ID) Format(f fmt.State, c rune) { fmt.Fprintf(f, "%x", id[:]) }

var hasherPool = sync.Pool{New: func() interface{} { return sha1.New() }}

// Of hashes a sequence of byte slices into a single ID. Each slice is
// separated by a bullet so that Of([a,b]) != Of([ab]).
func Of(parts ...[]byte) ID {
	h := hasherPool.Get().(hash.Hash)
	h.Reset()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0xe2, 0x80, 0xa2}) // "•"
		}
		h.Write(p)
	}
	var out ID
	copy(out[:], h.Sum(nil))
	hasherPool.Put(h)
	return out
}

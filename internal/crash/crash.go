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

// Package crash provides the panic-reporting idiom used to launch every
// worker goroutine in this repository (shader compiler pool, pipeline
// compiler pool, shader-cache serializer, allocator filter worker). It does
// not offer a symbol-upload crash reporting backend — that is out of scope —
// but it preserves the same "report, then rethrow" contract so that a
// malformed bitcode assertion surfaces as a real process crash rather
// than silently killing one goroutine.
package crash

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Reporter receives an uncaught panic value and its stack trace.
type Reporter func(e interface{}, stack []byte)

var (
	mu sync.RWMutex
	reporters = map[int]Reporter{}
	nextID int
)

// Register adds r to the set of functions invoked on every uncaught panic
// reported through this package, returning a function that unregisters it.
func Register(r Reporter) func() {
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	reporters[id] = r
	return func() {
		mu.Lock()
		defer mu.Unlock()
		delete(reporters, id)
	}
}

// Go runs f on a new goroutine, reporting (but not swallowing) any panic.
func Go(f func()) {
	go func() {
		defer handle()
		f()
	}()
}

func handle() {
	if e := recover(); e != nil {
		Report(e)
		panic(e)
	}
}

// Report invokes every registered Reporter with e and the current stack.
// It does not panic on the caller's behalf; callers that want the
// "report then rethrow" behavior should call this from a
// deferred recover, as Go does above.
func Report(e interface{}) {
	stack := debug.Stack()
	mu.RLock()
	defer mu.RUnlock()
	for _, r := range reporters {
		r(e, stack)
	}
	if len(reporters) == 0 {
		fmt.Println("panic:", e)
		fmt.Println(string(stack))
	}
}

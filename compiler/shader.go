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

package compiler

// ShaderJob describes one shader-module instrumentation job: it runs instrumentation passes over a source shader and produces
// an instrumented bitcode blob.
type ShaderJob struct {
	SourceCreateInfo []byte
	FeatureMask uint64
	// Instrument runs the (registry-driven) rewrite. It is called on a
	// worker goroutine.
	Instrument func() (instrumented []byte, err error)

	Result []byte
	Err error
}

// ShaderPool runs ShaderJob batches. It is a thin, domain-typed wrapper
// over Pool — shader and pipeline compilation share one worker-pool core
// ("same pattern as shader compiler").
type ShaderPool struct {
	pool *Pool
}

// NewShaderPool creates a ShaderPool with workerCount lazily spawned
// worker goroutines.
func NewShaderPool(workerCount int) *ShaderPool {
	return &ShaderPool{pool: New(workerCount)}
}

// Push enqueues jobs as one batch and returns the commit published for it.
// completion is invoked exactly once, on a worker goroutine, when the last
// job of the batch retires.
func (s *ShaderPool) Push(jobs []*ShaderJob, completion func()) Commit {
	tasks := make([]Job, len(jobs))
	for i, j := range jobs {
		j := j
		tasks[i] = func() {
			j.Result, j.Err = j.Instrument()
		}
	}
	return s.pool.Push(tasks, completion)
}

func (s *ShaderPool) IsCommitPushed(c Commit) bool { return s.pool.IsCommitPushed(c) }
func (s *ShaderPool) PendingCommits(c Commit) uint32 { return s.pool.PendingCommits(c) }
func (s *ShaderPool) LatestCommit() Commit { return s.pool.LatestCommit() }
func (s *ShaderPool) Shutdown() { s.pool.Shutdown() }

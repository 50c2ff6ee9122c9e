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

// PipelineJob describes one pipeline-compilation job. Jobs deep-copy
// their create-info on enqueue (Push replaces CreateInfo with a copy it
// owns) because the caller may free or reuse the source between enqueue
// and execution.
type PipelineJob struct {
	CreateInfo []byte

	// ShaderCommits are the commits this pipeline's modules were
	// instrumented under. Compile cooperatively waits (polling, not
	// locking) until every one has retired before running.
	ShaderCommits []Commit
	Shaders *ShaderPool

	Compile func() (instrumented []byte, err error)

	Result []byte
	Err error
}

// PipelinePool runs PipelineJob batches, sharing the Pool core with
// ShaderPool's "same protocol as §4.3".
type PipelinePool struct {
	pool *Pool
}

// NewPipelinePool creates a PipelinePool with workerCount lazily spawned
// worker goroutines.
func NewPipelinePool(workerCount int) *PipelinePool {
	return &PipelinePool{pool: New(workerCount)}
}

// Push enqueues jobs as one batch. Each job first cooperatively waits for
// all of its ShaderCommits to be published, then runs Compile.
func (p *PipelinePool) Push(jobs []*PipelineJob, completion func()) Commit {
	tasks := make([]Job, len(jobs))
	for i, j := range jobs {
		j := j
		j.CreateInfo = append([]byte(nil), j.CreateInfo...)
		tasks[i] = func() {
			waitForShaderCommits(j)
			j.Result, j.Err = j.Compile()
		}
	}
	return p.pool.Push(tasks, completion)
}

// waitForShaderCommits cooperatively spins (no lock is held across the
// wait) until every shader commit this pipeline depends on has retired.
func waitForShaderCommits(j *PipelineJob) {
	if j.Shaders == nil {
		return
	}
	for _, c := range j.ShaderCommits {
		for !j.Shaders.IsCommitPushed(c) {
			yieldToScheduler()
		}
	}
}

func (p *PipelinePool) IsCommitPushed(c Commit) bool { return p.pool.IsCommitPushed(c) }
func (p *PipelinePool) PendingCommits(c Commit) uint32 { return p.pool.PendingCommits(c) }
func (p *PipelinePool) LatestCommit() Commit { return p.pool.LatestCommit() }
func (p *PipelinePool) Shutdown() { p.pool.Shutdown() }

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

// Package compiler implements the Shader Compiler Pool and Pipeline
// Compiler: a FIFO job queue drained by lazily spawned workers,
// publishing a monotonic commit per push and notifying a completion
// functor exactly once when every job in its batch retires.
package compiler

import (
	"sync"
	"sync/atomic"

	"github.com/gapid-shaderlayer/gpuav/internal/crash"
)

// Commit is a monotonic integer published once when work is enqueued
// (Pool.Push's return value) and again when it retires (observable via
// IsCommitPushed / PendingCommits).
type Commit uint64

// Job is one unit of instrumentation work (a single shader, or a single
// pipeline in the Pipeline Compiler's case).
type Job func()

// Pool is the shared worker-pool core underlying both the Shader Compiler
// Pool and the Pipeline Compiler: they differ only in what a Job does.
type Pool struct {
	mu sync.Mutex
	queue []Job
	wake *sync.Cond
	workerCount int
	spawned bool
	exit bool

	commitIndex atomic.Uint64
	completeCtr atomic.Uint64
	completionStep sync.Mutex
}

// New creates a Pool whose workers are spawned lazily on the first Push.
// workerCount must be >= 1.
func New(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{workerCount: workerCount}
	p.wake = sync.NewCond(&p.mu)
	return p
}

type batch struct {
	completion func()
	pending atomic.Int32
}

// Push enqueues n jobs as one batch, invoking completion exactly once —
// on a worker goroutine, inside the completion-step lock — when the last
// job of the batch retires. It returns the commit published for this
// push; commits increase strictly in Push call order.
func (p *Pool) Push(jobs []Job, completion func()) Commit {
	p.mu.Lock()
	if !p.spawned {
		p.spawned = true
		for i := 0; i < p.workerCount; i++ {
			crash.Go(p.workerLoop)
		}
	}
	b := &batch{completion: completion}
	b.pending.Store(int32(len(jobs)))
	if len(jobs) == 0 && completion != nil {
		// A zero-job push still reaches completion immediately.
		p.mu.Unlock()
		p.runCompletion(b)
		commit := Commit(p.commitIndex.Add(1))
		return commit
	}
	for _, j := range jobs {
		p.queue = append(p.queue, p.wrap(j, b))
	}
	commit := Commit(p.commitIndex.Add(1))
	p.wake.Broadcast()
	p.mu.Unlock()
	return commit
}

// wrap runs job and, when it is the last job of its batch to retire, runs
// the batch's completion functor under the completion-step lock.
func (p *Pool) wrap(job Job, b *batch) Job {
	return func() {
		job()
		if b.pending.Add(-1) == 0 {
			p.runCompletion(b)
		}
	}
}

func (p *Pool) workerLoop() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.exit {
			p.wake.Wait()
		}
		if len(p.queue) == 0 && p.exit {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		j()
	}
}

func (p *Pool) runCompletion(b *batch) {
	p.completionStep.Lock()
	defer p.completionStep.Unlock()
	if b.completion != nil {
		b.completion()
	}
	p.completeCtr.Add(1)
}

// IsCommitPushed reports whether commit has retired (monotonic: once
// true, always true).
func (p *Pool) IsCommitPushed(commit Commit) bool {
	return uint64(commit) <= p.completeCtr.Load()
}

// LatestCommit returns the commit published by the most recent Push, or 0
// if none has happened yet. begin_report captures this so
// later command-buffer recordings know which in-flight compiler work they
// must wait to catch up to.
func (p *Pool) LatestCommit() Commit {
	return Commit(p.commitIndex.Load())
}

// PendingCommits returns the saturating distance between commit and the
// current completion counter.
func (p *Pool) PendingCommits(commit Commit) uint32 {
	c := p.completeCtr.Load()
	if uint64(commit) <= c {
		return 0
	}
	d := uint64(commit) - c
	if d > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(d)
}

// Shutdown sets the exit flag and wakes all workers; they drain the
// remaining queue before terminating (cancellation never drops queued
// work).
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.exit = true
	p.wake.Broadcast()
	p.mu.Unlock()
}

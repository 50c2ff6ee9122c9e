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

// This file implements Pending Queue Initialization: a per-queue scratch
// command buffer and pool that carries "first submission" initialization
// batches (binding the diagnostic descriptor set's storage buffers,
// clearing the diagnostic mirror, etc.) onto whichever command buffer
// the application submits next on that queue.
//
// The missed-frame counter resets on every dispatch *attempt* regardless
// of outcome, since an attempt that then fails host-API validation still
// means the queue was live; a separate Invalidate path exists for the
// orthogonal case of the emulation itself being torn down (e.g. device
// lost), which must not be conflated with a merely-failed submission.
package layer

import "sync"

// PendingBatch is one queued first-submission initialization unit: opaque
// to this package, owned by whatever component registered it (shader
// cache warmup, diagnostic set clear, ...).
type PendingBatch func()

// maxMissedFrames bounds how many Tick calls a queue's current submission
// may stay outstanding, with no DispatchAttempt on that queue in between,
// before Tick drops it so the next pending batch can be dispatched rather
// than waiting forever on a queue that may never submit again.
const maxMissedFrames = 256

// queueState is one observed queue's PQI record.
type queueState struct {
	pending []PendingBatch
	current *PendingBatch // at most one "current" submission per queue
	missedFrames int
	invalidated bool
}

// PQI tracks Pending Queue Initialization across every queue a device has
// observed submissions on.
type PQI struct {
	mu sync.Mutex
	queues map[interface{}]*queueState
}

// NewPQI returns an empty PQI tracker.
func NewPQI() *PQI {
	return &PQI{queues: map[interface{}]*queueState{}}
}

// Enqueue appends a pending initialization batch for queue, to be carried
// by the next dispatch attempt that finds no current submission
// outstanding.
func (p *PQI) Enqueue(queue interface{}, batch PendingBatch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queueFor(queue)
	if q.invalidated {
		return
	}
	q.pending = append(q.pending, batch)
}

func (p *PQI) queueFor(queue interface{}) *queueState {
	q, ok := p.queues[queue]
	if !ok {
		q = &queueState{}
		p.queues[queue] = q
	}
	return q
}

// DispatchAttempt is called once per submission attempt on queue,
// regardless of whether the host-API call ultimately succeeds: the
// missed-frame counter resets here, not only on confirmed success, since
// a queue that is merely still catching up to the diagnostic allocator's
// throttling is not the same condition as one whose emulation lifetime
// has ended. If no current submission is outstanding and batches are
// pending, it pops and returns the next one for the caller to fold into
// this submission's command buffer.
func (p *PQI) DispatchAttempt(queue interface{}) (PendingBatch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queueFor(queue)
	q.missedFrames = 0
	if q.invalidated || q.current != nil || len(q.pending) == 0 {
		return nil, false
	}
	b := q.pending[0]
	q.pending = q.pending[1:]
	q.current = &b
	return b, true
}

// Complete marks queue's current submission as retired, allowing the next
// pending batch (if any) to be dispatched.
func (p *PQI) Complete(queue interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queueFor(queue)
	q.current = nil
}

// Tick ages every queue with a current submission outstanding by one
// missed frame, dropping the submission (and letting the next pending
// batch take its place) once maxMissedFrames is exceeded — the same
// "never signals, keep polling rather than block forever" policy the
// allocator's fence tracking applies, here to PQI's own
// current-submission slot.
func (p *PQI) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range p.queues {
		if q.current == nil {
			continue
		}
		q.missedFrames++
		if q.missedFrames > maxMissedFrames {
			q.current = nil
		}
	}
}

// Invalidate guards the emulation lifetime: once called for queue, no further batches are accepted or
// dispatched for it, independent of the missed-frame counter's own reset
// behavior on ordinary dispatch attempts.
func (p *PQI) Invalidate(queue interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queueFor(queue)
	q.invalidated = true
	q.pending = nil
	q.current = nil
}

// PendingCount returns how many batches remain queued for queue.
func (p *PQI) PendingCount(queue interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queueFor(queue).pending)
}

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

package layer

import "testing"

// TestPQIResetsOnDispatchAttempt resolves open question: the
// missed-frame counter resets on every dispatch attempt, not only on
// confirmed success.
func TestPQIResetsOnDispatchAttempt(t *testing.T) {
	p := NewPQI()
	const queue = "q0"

	ran := false
	p.Enqueue(queue, func() { ran = true })

	batch, ok := p.DispatchAttempt(queue)
	if !ok {
		t.Fatalf("DispatchAttempt should pop the pending batch")
	}
	batch()
	if !ran {
		t.Fatalf("popped batch should be runnable")
	}

	for i := 0; i < maxMissedFrames+10; i++ {
		p.Tick()
		if _, ok := p.DispatchAttempt(queue); ok {
			t.Fatalf("no batches pending, DispatchAttempt should not pop anything")
		}
	}

	p.Complete(queue)
	p.Enqueue(queue, func() {})
	if n := p.PendingCount(queue); n != 1 {
		t.Fatalf("PendingCount = %d, want 1", n)
	}
	if _, ok := p.DispatchAttempt(queue); !ok {
		t.Fatalf("current submission completed, next pending batch should dispatch")
	}
}

// TestPQIInvalidateStopsFurtherBatches exercises the separate
// emulation-lifetime guard asks for alongside the dispatch
// reset: Invalidate must not be conflated with a plain failed attempt.
func TestPQIInvalidateStopsFurtherBatches(t *testing.T) {
	p := NewPQI()
	const queue = "q1"

	p.Invalidate(queue)
	p.Enqueue(queue, func() {})
	if n := p.PendingCount(queue); n != 0 {
		t.Fatalf("PendingCount after Invalidate = %d, want 0 (enqueue should be a no-op)", n)
	}
	if _, ok := p.DispatchAttempt(queue); ok {
		t.Fatalf("DispatchAttempt on an invalidated queue should never pop")
	}
}

// TestPQICurrentSubmissionDroppedAfterMaxMissedFrames exercises the
// liveness policy borrowed from error kind 5: a current
// submission that never completes is eventually dropped rather than
// blocking the queue's pending batches forever.
func TestPQICurrentSubmissionDroppedAfterMaxMissedFrames(t *testing.T) {
	p := NewPQI()
	const queue = "q2"

	p.Enqueue(queue, func() {})
	if _, ok := p.DispatchAttempt(queue); !ok {
		t.Fatalf("first DispatchAttempt should pop the only pending batch")
	}
	p.Enqueue(queue, func() {})

	for i := 0; i <= maxMissedFrames; i++ {
		p.Tick()
	}
	if _, ok := p.DispatchAttempt(queue); !ok {
		t.Fatalf("stale current submission should have been dropped, freeing the next batch")
	}
}

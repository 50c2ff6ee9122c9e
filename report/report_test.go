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

package report

import (
	"testing"
	"time"
)

func TestMessageCountConservation(t *testing.T) {
	r := New(BeginInfo{FeatureMask: 1}, time.Unix(0, 0))

	r.AddMessage(Message{Code: 1, SGUID: 1}, true)
	r.AddMessage(Message{Code: 1, SGUID: 1}, true) // dedup-coalesced, still exported
	r.AddMessage(Message{Code: 2, SGUID: 2}, false) // filtered by its pass
	r.RecordLatentShoots(3, 4)

	info := r.GetInfo()
	total := info.Exported + info.Filtered + info.LatentUndershoots + info.LatentOvershoots
	if total != info.Received {
		t.Fatalf("exported(%d)+filtered(%d)+undershoots(%d)+overshoots(%d) = %d, want received %d",
			info.Exported, info.Filtered, info.LatentUndershoots, info.LatentOvershoots, total, info.Received)
	}
	if len(r.Messages()) != 1 {
		t.Fatalf("dedup should coalesce to one displayed message, got %d", len(r.Messages()))
	}
	if got := r.CountFor(1, 1); got != 2 {
		t.Fatalf("CountFor(1,1) = %d, want 2", got)
	}
}

func TestAddMessageRejectedAfterEnd(t *testing.T) {
	r := New(BeginInfo{}, time.Unix(0, 0))
	r.End(time.Unix(1, 0))
	if err := r.AddMessage(Message{Code: 1}, true); err != ErrReportEnded {
		t.Fatalf("AddMessage after End = %v, want ErrReportEnded", err)
	}
}

func TestFlushPreservesSteps(t *testing.T) {
	r := New(BeginInfo{}, time.Unix(0, 0))
	r.AddMessage(Message{Code: 1, SGUID: 1}, true)
	r.Step(time.Unix(1, 0), map[string]uint64{"bounds": 1}, 5, 6)

	r.Flush()

	if len(r.Messages()) != 0 {
		t.Fatalf("flush should clear messages, got %d", len(r.Messages()))
	}
	if len(r.Steps()) != 1 {
		t.Fatalf("flush should preserve steps, got %d", len(r.Steps()))
	}
}

func TestEndIsIdempotent(t *testing.T) {
	r := New(BeginInfo{}, time.Unix(0, 0))
	r.End(time.Unix(5, 0))
	elapsed := r.Elapsed()
	r.End(time.Unix(50, 0))
	if r.Elapsed() != elapsed {
		t.Fatalf("second End call should not move elapsed time")
	}
}

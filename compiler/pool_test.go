package compiler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPushCompletesOnceForBatch(t *testing.T) {
	p := New(4)
	var ran int32
	var completions int32

	jobs := make([]Job, 8)
	for i := range jobs {
		jobs[i] = func() { atomic.AddInt32(&ran, 1) }
	}
	commit := p.Push(jobs, func() { atomic.AddInt32(&completions, 1) })

	deadline := time.Now().Add(2 * time.Second)
	for !p.IsCommitPushed(commit) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !p.IsCommitPushed(commit) {
		t.Fatalf("commit never retired")
	}
	if atomic.LoadInt32(&ran) != 8 {
		t.Fatalf("expected 8 jobs to run, got %d", ran)
	}
	if atomic.LoadInt32(&completions) != 1 {
		t.Fatalf("expected exactly 1 completion call, got %d", completions)
	}
}

func TestCommitMonotonicity(t *testing.T) {
	p := New(2)
	var mu sync.Mutex
	var order []int

	const n = 20
	commits := make([]Commit, n)
	for i := 0; i < n; i++ {
		i := i
		commits[i] = p.Push([]Job{func() {
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
			}}, nil)
	}

	for i := 1; i < n; i++ {
		if commits[i] <= commits[i-1] {
			t.Fatalf("commit_index must increase strictly in push order: %v", commits)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for !p.IsCommitPushed(commits[n-1]) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// complete_counter is non-decreasing across all observers: sampling it
	// repeatedly must never go backwards.
	var last uint64
	for i := 0; i < 100; i++ {
		cur := p.completeCtr.Load()
		if cur < last {
			t.Fatalf("complete_counter went backwards: %d -> %d", last, cur)
		}
		last = cur
	}
}

func TestPendingCommitsSaturates(t *testing.T) {
	p := New(1)
	if got := p.PendingCommits(Commit(5)); got != 5 {
		t.Fatalf("expected pending_commits(5) == 5 before any push, got %d", got)
	}
}

package xlog

import "sync/atomic"

// Sparse rate-limits a recurring warning to at most once per `every` calls
// of Tick. It is used by the allocator and registry for conditions that are
// expected to repeat every frame but should not flood the log.
type Sparse struct {
	every int32
	count int32
}

// NewSparse returns a Sparse that fires on the first call and then once
// every `every` subsequent calls.
func NewSparse(every int32) *Sparse {
	if every < 1 {
		every = 1
	}
	return &Sparse{every: every}
}

// Tick reports whether this call should actually emit a log message.
func (s *Sparse) Tick() bool {
	n := atomic.AddInt32(&s.count, 1)
	return (n-1)%s.every == 0
}

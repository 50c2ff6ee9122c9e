package compiler

import "runtime"

// yieldToScheduler gives other goroutines a chance to run during a
// cooperative (lock-free) wait: "waits cooperatively,
// not with a lock".
func yieldToScheduler() { runtime.Gosched() }

package raft

import "sync"

// Ordered is the successful outcome of a replicate/query/membership-change
// operation: the log index (or query-round commit index) at which it took
// effect, plus the user-visible result.
type Ordered struct {
	CommitIndex LogIndex
	Result      interface{}
}

// Result is what a Future resolves to: either a value or an error, never
// both, and the Future completes exactly once (§3 invariant 9, §9 "complete
// once with success-or-error").
type Result struct {
	Value Ordered
	Err   error
}

// Future is one in-flight replicate/query/membership-change operation
// (PendingFuture in spec.md §3). It is produced by Node's API calls and
// resolved exactly once by the Applier, the snapshot procedure, or a role
// transition that invalidates it.
type Future struct {
	once sync.Once
	done chan struct{}
	res  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete resolves the future. Subsequent calls are no-ops, satisfying the
// "reject double-completion" contract.
func (f *Future) complete(res Result) {
	f.once.Do(func() {
		f.res = res
		close(f.done)
	})
}

// Done returns a channel closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves and returns its result. Safe to
// call from any goroutine; the future itself is only ever completed from
// the node's executor.
func (f *Future) Wait() (Ordered, error) {
	<-f.done
	return f.res.Value, f.res.Err
}

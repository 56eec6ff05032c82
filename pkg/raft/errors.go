package raft

import "fmt"

// NotLeaderError is returned when an operation requires leader role and the
// local node is not (or is no longer) the leader.
type NotLeaderError struct {
	// LeaderHint is the last known leader, or "" if unknown.
	LeaderHint Endpoint
}

func (e *NotLeaderError) Error() string {
	if e.LeaderHint == "" {
		return "not leader, no known leader hint"
	}
	return fmt.Sprintf("not leader, hint: %s", e.LeaderHint)
}

// CannotReplicateError is returned when the log is full, a membership
// change is already in flight, or a leadership transfer is pending.
type CannotReplicateError struct {
	LeaderHint Endpoint
	Reason     string
}

func (e *CannotReplicateError) Error() string {
	return fmt.Sprintf("cannot replicate: %s", e.Reason)
}

// LaggingCommitIndexError is returned when a query's minCommitIndex gate
// fails.
type LaggingCommitIndexError struct {
	Current    LogIndex
	Expected   LogIndex
	LeaderHint Endpoint
}

func (e *LaggingCommitIndexError) Error() string {
	return fmt.Sprintf("lagging commit index: have %d, need >= %d", e.Current, e.Expected)
}

// IndeterminateStateError is returned when an entry's outcome was
// superseded by a snapshot before the caller observed it.
type IndeterminateStateError struct {
	LeaderHint Endpoint
}

func (e *IndeterminateStateError) Error() string {
	return "indeterminate state: entry was compacted into a snapshot before commit was observed"
}

// RaftException wraps an unexpected internal failure (persistence I/O,
// state-machine panic).
type RaftException struct {
	Cause error
}

func (e *RaftException) Error() string {
	return fmt.Sprintf("raft internal error: %v", e.Cause)
}

func (e *RaftException) Unwrap() error { return e.Cause }

// errLogFull is returned by Log.append when the capacity invariant
// (§3 invariant 7) would be broken.
var errLogFull = fmt.Errorf("log is full")

// errNotUncommitted describes an attempt to truncate committed entries.
// Log.truncateFrom does not check commitIndex and does not return it; its
// caller guards against truncating committed indices.
var errNotUncommitted = fmt.Errorf("cannot truncate committed entries")

package raft

import (
	"context"
	"time"
)

// Task is one unit of work dispatched on the node's single logical
// executor: an inbound message, an API call continuation, or a timer
// firing. Tasks never run concurrently with each other for the same node.
type Task func(ctx context.Context)

// Report is the periodic operator-facing snapshot of node status emitted
// every Config.ReportPublishPeriod.
type Report struct {
	Self             Endpoint
	Role             string
	Status           string
	Term             Term
	Leader           Endpoint
	CommitIndex      LogIndex
	LastApplied      LogIndex
	LastLogIndex     LogIndex
	CommittedMembers []Endpoint
	EffectiveMembers []Endpoint
}

// Runtime is the host-supplied execution and transport contract (§6). The
// node never opens a socket or schedules a goroutine directly; every side
// effect flows through Runtime.
type Runtime interface {
	// Execute runs task immediately on the node's executor (synchronously
	// from the caller's perspective if already on it, otherwise handed
	// off and awaited).
	Execute(ctx context.Context, task Task)
	// Submit enqueues task to run later on the node's executor, preserving
	// per-sender ordering for tasks derived from the same message stream.
	Submit(task Task)
	// Schedule arms a one-shot timer; its callback is delivered as a task
	// on the node's executor after delay.
	Schedule(task Task, delay time.Duration) CancelFunc
	// Send is best-effort: it may drop the message, and makes no
	// ordering guarantee across destinations.
	Send(to Endpoint, msg Message)
	// OnReport delivers a periodic status report to the operator.
	OnReport(report Report)
	// OnGroupTerminated is the final callback once status becomes
	// Terminated.
	OnGroupTerminated()
}

// CancelFunc cancels a scheduled timer; calling it after the timer already
// fired is a no-op.
type CancelFunc func()

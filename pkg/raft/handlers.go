package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// Handle dispatches one inbound message to the appropriate one of the ten
// handlers (§4.3). It is meant to be invoked as a Task on the node's
// executor (via Runtime.Submit), e.g.:
//
//	runtime.Submit(func(ctx context.Context) { node.Handle(ctx, msg) })
//
// Handler exceptions are logged and dropped per §7 ("the message is
// untrusted input"); they never propagate to the caller.
func (n *Node) Handle(ctx context.Context, msg Message) {
	if n.status.isTerminal() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logutil.Error("node %s: recovered from handler panic: %v", n.self, r)
		}
	}()

	if !n.applyTermRule(ctx, msg) {
		return
	}

	switch m := msg.(type) {
	case *AppendEntriesRequest:
		n.handleAppendEntriesRequest(ctx, m)
	case *AppendEntriesSuccess:
		n.handleAppendEntriesSuccess(ctx, m)
	case *AppendEntriesFailure:
		n.handleAppendEntriesFailure(ctx, m)
	case *InstallSnapshotRequest:
		n.handleInstallSnapshotRequest(ctx, m)
	case *InstallSnapshotResponse:
		n.handleInstallSnapshotResponse(ctx, m)
	case *VoteRequest:
		n.handleVoteRequest(ctx, m)
	case *VoteResponse:
		n.handleVoteResponse(ctx, m)
	case *PreVoteRequest:
		n.handlePreVoteRequest(ctx, m)
	case *PreVoteResponse:
		n.handlePreVoteResponse(ctx, m)
	case *TriggerLeaderElection:
		n.handleTriggerLeaderElection(ctx, m)
	default:
		logutil.Warning("node %s: dropping message of unknown type %T", n.self, msg)
	}
}

// applyTermRule enforces §4.3's universal first step: if the incoming term
// is higher, persist (term, vote=none) and become follower; if lower,
// reject outright (the handler never runs). PreVote messages are exempted
// from the persist-and-follow side effect per §4.3 (they "do not mutate
// durable term/vote") but a higher pre-vote term still causes the request
// to be considered, never rejected as stale.
func (n *Node) applyTermRule(ctx context.Context, msg Message) bool {
	term := msg.messageTerm()

	switch msg.(type) {
	case *PreVoteRequest, *PreVoteResponse:
		return term >= n.ps.term
	}

	if term > n.ps.term {
		n.becomeFollower(ctx, term, "")
		return true
	}
	if term < n.ps.term {
		logutil.Trace("T%d: node %s rejecting stale message (term %d) from %s", n.ps.term, n.self, term, msg.sender())
		return false
	}
	return true
}

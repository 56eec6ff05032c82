package raft

import (
	"context"
	"time"

	"github.com/sidecus/raftcore/internal/logutil"
)

// leadershipTransferTimeout bounds how long a transfer may retry before
// failing with Timeout (§4.9, §5 cancellation & timeouts).
const leadershipTransferTimeout = 5 * time.Second
const leadershipTransferInitialBackoff = 100 * time.Millisecond

// startLeadershipTransfer implements §4.9: the target must be a committed
// member and caught up; the leader waits for pending entries to commit,
// then sends a final AppendEntries followed by TriggerLeaderElection, with
// exponential-backoff retries until timeout or a higher term is observed.
func (n *Node) startLeadershipTransfer(ctx context.Context, target Endpoint, future *Future) {
	if n.role != roleLeader {
		future.complete(Result{Err: &NotLeaderError{LeaderHint: n.currentLeader}})
		return
	}
	if !n.committedMembers.Contains(target) {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "transfer target is not a committed member"}})
		return
	}
	if n.leader.transfer != nil {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "a leadership transfer is already pending"}})
		return
	}

	n.leader.transfer = &transferState{
		target:   target,
		future:   future,
		deadline: n.driver.now().Add(leadershipTransferTimeout),
		backoff:  leadershipTransferInitialBackoff,
	}
	n.driveLeadershipTransfer(ctx)
}

// driveLeadershipTransfer is re-entered on every leader heartbeat tick and
// whenever a retry timer fires.
func (n *Node) driveLeadershipTransfer(ctx context.Context) {
	ts := n.leader.transfer
	if ts == nil {
		return
	}
	if n.driver.now().After(ts.deadline) {
		n.invalidateTransfer(&timeoutError{})
		return
	}
	if n.uncommittedCount() > 0 {
		// Wait for all pending entries to commit before transferring
		// (§4.9).
		return
	}

	f, ok := n.leader.followers[ts.target]
	if !ok || f.matchIndex < n.lastLogIndex() {
		n.replication.triggerAll(ctx, n)
		n.scheduleTransferRetry(ctx)
		return
	}

	n.runtime.Send(ts.target, n.buildAppendEntries(f.nextIndex, 0))
	n.runtime.Send(ts.target, &TriggerLeaderElection{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		LastLogTerm:  n.lastLogTerm(),
		LastLogIndex: n.lastLogIndex(),
	})
	logutil.Info("T%d: node %s triggering leadership transfer to %s", n.ps.term, n.self, ts.target)
	n.scheduleTransferRetry(ctx)
}

func (n *Node) scheduleTransferRetry(ctx context.Context) {
	ts := n.leader.transfer
	if ts == nil {
		return
	}
	delay := ts.backoff
	ts.backoff *= 2
	n.runtime.Schedule(func(ctx context.Context) {
		if n.leader == nil || n.leader.transfer != ts {
			return
		}
		n.driveLeadershipTransfer(ctx)
	}, delay)
}

// invalidateTransfer fails any in-flight leadership transfer. Success is
// observed indirectly: once the leader sees a higher term (becomeFollower
// with termAdvanced) the transfer's goal has been met, so it is simply
// dropped without an error, matching §4.9 "success: the leader observes a
// higher term".
func (n *Node) invalidateTransfer(err error) {
	if n.leader == nil || n.leader.transfer == nil {
		return
	}
	if err != nil {
		n.leader.transfer.future.complete(Result{Err: err})
	} else {
		n.leader.transfer.future.complete(Result{Value: Ordered{}})
	}
	n.leader.transfer = nil
}

type timeoutError struct{}

func (e *timeoutError) Error() string { return "leadership transfer timed out" }

package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// membershipController implements §4.9: single-server change arbitration,
// effective-vs-committed member lists, and the gating rule that a leader
// may not commit a membership change until it has committed some entry of
// its own term (§3 invariant 6).
type membershipController struct {
	uncommittedIndex LogIndex // 0 when no UpdateMembers entry is in flight
}

func (mc *membershipController) hasUncommittedChange() bool {
	return mc.uncommittedIndex != 0
}

func (mc *membershipController) onCommitted(n *Node, index LogIndex) {
	if mc.uncommittedIndex == index {
		mc.uncommittedIndex = 0
	}
}

func (mc *membershipController) onOwnTermCommit(n *Node) {}

// changeMembership implements the rejection ladder and append of §4.9.
func (mc *membershipController) changeMembership(ctx context.Context, n *Node, endpoint Endpoint, mode MembershipMode, expectedCommitIndex LogIndex, future *Future) {
	if n.status.isTerminal() {
		future.complete(Result{Err: &NotLeaderError{}})
		return
	}
	if n.role != roleLeader {
		future.complete(Result{Err: &NotLeaderError{LeaderHint: n.currentLeader}})
		return
	}
	if expectedCommitIndex != n.committedMembers.LogIndex {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "expectedCommitIndex does not match committed membership log index"}})
		return
	}
	if mc.hasUncommittedChange() {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "a membership change is already uncommitted"}})
		return
	}
	if n.leader.transfer != nil {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "a leadership transfer is pending"}})
		return
	}
	if !n.leader.sawOwnTermCommit {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "no entry of the current term has been committed yet"}})
		return
	}

	members := nextMemberList(n.effectiveMembers.Members, endpoint, mode)
	entry := LogEntry{
		Index: n.lastLogIndex() + 1,
		Term:  n.ps.term,
		Operation: Operation{
			Kind: OpUpdateMembers,
			Membership: MembershipChange{
				Endpoint: endpoint,
				Mode:     mode,
				Members:  members,
			},
		},
	}
	if err := n.ps.appendAndPersist(ctx, []LogEntry{entry}); err != nil {
		future.complete(Result{Err: err})
		return
	}

	// Effective members flip on append (§4.9).
	n.effectiveMembers = MemberSet{LogIndex: entry.Index, Members: members}
	if mode == MembershipAdd {
		if _, ok := n.leader.followers[endpoint]; !ok {
			n.leader.followers[endpoint] = newFollowerState(endpoint, n.lastLogIndex())
		}
	}
	mc.uncommittedIndex = entry.Index
	n.futures[entry.Index] = future
	logutil.Info("T%d: node %s proposing membership change at %d: %v %s", n.ps.term, n.self, entry.Index, mode, endpoint)
	n.replication.triggerAll(ctx, n)
}

func nextMemberList(current []Endpoint, endpoint Endpoint, mode MembershipMode) []Endpoint {
	out := make([]Endpoint, 0, len(current)+1)
	switch mode {
	case MembershipAdd:
		out = append(out, current...)
		for _, e := range out {
			if e == endpoint {
				return out
			}
		}
		out = append(out, endpoint)
	case MembershipRemove:
		for _, e := range current {
			if e != endpoint {
				out = append(out, e)
			}
		}
	}
	return out
}

func (m MembershipMode) String() string {
	if m == MembershipAdd {
		return "add"
	}
	return "remove"
}

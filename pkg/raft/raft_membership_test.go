package raft

import (
	"context"
	"testing"
)

// TestChangeMembershipRejectedWhenNotLeader covers §4.9's first guard: a
// follower must reject with NotLeaderError.
func TestChangeMembershipRejectedWhenNotLeader(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	future := n.ChangeMembership(ctx, "node-d", MembershipAdd, 0)
	_, err := future.Wait()

	var notLeader *NotLeaderError
	if !asNotLeader(err, &notLeader) {
		t.Fatalf("err = %v, want *NotLeaderError", err)
	}
}

// TestChangeMembershipRejectedBeforeOwnTermCommit covers §3 invariant 6 /
// §4.9's gating rule: a freshly elected leader cannot commit a membership
// change until it has committed an entry of its own term.
func TestChangeMembershipRejectedBeforeOwnTermCommit(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())
	mustBecomeLeader(t, n)

	future := n.ChangeMembership(ctx, "node-d", MembershipAdd, n.committedMembers.LogIndex)
	_, err := future.Wait()

	if _, ok := err.(*CannotReplicateError); !ok {
		t.Fatalf("err = %v, want *CannotReplicateError", err)
	}
}

// TestChangeMembershipRejectsSecondChangeWhileUncommitted covers §4.9's
// single-outstanding-change rule once the own-term-commit gate is cleared.
func TestChangeMembershipRejectsSecondChangeWhileUncommitted(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())
	mustBecomeLeader(t, n)
	n.leader.sawOwnTermCommit = true

	first := n.ChangeMembership(ctx, "node-d", MembershipAdd, n.committedMembers.LogIndex)
	select {
	case <-first.Done():
		t.Fatalf("first membership change should still be uncommitted")
	default:
	}

	second := n.ChangeMembership(ctx, "node-e", MembershipAdd, n.committedMembers.LogIndex)
	_, err := second.Wait()

	if _, ok := err.(*CannotReplicateError); !ok {
		t.Fatalf("err = %v, want *CannotReplicateError", err)
	}
}

// TestTransferLeadershipRejectedWhenNotLeader covers §4.9's first guard on
// the leadership-transfer path.
func TestTransferLeadershipRejectedWhenNotLeader(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	future := n.TransferLeadership(ctx, epB)
	_, err := future.Wait()

	var notLeader *NotLeaderError
	if !asNotLeader(err, &notLeader) {
		t.Fatalf("err = %v, want *NotLeaderError", err)
	}
}

// TestTransferLeadershipRejectedForUncommittedMember covers the target
// validity check: the transfer target must already be a committed member.
func TestTransferLeadershipRejectedForUncommittedMember(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())
	mustBecomeLeader(t, n)

	future := n.TransferLeadership(ctx, "node-ghost")
	_, err := future.Wait()

	if _, ok := err.(*CannotReplicateError); !ok {
		t.Fatalf("err = %v, want *CannotReplicateError", err)
	}
}

// membershipEntry builds the OpUpdateMembers log entry a leader would send
// to add endpoint to members, at the given index/term.
func membershipEntry(index LogIndex, term Term, endpoint Endpoint, members []Endpoint) LogEntry {
	return LogEntry{
		Index: index,
		Term:  term,
		Operation: Operation{
			Kind: OpUpdateMembers,
			Membership: MembershipChange{
				Endpoint: endpoint,
				Mode:     MembershipAdd,
				Members:  members,
			},
		},
	}
}

// TestFollowerAppliesEffectiveMembersOnAppend covers §3's per-node (not
// leader-only) effective/committed distinction: a follower must update
// n.effectiveMembers as soon as it appends an OpUpdateMembers entry, not
// only once that entry commits.
func TestFollowerAppliesEffectiveMembersOnAppend(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	newMembers := append(append([]Endpoint(nil), threeMemberGroup()...), "node-d")
	n.handleAppendEntriesRequest(ctx, &AppendEntriesRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: epB, Term: 1},
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries:      []LogEntry{membershipEntry(1, 1, "node-d", newMembers)},
		LeaderCommit: 0,
	})

	if n.effectiveMembers.LogIndex != 1 {
		t.Fatalf("effectiveMembers.LogIndex = %d, want 1", n.effectiveMembers.LogIndex)
	}
	if !n.effectiveMembers.Contains("node-d") {
		t.Fatalf("effectiveMembers = %v, want it to contain node-d", n.effectiveMembers.Members)
	}
	// The change is still uncommitted: committedMembers must not have moved.
	if n.committedMembers.Contains("node-d") {
		t.Fatalf("committedMembers = %v, want it to still exclude node-d", n.committedMembers.Members)
	}
}

// TestFollowerRevertsEffectiveMembersOnTruncation covers the companion
// case: if a later AppendEntries from a new leader truncates away the
// uncommitted OpUpdateMembers entry a follower had appended, its
// effectiveMembers must revert to the last committed set rather than keep
// pointing at a now-discarded entry.
func TestFollowerRevertsEffectiveMembersOnTruncation(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	newMembers := append(append([]Endpoint(nil), threeMemberGroup()...), "node-d")
	n.handleAppendEntriesRequest(ctx, &AppendEntriesRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: epB, Term: 1},
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries:      []LogEntry{membershipEntry(1, 1, "node-d", newMembers)},
		LeaderCommit: 0,
	})
	if n.effectiveMembers.LogIndex != 1 {
		t.Fatalf("effectiveMembers.LogIndex = %d, want 1 after first append", n.effectiveMembers.LogIndex)
	}

	// A new leader (higher term) overwrites index 1 with an unrelated
	// no-op user entry instead, conflicting with and truncating the
	// pending membership change.
	n.handleAppendEntriesRequest(ctx, &AppendEntriesRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: epC, Term: 2},
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries: []LogEntry{{
			Index:     1,
			Term:      2,
			Operation: Operation{Kind: OpUser, User: "noop"},
		}},
		LeaderCommit: 0,
	})

	if n.effectiveMembers.LogIndex != n.committedMembers.LogIndex {
		t.Fatalf("effectiveMembers = %v, want it reverted to committedMembers %v", n.effectiveMembers, n.committedMembers)
	}
	if n.effectiveMembers.Contains("node-d") {
		t.Fatalf("effectiveMembers = %v, want node-d gone after truncation", n.effectiveMembers.Members)
	}
}

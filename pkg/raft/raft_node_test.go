package raft

import (
	"context"
	"testing"
)

var (
	epA Endpoint = "node-a"
	epB Endpoint = "node-b"
	epC Endpoint = "node-c"
)

func threeMemberGroup() []Endpoint {
	return []Endpoint{epA, epB, epC}
}

// TestElectionWinsOnMajorityPreVoteThenVote exercises the full pre-vote ->
// vote -> leader path of §4.2/§4.3: a follower becomes pre-candidate,
// collects a majority of pre-vote grants, advances to a real candidate,
// collects a majority of vote grants, and becomes leader.
func TestElectionWinsOnMajorityPreVoteThenVote(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	n.becomePreCandidate(ctx)
	if n.role != rolePreCandidate {
		t.Fatalf("role = %v, want PreCandidate", n.role)
	}

	n.handlePreVoteResponse(ctx, &PreVoteResponse{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: epB, Term: n.ps.term + 1},
		VoteGranted: true,
	})
	if n.role != roleCandidate {
		t.Fatalf("role = %v after majority pre-vote, want Candidate", n.role)
	}
	termAfterElection := n.ps.term

	n.handleVoteResponse(ctx, &VoteResponse{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: epB, Term: termAfterElection},
		VotedTerm:   termAfterElection,
		VoteGranted: true,
	})
	if n.role != roleLeader {
		t.Fatalf("role = %v after majority vote, want Leader", n.role)
	}
	if n.currentLeader != epA {
		t.Fatalf("currentLeader = %v, want self", n.currentLeader)
	}
}

// TestStickyVoteDeniedWithRecentLeaderContact covers §4.3's stickiness
// rule: a sticky VoteRequest is denied if this node has recently heard
// from a leader, even though its log is up to date and it hasn't voted
// this term.
func TestStickyVoteDeniedWithRecentLeaderContact(t *testing.T) {
	ctx := context.Background()
	n, rt := newTestNode(epA, threeMemberGroup())

	n.becomeFollower(ctx, n.ps.term, epB) // records lastHeardFromLeader

	n.handleVoteRequest(ctx, &VoteRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: epC, Term: n.ps.term},
		LastLogTerm:  0,
		LastLogIndex: 0,
		Sticky:       true,
	})

	resp, ok := rt.lastSentTo(epC).(*VoteResponse)
	if !ok {
		t.Fatalf("expected a VoteResponse sent to %s", epC)
	}
	if resp.VoteGranted {
		t.Fatalf("sticky vote should have been denied with recent leader contact")
	}
}

// TestNonStickyVoteGrantedDespiteRecentLeaderContact covers the
// leadership-transfer path: handleTriggerLeaderElection starts a
// non-sticky election, so peers must grant it even with a live leader.
func TestNonStickyVoteGrantedDespiteRecentLeaderContact(t *testing.T) {
	ctx := context.Background()
	n, rt := newTestNode(epA, threeMemberGroup())

	n.becomeFollower(ctx, n.ps.term, epB)

	n.handleVoteRequest(ctx, &VoteRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: epC, Term: n.ps.term},
		LastLogTerm:  0,
		LastLogIndex: 0,
		Sticky:       false,
	})

	resp, ok := rt.lastSentTo(epC).(*VoteResponse)
	if !ok {
		t.Fatalf("expected a VoteResponse sent to %s", epC)
	}
	if !resp.VoteGranted {
		t.Fatalf("non-sticky vote should be granted despite recent leader contact")
	}
}

// TestHigherTermMessageDemotesLeader covers the universal term rule
// (handlers.go: applyTermRule / §4.3): any message bearing a higher term
// demotes the node to follower before the handler runs.
func TestHigherTermMessageDemotesLeader(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())
	mustBecomeLeader(t, n)

	higherTerm := n.ps.term + 5
	n.Handle(ctx, &AppendEntriesRequest{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: epB, Term: higherTerm},
	})

	if n.role != roleFollower {
		t.Fatalf("role = %v, want Follower after observing higher term", n.role)
	}
	if n.ps.term != higherTerm {
		t.Fatalf("term = %d, want %d", n.ps.term, higherTerm)
	}
}

// TestReplicateCommitsOnMajorityAck drives §4.4/§4.5/§4.6 end to end: a
// leader replicates one entry, both followers ack it, commitIndex
// advances, and the caller's Future resolves with the applied result.
func TestReplicateCommitsOnMajorityAck(t *testing.T) {
	ctx := context.Background()
	n, rt := newTestNode(epA, threeMemberGroup())
	mustBecomeLeader(t, n)
	rt.reset()

	future := n.Replicate(ctx, "op-1")

	select {
	case <-future.Done():
		t.Fatalf("future resolved before any follower acked")
	default:
	}

	entryIndex := n.lastLogIndex()
	for _, peer := range []Endpoint{epB, epC} {
		n.handleAppendEntriesSuccess(ctx, &AppendEntriesSuccess{
			baseMessage:  baseMessage{GroupID: n.groupID, Sender: peer, Term: n.ps.term},
			LastLogIndex: entryIndex,
		})
	}

	select {
	case <-future.Done():
	default:
		t.Fatalf("future did not resolve after majority ack")
	}
	ordered, err := future.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ordered.CommitIndex != entryIndex {
		t.Fatalf("CommitIndex = %d, want %d", ordered.CommitIndex, entryIndex)
	}
	if n.commitIndex != entryIndex {
		t.Fatalf("commitIndex = %d, want %d", n.commitIndex, entryIndex)
	}
}

// TestReplicateRejectedWhenNotLeader covers Replicate's guard clause: a
// follower must reject with NotLeaderError, never append to its log.
func TestReplicateRejectedWhenNotLeader(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	future := n.Replicate(ctx, "op-1")
	_, err := future.Wait()

	var notLeader *NotLeaderError
	if !asNotLeader(err, &notLeader) {
		t.Fatalf("err = %v, want *NotLeaderError", err)
	}
	if n.lastLogIndex() != 0 {
		t.Fatalf("follower should not have appended to its log")
	}
}

// TestQueryAnyLocalRunsOnFollower covers §4.8's stale-read path: it
// requires no leader role and runs immediately against the local
// commitIndex.
func TestQueryAnyLocalRunsOnFollower(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	future := n.Query(ctx, QueryAnyLocal, "read-1", 0)
	result, err := future.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Result != "read-1" {
		t.Fatalf("result = %v, want echoed operation", result.Result)
	}
}

// TestQueryLeaderLocalRejectedWhenNotLeader covers the other half of
// §4.8: a linearizable read requires leader role.
func TestQueryLeaderLocalRejectedWhenNotLeader(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	future := n.Query(ctx, QueryLeaderLocal, "read-1", 0)
	_, err := future.Wait()

	var notLeader *NotLeaderError
	if !asNotLeader(err, &notLeader) {
		t.Fatalf("err = %v, want *NotLeaderError", err)
	}
}

// TestQueryLaggingCommitIndexRejected covers the minCommitIndex gate
// shared by both query policies.
func TestQueryLaggingCommitIndexRejected(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	future := n.Query(ctx, QueryAnyLocal, "read-1", 10)
	_, err := future.Wait()

	if _, ok := err.(*LaggingCommitIndexError); !ok {
		t.Fatalf("err = %v, want *LaggingCommitIndexError", err)
	}
}

// mustBecomeLeader drives n directly to Leader role via the same
// pre-vote/vote path TestElectionWinsOnMajorityPreVoteThenVote exercises,
// for tests that only care about leader-only behavior.
func mustBecomeLeader(t *testing.T, n *Node) {
	t.Helper()
	ctx := context.Background()
	n.becomePreCandidate(ctx)
	n.handlePreVoteResponse(ctx, &PreVoteResponse{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: epB, Term: n.ps.term + 1},
		VoteGranted: true,
	})
	n.handleVoteResponse(ctx, &VoteResponse{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: epB, Term: n.ps.term},
		VotedTerm:   n.ps.term,
		VoteGranted: true,
	})
	if n.role != roleLeader {
		t.Fatalf("setup failed: role = %v, want Leader", n.role)
	}
}

func asNotLeader(err error, target **NotLeaderError) bool {
	e, ok := err.(*NotLeaderError)
	if !ok {
		return false
	}
	*target = e
	return true
}

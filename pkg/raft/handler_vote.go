package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// logIsAtLeastAsUpToDate implements the standard Raft log-comparison rule:
// compare last term first, then last index.
func (n *Node) logIsAtLeastAsUpToDate(candidateLastTerm Term, candidateLastIndex LogIndex) bool {
	myTerm := n.lastLogTerm()
	if candidateLastTerm != myTerm {
		return candidateLastTerm > myTerm
	}
	return candidateLastIndex >= n.lastLogIndex()
}

// handleVoteRequest implements §4.3 VoteRequest: grant iff not already
// voted this term for another candidate, candidate's log is at least as
// up to date, and — for sticky (ordinary) elections only — this node has
// not heard from a leader within a heartbeat timeout.
func (n *Node) handleVoteRequest(ctx context.Context, m *VoteRequest) {
	grant := false
	switch {
	case n.votedForOK(m.Sender):
		grant = n.logIsAtLeastAsUpToDate(m.LastLogTerm, m.LastLogIndex)
		if grant && m.Sticky && n.recentlyHeardFromLeader() {
			grant = false
			logutil.Trace("T%d: node %s denying sticky vote to %s, recent leader contact", n.ps.term, n.self, m.Sender)
		}
	}

	if grant {
		if err := n.ps.setTermAndVote(ctx, n.ps.term, m.Sender); err != nil {
			n.fatal(ctx, err)
			return
		}
		n.driver.resetElectionTimer()
	}

	n.runtime.Send(m.Sender, &VoteResponse{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		VotedTerm:   n.ps.term,
		VoteGranted: grant,
	})
}

func (n *Node) votedForOK(candidate Endpoint) bool {
	return n.ps.votedFor == "" || n.ps.votedFor == candidate
}

func (n *Node) recentlyHeardFromLeader() bool {
	if n.lastHeardFromLeader.IsZero() {
		return false
	}
	return n.driver.now().Sub(n.lastHeardFromLeader) < n.config.LeaderHeartbeatTimeout
}

// handleVoteResponse implements §4.3 VoteResponse: count votes, and on
// majority, become leader.
func (n *Node) handleVoteResponse(ctx context.Context, m *VoteResponse) {
	if n.role != roleCandidate || n.candidate == nil {
		return
	}
	if m.VotedTerm != n.ps.term || !m.VoteGranted {
		return
	}
	n.candidate.grant(m.Sender)
	if n.candidate.hasMajority(n.effectiveMembers) {
		n.becomeLeader(ctx)
	}
}

// handlePreVoteRequest implements §4.3 PreVoteRequest: identical
// reasoning to VoteRequest but never mutates durable term/vote.
func (n *Node) handlePreVoteRequest(ctx context.Context, m *PreVoteRequest) {
	grant := n.logIsAtLeastAsUpToDate(m.LastLogTerm, m.LastLogIndex) && !n.recentlyHeardFromLeader()
	n.runtime.Send(m.Sender, &PreVoteResponse{
		baseMessage: baseMessage{GroupID: n.groupID, Sender: n.self, Term: m.Term},
		VoteGranted: grant,
	})
}

// handlePreVoteResponse implements §4.3 PreVoteResponse: on majority,
// advance from PreCandidate to Candidate (real election).
func (n *Node) handlePreVoteResponse(ctx context.Context, m *PreVoteResponse) {
	if n.role != rolePreCandidate || n.candidate == nil {
		return
	}
	if !m.VoteGranted {
		return
	}
	n.candidate.grant(m.Sender)
	if n.candidate.hasMajority(n.effectiveMembers) {
		if err := n.becomeCandidate(ctx, true); err != nil {
			n.fatal(ctx, err)
		}
	}
}

func (n *Node) broadcastPreVote(ctx context.Context) {
	req := &PreVoteRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term + 1},
		LastLogTerm:  n.lastLogTerm(),
		LastLogIndex: n.lastLogIndex(),
	}
	for _, ep := range n.otherMembers() {
		n.runtime.Send(ep, req)
	}
}

func (n *Node) broadcastVote(ctx context.Context, sticky bool) {
	req := &VoteRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		LastLogTerm:  n.lastLogTerm(),
		LastLogIndex: n.lastLogIndex(),
		Sticky:       sticky,
	}
	for _, ep := range n.otherMembers() {
		n.runtime.Send(ep, req)
	}
}

// handleTriggerLeaderElection implements §4.3 TriggerLeaderElection: the
// target verifies it is caught up and immediately starts a non-sticky
// election, bypassing the pre-vote phase since the outgoing leader already
// vouches for it (used by leadership transfer, §4.9).
func (n *Node) handleTriggerLeaderElection(ctx context.Context, m *TriggerLeaderElection) {
	if n.lastLogIndex() < m.LastLogIndex {
		logutil.Warning("T%d: node %s ignoring election trigger, not caught up (%d < %d)", n.ps.term, n.self, n.lastLogIndex(), m.LastLogIndex)
		return
	}
	n.driver.cancelElectionTimer()
	if err := n.becomeCandidate(ctx, false); err != nil {
		n.fatal(ctx, err)
	}
}

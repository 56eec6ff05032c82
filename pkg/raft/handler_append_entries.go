package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// handleAppendEntriesRequest implements the follower side of §4.3
// AppendEntriesRequest: verify prev-log match, truncate any conflicting
// suffix, append+persist, advance commitIndex, record the leader, and ack
// the piggybacked query round.
func (n *Node) handleAppendEntriesRequest(ctx context.Context, m *AppendEntriesRequest) {
	if n.role != roleFollower {
		n.becomeFollower(ctx, n.ps.term, m.Sender)
	} else {
		n.currentLeader = m.Sender
		n.lastHeardFromLeader = n.driver.now()
	}
	n.driver.resetElectionTimer()

	if m.PrevLogIndex > n.lastLogIndex() {
		n.sendAppendEntriesFailure(m.Sender, n.lastLogIndex()+1)
		return
	}
	if m.PrevLogIndex > n.ps.log.snapshotIndex() {
		if !n.ps.log.containsEntry(m.PrevLogIndex) || n.ps.log.getEntry(m.PrevLogIndex).Term != m.PrevLogTerm {
			n.sendAppendEntriesFailure(m.Sender, n.lastLogIndex())
			return
		}
	} else if m.PrevLogIndex == n.ps.log.snapshotIndex() && m.PrevLogIndex > 0 {
		if n.ps.log.snapshotEntry().Term != m.PrevLogTerm {
			n.sendAppendEntriesFailure(m.Sender, n.lastLogIndex())
			return
		}
	}

	// Find the first index where our log disagrees with the incoming
	// entries, truncate from there, and append the remainder (Log
	// Matching, §3 invariant 3).
	toAppend := m.Entries
	for len(toAppend) > 0 {
		idx := toAppend[0].Index
		if idx > n.lastLogIndex() {
			break
		}
		if n.ps.log.containsEntry(idx) && n.ps.log.getEntry(idx).Term == toAppend[0].Term {
			toAppend = toAppend[1:]
			continue
		}
		break
	}
	if len(toAppend) > 0 && toAppend[0].Index <= n.lastLogIndex() {
		if toAppend[0].Index > n.commitIndex {
			if toAppend[0].Index <= n.effectiveMembers.LogIndex {
				// The uncommitted membership change this follower had
				// appended is about to be truncated away; its effective
				// set reverts to the last committed one (§3: effective is
				// "latest appended", and this entry no longer is).
				n.effectiveMembers = n.committedMembers.Clone()
			}
			if err := n.ps.truncateFromAndPersist(ctx, toAppend[0].Index); err != nil {
				n.fatal(ctx, err)
				return
			}
			n.invalidateFuturesFrom(toAppend[0].Index, &NotLeaderError{LeaderHint: m.Sender})
		}
	}

	if len(toAppend) > 0 {
		if err := n.ps.appendAndPersist(ctx, toAppend); err != nil {
			if err == errLogFull {
				n.sendAppendEntriesFailure(m.Sender, n.lastLogIndex())
				return
			}
			n.fatal(ctx, err)
			return
		}
		// A follower's effective member set must reflect the latest
		// appended OpUpdateMembers entry immediately, the same way the
		// leader updates it on append (membership.go), not only at
		// commit/apply time (§3: committed/effective is a per-node
		// distinction, not leader-only).
		for _, e := range toAppend {
			if e.Operation.Kind == OpUpdateMembers {
				n.effectiveMembers = MemberSet{LogIndex: e.Index, Members: append([]Endpoint(nil), e.Operation.Membership.Members...)}
			}
		}
	}

	newCommit := m.LeaderCommit
	if n.lastLogIndex() < newCommit {
		newCommit = n.lastLogIndex()
	}
	if newCommit > n.commitIndex {
		n.commitIndex = newCommit
		n.applier.apply(ctx, n)
	}

	n.runtime.Send(m.Sender, &AppendEntriesSuccess{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		LastLogIndex: n.lastLogIndex(),
		QueryRound:   m.QueryRound,
	})
}

func (n *Node) sendAppendEntriesFailure(to Endpoint, expectedNextIndex LogIndex) {
	n.runtime.Send(to, &AppendEntriesFailure{
		baseMessage:       baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		ExpectedNextIndex: expectedNextIndex,
	})
}

func (n *Node) invalidateFuturesFrom(index LogIndex, err error) {
	for idx, f := range n.futures {
		if idx >= index {
			f.complete(Result{Err: err})
			delete(n.futures, idx)
		}
	}
}

// handleAppendEntriesSuccess implements the leader side (§4.3): update
// match/next index, ack the query round, run CommitTracker, and send the
// next batch if there's more.
func (n *Node) handleAppendEntriesSuccess(ctx context.Context, m *AppendEntriesSuccess) {
	if n.role != roleLeader {
		return
	}
	f, ok := n.leader.followers[m.Sender]
	if !ok {
		return
	}
	f.onResponse(n.driver.now(), true, m.LastLogIndex, 0)
	n.leader.query.ackRound(m.Sender, m.QueryRound, n.leader.query.round)

	advanced := n.commit.tryAdvance(ctx, n)
	if advanced {
		n.markOwnTermCommit()
	}
	n.tryResolveQueries(ctx)

	if f.matchIndex < n.lastLogIndex() || advanced {
		n.replication.replicateTo(ctx, n, f)
	}
}

func (n *Node) markOwnTermCommit() {
	if n.leader == nil || n.leader.sawOwnTermCommit {
		return
	}
	if n.ps.log.containsEntry(n.commitIndex) && n.ps.log.getEntry(n.commitIndex).Term == n.ps.term {
		n.leader.sawOwnTermCommit = true
		n.membership.onOwnTermCommit(n)
	}
}

// handleAppendEntriesFailure implements the leader side (§4.3): rewind
// nextIndex to the hinted index (or by one), clear in-flight, resend.
func (n *Node) handleAppendEntriesFailure(ctx context.Context, m *AppendEntriesFailure) {
	if n.role != roleLeader {
		return
	}
	f, ok := n.leader.followers[m.Sender]
	if !ok {
		return
	}
	f.onResponse(n.driver.now(), false, 0, m.ExpectedNextIndex)
	logutil.Trace("T%d: AE rejected by %s, rewinding nextIndex to %d", n.ps.term, m.Sender, f.nextIndex)
	n.replication.replicateTo(ctx, n, f)
}

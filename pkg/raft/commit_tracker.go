package raft

import (
	"context"
	"sort"

	"github.com/sidecus/raftcore/internal/logutil"
)

// commitTracker implements §4.5: quorum match-index aggregation, advancing
// commitIndex only for a current-term entry backed by a majority.
type commitTracker struct{}

// leaderContribution is the leader's own stand-in for matchIndex (§4.5):
// flushedLogIndex once this leader has completed a flush (or whenever
// AppendEntriesBatchSize is 0), else lastLogIndex. The node has no notion
// of whether its Store persists anything; that does not enter the choice.
// It is excluded entirely if the leader is not a voting member of the
// committed group (mid-removal of itself).
func (commitTracker) leaderContribution(n *Node) (LogIndex, bool) {
	if !n.committedMembers.Contains(n.self) {
		return 0, false
	}
	if n.leader.flushedLogIndex > 0 || n.config.AppendEntriesBatchSize == 0 {
		return n.leader.flushedLogIndex, true
	}
	return n.lastLogIndex(), true
}

// tryAdvance finds the highest N > commitIndex with matchIndex >= N over a
// majority of the *effective* voting members AND log[N].term ==
// currentTerm, and commits to it. Returns true if commitIndex advanced.
func (ct commitTracker) tryAdvance(ctx context.Context, n *Node) bool {
	if n.role != roleLeader {
		return false
	}

	matches := make([]LogIndex, 0, len(n.effectiveMembers.Members))
	if v, ok := ct.leaderContribution(n); ok {
		matches = append(matches, v)
	}
	for _, ep := range n.effectiveMembers.Members {
		if ep == n.self {
			continue
		}
		if f, ok := n.leader.followers[ep]; ok {
			matches = append(matches, f.matchIndex)
		}
	}
	if len(matches) == 0 {
		return false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	quorum := len(matches)/2 + 1
	if quorum > len(matches) {
		return false
	}
	candidate := matches[quorum-1]

	advanced := false
	for candidate > n.commitIndex {
		if n.ps.log.containsEntry(candidate) && n.ps.log.getEntry(candidate).Term == n.ps.term {
			logutil.Trace("T%d: leader %s committing to %d upon quorum", n.ps.term, n.self, candidate)
			n.commitTo(ctx, candidate)
			advanced = true
			break
		}
		// Not a current-term entry: cannot count it directly; a later
		// current-term commit will pull it in transitively (§4.5, §3
		// invariant 4). Try one lower candidate among the match set, if
		// any fall below this one.
		next := LogIndex(0)
		for _, m := range matches {
			if m < candidate && m > next {
				next = m
			}
		}
		if next == candidate || next == 0 {
			break
		}
		candidate = next
	}
	return advanced
}

// commitTo advances commitIndex and runs the Applier inline (§4.6: "Commit
// advancement runs the Applier inline").
func (n *Node) commitTo(ctx context.Context, index LogIndex) {
	if index <= n.commitIndex {
		return
	}
	n.commitIndex = index
	n.applier.apply(ctx, n)
}

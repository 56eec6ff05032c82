package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// replicationEngine implements §4.4: for every follower without an
// outstanding in-flight request, decide whether to probe, snapshot,
// replicate a batch, or heartbeat; manage per-follower backoff; and
// schedule the leader flush barrier.
type replicationEngine struct{}

// onNewEntry is called right after the leader appends (and persists) a new
// entry, to kick replication for anyone caught up.
func (re replicationEngine) onNewEntry(ctx context.Context, n *Node, index LogIndex) {
	re.scheduleFlushIfNeeded(ctx, n, index)
	re.triggerAll(ctx, n)
}

func (re replicationEngine) scheduleFlushIfNeeded(ctx context.Context, n *Node, index LogIndex) {
	if n.leader == nil || index <= n.leader.flushedLogIndex {
		return
	}
	if n.leader.flushScheduled {
		return
	}
	n.leader.flushScheduled = true
	n.runtime.Submit(func(ctx context.Context) {
		n.runLeaderFlush(ctx)
	})
}

func (n *Node) runLeaderFlush(ctx context.Context) {
	if n.leader == nil {
		return
	}
	n.leader.flushScheduled = false
	target := n.lastLogIndex()
	if err := n.ps.flush(ctx); err != nil {
		n.fatal(ctx, err)
		return
	}
	if target > n.leader.flushedLogIndex {
		n.leader.flushedLogIndex = target
	}
	if n.role == roleLeader {
		n.commit.tryAdvance(ctx, n)
		n.tryResolveQueries(ctx)
	}
}

// triggerAll attempts one replication decision for every non-self member
// of the effective group that isn't currently backed off/in-flight.
func (re replicationEngine) triggerAll(ctx context.Context, n *Node) {
	if n.role != roleLeader {
		return
	}
	for _, ep := range n.effectiveMembers.Members {
		if ep == n.self {
			continue
		}
		f, ok := n.leader.followers[ep]
		if !ok {
			f = newFollowerState(ep, n.lastLogIndex())
			n.leader.followers[ep] = f
		}
		if f.inFlight {
			continue
		}
		re.replicateTo(ctx, n, f)
	}
}

func (re replicationEngine) replicateTo(ctx context.Context, n *Node, f *followerState) {
	snapshotIndex := n.ps.log.snapshotIndex()

	switch {
	case f.nextIndex <= snapshotIndex && snapshotIndex > 0:
		req := n.buildSnapshotProbe()
		f.inFlight = true
		n.runtime.Send(f.endpoint, req)

	case !f.hasDiscoveredMatch():
		req := n.buildAppendEntries(f.nextIndex, 0)
		f.setRequestBackoff(n.driver.now(), n.config.LeaderBackoffDuration/8, n.config.LeaderBackoffDuration)
		n.driver.scheduleBackoffReset()
		n.runtime.Send(f.endpoint, req)

	case f.nextIndex <= n.lastLogIndex():
		req := n.buildAppendEntries(f.nextIndex, n.config.AppendEntriesBatchSize)
		f.inFlight = true
		n.runtime.Send(f.endpoint, req)

	default:
		req := n.buildAppendEntries(f.nextIndex, 0)
		f.inFlight = true
		n.runtime.Send(f.endpoint, req)
	}
}

func (n *Node) buildAppendEntries(nextIndex LogIndex, maxCount int) *AppendEntriesRequest {
	start := nextIndex
	if start <= n.ps.log.snapshotIndex() {
		start = n.ps.log.snapshotIndex() + 1
	}
	end := n.lastLogIndex() + 1
	if maxCount > 0 && end > start+LogIndex(maxCount) {
		end = start + LogIndex(maxCount)
	}
	entries, prevIndex, prevTerm := n.ps.log.getEntries(start, end)

	round := uint64(0)
	if n.leader != nil {
		round = n.leader.query.round
	}
	return &AppendEntriesRequest{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
		QueryRound:   round,
	}
}

func (n *Node) buildSnapshotProbe() *InstallSnapshotRequest {
	snap := n.ps.log.snapshotEntry()
	round := uint64(0)
	if n.leader != nil {
		round = n.leader.query.round
	}
	return &InstallSnapshotRequest{
		baseMessage:     baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		SnapshotIndex:   snap.Index,
		SnapshotTerm:    snap.Term,
		Chunks:          nil,
		TotalChunkCount: len(snap.Chunks),
		GroupMembers:    snap.GroupMembers,
		QueryRound:      round,
	}
}

// buildFullSnapshot is used once a follower has probed and we know it
// needs the payload, sending every chunk in one request.
func (n *Node) buildFullSnapshot() *InstallSnapshotRequest {
	snap := n.ps.log.snapshotEntry()
	round := uint64(0)
	if n.leader != nil {
		round = n.leader.query.round
	}
	return &InstallSnapshotRequest{
		baseMessage:     baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		SnapshotIndex:   snap.Index,
		SnapshotTerm:    snap.Term,
		Chunks:          snap.Chunks,
		TotalChunkCount: len(snap.Chunks),
		GroupMembers:    snap.GroupMembers,
		QueryRound:      round,
	}
}

// resetBackoff is invoked by the global backoff-reset timer task (§4.4):
// every follower still marked in-flight and past its backoff deadline is
// resent.
func (re replicationEngine) resetBackoff(ctx context.Context, n *Node) {
	if n.role != roleLeader {
		return
	}
	now := n.driver.now()
	for _, f := range n.leader.followers {
		if f.inFlight && !now.Before(f.backoffDeadline) {
			f.inFlight = false
			logutil.Trace("T%d: backoff elapsed for %s, resending", n.ps.term, f.endpoint)
			re.replicateTo(ctx, n, f)
		}
	}
}

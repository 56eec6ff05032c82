package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// handleInstallSnapshotRequest implements the follower side of §4.3
// InstallSnapshotRequest: if the follower is already past this snapshot,
// ack current state; otherwise accumulate chunks (a probe with zero
// chunks starts the collector), and once the full set is in, persist and
// install.
func (n *Node) handleInstallSnapshotRequest(ctx context.Context, m *InstallSnapshotRequest) {
	if n.role != roleFollower {
		n.becomeFollower(ctx, n.ps.term, m.Sender)
	} else {
		n.currentLeader = m.Sender
		n.lastHeardFromLeader = n.driver.now()
	}
	n.driver.resetElectionTimer()

	if m.SnapshotIndex <= n.commitIndex {
		n.runtime.Send(m.Sender, &InstallSnapshotResponse{
			baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
			LastLogIndex: n.lastLogIndex(),
		})
		return
	}

	if n.snapshotCollector == nil || n.snapshotCollector.index != m.SnapshotIndex {
		n.snapshotCollector = newSnapshotChunkCollector(m.SnapshotIndex, m.SnapshotTerm, m.TotalChunkCount, m.GroupMembers)
	}
	for _, c := range m.Chunks {
		n.snapshotCollector.add(c)
	}

	if !n.snapshotCollector.complete() {
		n.runtime.Send(m.Sender, &InstallSnapshotResponse{
			baseMessage:           baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
			LastLogIndex:          n.lastLogIndex(),
			RequestedChunkIndices: n.snapshotCollector.missing(),
		})
		return
	}

	snapshot := SnapshotEntry{
		Index:                n.snapshotCollector.index,
		Term:                 n.snapshotCollector.term,
		Chunks:               n.snapshotCollector.orderedChunks(),
		GroupMembersLogIndex: n.snapshotCollector.index,
		GroupMembers:         n.snapshotCollector.members,
	}
	if err := n.installSnapshot(ctx, snapshot); err != nil {
		logutil.Error("T%d: node %s failed installing snapshot: %v", n.ps.term, n.self, err)
		return
	}

	n.runtime.Send(m.Sender, &InstallSnapshotResponse{
		baseMessage:  baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		LastLogIndex: n.lastLogIndex(),
	})
}

// handleInstallSnapshotResponse implements the leader side of §4.3: if the
// follower hasn't fully received the snapshot, send the specific chunks it
// asked for (or the whole payload, if it's still at the probe stage).
func (n *Node) handleInstallSnapshotResponse(ctx context.Context, m *InstallSnapshotResponse) {
	if n.role != roleLeader {
		return
	}
	f, ok := n.leader.followers[m.Sender]
	if !ok {
		return
	}
	f.clearBackoff()

	snap := n.ps.log.snapshotEntry()
	if snap == nil || m.LastLogIndex >= snap.Index {
		f.nextIndex = m.LastLogIndex + 1
		f.matchIndex = m.LastLogIndex
		n.replication.replicateTo(ctx, n, f)
		return
	}

	if len(m.RequestedChunkIndices) == 0 {
		n.runtime.Send(m.Sender, n.buildFullSnapshot())
		f.inFlight = true
		return
	}

	requested := make([]SnapshotChunk, 0, len(m.RequestedChunkIndices))
	for _, idx := range m.RequestedChunkIndices {
		if idx >= 0 && idx < len(snap.Chunks) {
			requested = append(requested, snap.Chunks[idx])
		}
	}
	req := &InstallSnapshotRequest{
		baseMessage:     baseMessage{GroupID: n.groupID, Sender: n.self, Term: n.ps.term},
		SnapshotIndex:   snap.Index,
		SnapshotTerm:    snap.Term,
		Chunks:          requested,
		TotalChunkCount: len(snap.Chunks),
		GroupMembers:    snap.GroupMembers,
	}
	n.runtime.Send(m.Sender, req)
	f.inFlight = true
}

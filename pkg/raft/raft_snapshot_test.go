package raft

import (
	"context"
	"testing"
)

// TestTakeSnapshotFoldsCommittedEntry covers §4.7's capture half: once an
// entry is committed, takeSnapshot folds everything up to commitIndex into
// the log's snapshot slot and persists the emitted chunk(s).
func TestTakeSnapshotFoldsCommittedEntry(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())
	mustBecomeLeader(t, n)

	future := n.Replicate(ctx, "op-1")
	entryIndex := n.lastLogIndex()
	for _, peer := range []Endpoint{epB, epC} {
		n.handleAppendEntriesSuccess(ctx, &AppendEntriesSuccess{
			baseMessage:  baseMessage{GroupID: n.groupID, Sender: peer, Term: n.ps.term},
			LastLogIndex: entryIndex,
		})
	}
	if _, err := future.Wait(); err != nil {
		t.Fatalf("unexpected replicate error: %v", err)
	}

	n.takeSnapshot(ctx)

	if got := n.ps.log.snapshotIndex(); got != entryIndex {
		t.Fatalf("snapshotIndex = %d, want %d", got, entryIndex)
	}
	if n.ps.log.containsEntry(entryIndex) {
		t.Fatalf("entry %d should have been folded into the snapshot", entryIndex)
	}
}

// TestInstallSnapshotAdvancesFollowerState covers §4.7's install half on a
// follower receiving a snapshot that is ahead of its own commitIndex.
func TestInstallSnapshotAdvancesFollowerState(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())

	snapshot := SnapshotEntry{
		Index: 5,
		Term:  2,
		Chunks: []SnapshotChunk{
			{Index: 5, Term: 2, ChunkIndex: 0, ChunkCount: 1, Operation: []byte("state")},
		},
		GroupMembersLogIndex: 1,
		GroupMembers:         []Endpoint{epA, epB, epC},
	}

	if err := n.installSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("installSnapshot: %v", err)
	}

	if n.commitIndex != 5 {
		t.Fatalf("commitIndex = %d, want 5", n.commitIndex)
	}
	if n.lastApplied != 5 {
		t.Fatalf("lastApplied = %d, want 5", n.lastApplied)
	}
	if n.ps.log.snapshotIndex() != 5 {
		t.Fatalf("snapshotIndex = %d, want 5", n.ps.log.snapshotIndex())
	}
}

// TestInstallSnapshotIgnoresStaleSnapshot covers the guard at the top of
// installSnapshot: a snapshot at or behind the current commitIndex is a
// no-op, since the node already has everything it contains.
func TestInstallSnapshotIgnoresStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(epA, threeMemberGroup())
	n.commitIndex = 10

	stale := SnapshotEntry{Index: 3, Term: 1}
	if err := n.installSnapshot(ctx, stale); err != nil {
		t.Fatalf("installSnapshot: %v", err)
	}

	if n.ps.log.snapshotIndex() != NoIndex {
		t.Fatalf("snapshotIndex = %d, want untouched (%d)", n.ps.log.snapshotIndex(), NoIndex)
	}
}

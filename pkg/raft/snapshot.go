package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// chunkBuffer accumulates chunks emitted by StateMachine.TakeSnapshot so
// they can be persisted and folded into one SnapshotEntry (§4.7).
type chunkBuffer struct {
	index   LogIndex
	term    Term
	members MemberSet
	chunks  []SnapshotChunk
}

func (b *chunkBuffer) Emit(ctx context.Context, chunkIndex, chunkCount int, payload []byte) error {
	b.chunks = append(b.chunks, SnapshotChunk{
		Index:                b.index,
		Term:                 b.term,
		ChunkIndex:           chunkIndex,
		ChunkCount:           chunkCount,
		Operation:            payload,
		GroupMembersLogIndex: b.members.LogIndex,
		GroupMembers:         append([]Endpoint(nil), b.members.Members...),
	})
	return nil
}

// takeSnapshot implements the capture half of §4.7. It is triggered by the
// Applier once commitIndex - snapshotIndex >= CommitCountToTakeSnapshot.
func (n *Node) takeSnapshot(ctx context.Context) {
	entry := n.ps.log.getEntry(n.commitIndex)
	buf := &chunkBuffer{index: n.commitIndex, term: entry.Term, members: n.effectiveMembers}

	if err := n.sm.TakeSnapshot(ctx, n.commitIndex, buf); err != nil {
		logutil.Error("T%d: snapshot capture failed: %v", n.ps.term, err)
		// A state-machine or persistence failure during capture is
		// logged and the capture abandoned; no error is returned to
		// any caller and the node keeps running.
		return
	}

	for i := range buf.chunks {
		if err := n.ps.store.PersistSnapshotChunk(ctx, buf.chunks[i]); err != nil {
			logutil.Error("T%d: snapshot chunk persist failed: %v", n.ps.term, err)
			return
		}
	}

	snapshotEntry := SnapshotEntry{
		Index:                n.commitIndex,
		Term:                 entry.Term,
		Chunks:               buf.chunks,
		GroupMembersLogIndex: buf.members.LogIndex,
		GroupMembers:         buf.members.Members,
	}

	keepFrom := n.chooseKeepFromIndex(snapshotEntry.Index)
	n.ps.log.setSnapshot(snapshotEntry, keepFrom)
	logutil.Info("T%d: node %s captured snapshot at %d, retaining from %d", n.ps.term, n.self, snapshotEntry.Index, keepFrom)
}

// chooseKeepFromIndex implements the §9 Open Question heuristic verbatim:
// among followers whose matchIndex is within KeptAfterSnapshot of the new
// snapshot index, it returns one less than the smallest such matchIndex,
// so as to not delete the smallest matchIndex entry itself.
// Rationale beyond "do not delete the smallest matchIndex" is not
// documented upstream; preserved as-is. The returned value is always at or
// below snapshotIndex, and setSnapshot raises it to the snapshot index, so
// it does not change which entries remain in the log.
func (n *Node) chooseKeepFromIndex(snapshotIndex LogIndex) LogIndex {
	keepFrom := snapshotIndex
	if n.leader == nil {
		return keepFrom
	}
	var smallest LogIndex
	found := false
	threshold := NoIndex
	if snapshotIndex > LogIndex(n.config.KeptAfterSnapshot) {
		threshold = snapshotIndex - LogIndex(n.config.KeptAfterSnapshot)
	}
	for _, f := range n.leader.followers {
		if f.matchIndex == 0 {
			continue
		}
		if f.matchIndex >= threshold && f.matchIndex <= snapshotIndex {
			if !found || f.matchIndex < smallest {
				smallest = f.matchIndex
				found = true
			}
		}
	}
	if found && smallest > 0 {
		keepFrom = smallest - 1
	}
	return keepFrom
}

// snapshotChunkCollector accumulates an in-progress InstallSnapshotRequest
// on a follower across multiple RPCs (§4.3 InstallSnapshotRequest handler).
type snapshotChunkCollector struct {
	index       LogIndex
	term        Term
	totalChunks int
	members     []Endpoint
	have        map[int]SnapshotChunk
}

func newSnapshotChunkCollector(index LogIndex, term Term, totalChunks int, members []Endpoint) *snapshotChunkCollector {
	return &snapshotChunkCollector{index: index, term: term, totalChunks: totalChunks, members: members, have: make(map[int]SnapshotChunk)}
}

func (c *snapshotChunkCollector) add(chunk SnapshotChunk) {
	c.have[chunk.ChunkIndex] = chunk
}

func (c *snapshotChunkCollector) complete() bool {
	return len(c.have) == c.totalChunks
}

func (c *snapshotChunkCollector) missing() []int {
	var missing []int
	for i := 0; i < c.totalChunks; i++ {
		if _, ok := c.have[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func (c *snapshotChunkCollector) orderedChunks() []SnapshotChunk {
	out := make([]SnapshotChunk, c.totalChunks)
	for i := 0; i < c.totalChunks; i++ {
		out[i] = c.have[i]
	}
	return out
}

// installSnapshot implements the install half of §4.7, run on a follower
// once a full chunk set has been received (or, for a wholesale single-RPC
// snapshot, as soon as it arrives).
func (n *Node) installSnapshot(ctx context.Context, snapshot SnapshotEntry) error {
	if snapshot.Index <= n.commitIndex {
		return nil
	}

	for _, chunk := range snapshot.Chunks {
		if err := n.ps.store.PersistSnapshotChunk(ctx, chunk); err != nil {
			return &RaftException{Cause: err}
		}
	}

	n.commitIndex = snapshot.Index
	n.ps.log.setSnapshot(snapshot, snapshot.Index)

	ops := make([][]byte, len(snapshot.Chunks))
	for i, c := range snapshot.Chunks {
		ops[i] = c.Operation
	}
	if err := n.sm.InstallSnapshot(ctx, snapshot.Index, ops); err != nil {
		return &RaftException{Cause: err}
	}

	n.effectiveMembers = MemberSet{LogIndex: snapshot.GroupMembersLogIndex, Members: append([]Endpoint(nil), snapshot.GroupMembers...)}
	n.committedMembers = n.effectiveMembers.Clone()

	for index, future := range n.futures {
		if index <= snapshot.Index {
			future.complete(Result{Err: &IndeterminateStateError{LeaderHint: n.currentLeader}})
			delete(n.futures, index)
		}
	}

	n.lastApplied = snapshot.Index
	n.snapshotCollector = nil
	logutil.Info("T%d: node %s installed snapshot at %d", n.ps.term, n.self, snapshot.Index)
	return nil
}

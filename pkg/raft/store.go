package raft

import "context"

// Store is the durable-state contract (§6). The node never touches a
// filesystem or database directly; it calls the matching Persist*/Truncate
// method before any outbound message or local transition depending on that
// write (§3 invariant 8, persistence-before-effect). Flush is called only
// by the leader's flush task (runLeaderFlush); no other path waits for it.
//
// A single Nop implementation is permitted by spec (internal/store/nop);
// real deployments plug in something like internal/store/bolt.
type Store interface {
	// PersistTerm durably records the current term and vote.
	PersistTerm(ctx context.Context, term Term, votedFor Endpoint) error
	// PersistEntries durably appends log entries, in order.
	PersistEntries(ctx context.Context, entries []LogEntry) error
	// PersistSnapshotChunk durably records one snapshot chunk. Chunks are
	// persisted independently so a multi-chunk snapshot survives a crash
	// between chunks (§3 SnapshotChunk lifecycle).
	PersistSnapshotChunk(ctx context.Context, chunk SnapshotChunk) error
	// Truncate durably removes every persisted entry at index >= from.
	Truncate(ctx context.Context, from LogIndex) error
	// Flush is the durability barrier: it returns only once every prior
	// Persist*/Truncate call is stable.
	Flush(ctx context.Context) error
	// Restore loads whatever was last made durable, for node startup.
	Restore(ctx context.Context) (RestoredState, error)
}

// RestoredState is what Store.Restore hands back on startup.
type RestoredState struct {
	Term          Term
	VotedFor      Endpoint
	Entries       []LogEntry
	SnapshotChunks []SnapshotChunk
}

// PersistentState is the durability boundary described in spec.md §4.2: it
// owns term, vote, and (through Log) entries and snapshot chunks, and
// mediates every write through Store before the in-memory view changes.
type PersistentState struct {
	store Store

	term     Term
	votedFor Endpoint

	log *Log
}

func newPersistentState(store Store, capacity int) *PersistentState {
	return &PersistentState{store: store, log: newLog(capacity)}
}

func (ps *PersistentState) restore(ctx context.Context) error {
	restored, err := ps.store.Restore(ctx)
	if err != nil {
		return &RaftException{Cause: err}
	}
	ps.term = restored.Term
	ps.votedFor = restored.VotedFor
	for _, e := range restored.Entries {
		if err := ps.log.append(e); err != nil {
			return &RaftException{Cause: err}
		}
	}
	if len(restored.SnapshotChunks) > 0 {
		chunks := restored.SnapshotChunks
		first := chunks[0]
		entry := SnapshotEntry{
			Index:                first.Index,
			Term:                 first.Term,
			Chunks:               chunks,
			GroupMembersLogIndex: first.GroupMembersLogIndex,
			GroupMembers:         first.GroupMembers,
		}
		ps.log.setSnapshot(entry, first.Index)
	}
	return nil
}

// setTermAndVote persists and then applies a new (term, votedFor) pair. It
// panics if newTerm regresses (§3 invariant: term is monotonic).
func (ps *PersistentState) setTermAndVote(ctx context.Context, newTerm Term, votedFor Endpoint) error {
	if newTerm < ps.term {
		panic("raft: term must not regress")
	}
	if err := ps.store.PersistTerm(ctx, newTerm, votedFor); err != nil {
		return &RaftException{Cause: err}
	}
	ps.term = newTerm
	ps.votedFor = votedFor
	return nil
}

func (ps *PersistentState) appendAndPersist(ctx context.Context, entries []LogEntry) error {
	if len(ps.log.entries)+len(entries) > ps.log.capacity {
		return errLogFull
	}
	if err := ps.store.PersistEntries(ctx, entries); err != nil {
		return &RaftException{Cause: err}
	}
	for _, e := range entries {
		if err := ps.log.append(e); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PersistentState) truncateFromAndPersist(ctx context.Context, from LogIndex) error {
	if err := ps.store.Truncate(ctx, from); err != nil {
		return &RaftException{Cause: err}
	}
	ps.log.truncateFrom(from)
	return nil
}

func (ps *PersistentState) flush(ctx context.Context) error {
	if err := ps.store.Flush(ctx); err != nil {
		return &RaftException{Cause: err}
	}
	return nil
}

// Package nop is the permitted no-op raft.Store (spec.md §6): every write
// succeeds without persisting anything, and Restore always comes back
// empty. Useful for tests and for running a single-node group where
// durability across restarts is not required.
package nop

import (
	"context"

	"github.com/sidecus/raftcore/pkg/raft"
)

// Store discards everything it is asked to persist.
type Store struct{}

// New returns a Store. There is no state to initialize.
func New() *Store { return &Store{} }

func (Store) PersistTerm(ctx context.Context, term raft.Term, votedFor raft.Endpoint) error {
	return nil
}

func (Store) PersistEntries(ctx context.Context, entries []raft.LogEntry) error {
	return nil
}

func (Store) PersistSnapshotChunk(ctx context.Context, chunk raft.SnapshotChunk) error {
	return nil
}

func (Store) Truncate(ctx context.Context, from raft.LogIndex) error {
	return nil
}

func (Store) Flush(ctx context.Context) error {
	return nil
}

func (Store) Restore(ctx context.Context) (raft.RestoredState, error) {
	return raft.RestoredState{}, nil
}

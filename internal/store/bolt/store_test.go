package bolt

import (
	"context"
	"encoding/gob"
	"testing"

	"github.com/sidecus/raftcore/pkg/raft"
)

// demoOp stands in for a host's concrete operation type (e.g. cmd/raftnode's
// kvOp), registered with gob so PersistEntries/Restore round-trip it as
// itself rather than as a map[string]interface{}.
type demoOp struct {
	Key   string
	Value string
}

func init() {
	gob.Register(demoOp{})
}

// TestPersistEntriesRestoreRoundTripsConcreteOperationType covers §3
// invariant 8 / §8's persistence round-trip: a restart must replay entries
// with their original Operation.User type intact, not a generic map, since
// StateMachine.Apply type-asserts it back to the concrete type.
func TestPersistEntriesRestoreRoundTripsConcreteOperationType(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	entry := raft.LogEntry{
		Index: 1,
		Term:  1,
		Operation: raft.Operation{
			Kind: raft.OpUser,
			User: demoOp{Key: "a", Value: "b"},
		},
	}
	if err := store.PersistEntries(ctx, []raft.LogEntry{entry}); err != nil {
		t.Fatalf("PersistEntries: %v", err)
	}

	restored, err := store.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(restored.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(restored.Entries))
	}

	op, ok := restored.Entries[0].Operation.User.(demoOp)
	if !ok {
		t.Fatalf("Operation.User = %#v (%T), want demoOp", restored.Entries[0].Operation.User, restored.Entries[0].Operation.User)
	}
	if op != entry.Operation.User.(demoOp) {
		t.Fatalf("Operation.User = %+v, want %+v", op, entry.Operation.User)
	}
}

// TestPersistTermAndRestore covers the meta bucket's term/votedFor
// round trip independent of any log entries.
func TestPersistTermAndRestore(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.PersistTerm(ctx, 7, "node-b"); err != nil {
		t.Fatalf("PersistTerm: %v", err)
	}

	restored, err := store.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Term != 7 {
		t.Fatalf("Term = %d, want 7", restored.Term)
	}
	if restored.VotedFor != "node-b" {
		t.Fatalf("VotedFor = %q, want node-b", restored.VotedFor)
	}
}

package main

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sidecus/raftcore/pkg/raft"
)

// kvOp is the operation payload raftnode replicates: a single key/value
// write, or a read of the current value. Apply handles both so the same
// log entry type serves writes; reads instead go through Node.Query and
// never touch the log.
//
// It is registered with gob below because it travels as the opaque
// Operation.User interface{} of every AppendEntriesRequest (see
// internal/transport/grpc's gob codec) and as the payload this node's
// own bolt Store gob-encodes on disk — both sides must know its concrete
// type to decode it back out of an interface{}.
type kvOp struct {
	Kind  string `json:"kind"` // "set", "delete", or "get"
	Key   string `json:"key"`
	Value string `json:"value"`
}

func init() {
	gob.Register(kvOp{})
}

// kvStateMachine is a minimal demo StateMachine: an in-memory string map,
// replicated via raftcore. It exists to give cmd/raftnode something
// concrete to drive through Replicate/Query, not as a production
// key-value store.
type kvStateMachine struct {
	mu   sync.RWMutex
	data map[string]string
}

func newKVStateMachine() *kvStateMachine {
	return &kvStateMachine{data: make(map[string]string)}
}

func (sm *kvStateMachine) Apply(ctx context.Context, index raft.LogIndex, operation interface{}) (interface{}, error) {
	op, ok := operation.(kvOp)
	if !ok {
		return nil, fmt.Errorf("kvStateMachine: unexpected operation type %T", operation)
	}

	// "get" is a read: both query policies route through Apply too
	// (runLocalQuery calls sm.Apply the same as a replicated write), so the
	// locking below must cover reads as well rather than assume Apply is
	// only ever a mutation.
	if op.Kind == "get" {
		sm.mu.RLock()
		defer sm.mu.RUnlock()
		v, ok := sm.data[op.Key]
		return kvGetResult{Value: v, Found: ok}, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	switch op.Kind {
	case "set":
		sm.data[op.Key] = op.Value
	case "delete":
		delete(sm.data, op.Key)
	default:
		return nil, fmt.Errorf("kvStateMachine: unknown op kind %q", op.Kind)
	}
	return op.Value, nil
}

// kvGetResult is the Ordered.Result payload a "get" kvOp resolves its
// Future with, returned by Apply for both query policies.
type kvGetResult struct {
	Value string
	Found bool
}

type kvSnapshot map[string]string

func (sm *kvStateMachine) TakeSnapshot(ctx context.Context, index raft.LogIndex, sink raft.ChunkSink) error {
	sm.mu.RLock()
	snap := make(kvSnapshot, len(sm.data))
	for k, v := range sm.data {
		snap[k] = v
	}
	sm.mu.RUnlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("kvStateMachine: marshal snapshot: %w", err)
	}
	// The demo map is small enough to always fit in one chunk; a real
	// state machine would split payload across multiple Emit calls.
	return sink.Emit(ctx, 0, 1, payload)
}

func (sm *kvStateMachine) InstallSnapshot(ctx context.Context, index raft.LogIndex, chunkOperations [][]byte) error {
	merged := make(kvSnapshot)
	for _, chunk := range chunkOperations {
		var part kvSnapshot
		if err := json.Unmarshal(chunk, &part); err != nil {
			return fmt.Errorf("kvStateMachine: unmarshal snapshot chunk: %w", err)
		}
		for k, v := range part {
			merged[k] = v
		}
	}

	sm.mu.Lock()
	sm.data = merged
	sm.mu.Unlock()
	return nil
}

// GetNewTermOperation has no use for the demo: there is no cross-term
// invariant the kv store needs to establish before membership changes can
// commit.
func (sm *kvStateMachine) GetNewTermOperation() (interface{}, bool) {
	return nil, false
}

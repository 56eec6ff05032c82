package raft

import "context"

// ChunkSink receives snapshot chunks as a StateMachine produces them during
// TakeSnapshot. The node's sink buffers the chunks and persists each of
// them once TakeSnapshot has returned (§4.7).
type ChunkSink interface {
	// Emit hands one chunk to the node. chunkIndex is 0-based; chunkCount
	// is the total number of chunks this snapshot will emit (known up
	// front so SnapshotChunk.ChunkCount can be set on the first call).
	Emit(ctx context.Context, chunkIndex, chunkCount int, payload []byte) error
}

// StateMachine is the user-supplied deterministic application the group
// replicates (§6 StateMachine contract). The node invokes it exclusively
// from its own executor (§5).
type StateMachine interface {
	// Apply deterministically applies operation at index and returns a
	// result passed back to the caller's Future.
	Apply(ctx context.Context, index LogIndex, operation interface{}) (interface{}, error)

	// TakeSnapshot produces a sequence of chunks via sink whose replay
	// reconstructs state as of index.
	TakeSnapshot(ctx context.Context, index LogIndex, sink ChunkSink) error

	// InstallSnapshot atomically replaces state with the replay of
	// chunkOperations (in chunk order).
	InstallSnapshot(ctx context.Context, index LogIndex, chunkOperations [][]byte) error

	// GetNewTermOperation optionally returns a no-op operation appended
	// when a node wins an election, so the new leader can commit
	// something in its own term before it is allowed to commit a
	// membership change (§4.9, §3 invariant 6). Returning (nil, false)
	// means the implementation has no such operation.
	GetNewTermOperation() (operation interface{}, ok bool)
}

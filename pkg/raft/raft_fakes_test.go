package raft

import (
	"context"
	"sync"
	"time"
)

// fakeRuntime runs everything synchronously and inline: a hand-rolled fake
// rather than a mocking framework. Execute/Submit both run the task
// immediately on the calling goroutine, which is safe here because every
// test drives a single Node from a single goroutine. Schedule never fires
// on its own; tests that need timer behavior call the relevant
// driver/node method directly instead of waiting on a real timer.
type fakeRuntime struct {
	mu       sync.Mutex
	sent     []sentMessage
	reports  []Report
	terminated bool
}

type sentMessage struct {
	to  Endpoint
	msg Message
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{}
}

func (r *fakeRuntime) Execute(ctx context.Context, task Task) {
	if ctx == nil {
		ctx = context.Background()
	}
	task(ctx)
}

func (r *fakeRuntime) Submit(task Task) {
	task(context.Background())
}

func (r *fakeRuntime) Schedule(task Task, delay time.Duration) CancelFunc {
	return func() {}
}

func (r *fakeRuntime) Send(to Endpoint, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{to: to, msg: msg})
}

func (r *fakeRuntime) OnReport(report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *fakeRuntime) OnGroupTerminated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = true
}

func (r *fakeRuntime) sentTo(to Endpoint) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.sent {
		if m.to == to {
			out = append(out, m.msg)
		}
	}
	return out
}

func (r *fakeRuntime) lastSentTo(to Endpoint) Message {
	msgs := r.sentTo(to)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (r *fakeRuntime) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// fakeStore is an in-memory Store, good enough for driving a Node
// directly from a test without real persistence. It records entries and
// snapshot chunks, but Restore hands back only the term and vote.
type fakeStore struct {
	mu        sync.Mutex
	term      Term
	votedFor  Endpoint
	entries   map[LogIndex]LogEntry
	snapshots []SnapshotChunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[LogIndex]LogEntry)}
}

func (s *fakeStore) PersistTerm(ctx context.Context, term Term, votedFor Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
	s.votedFor = votedFor
	return nil
}

func (s *fakeStore) PersistEntries(ctx context.Context, entries []LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.Index] = e
	}
	return nil
}

func (s *fakeStore) PersistSnapshotChunk(ctx context.Context, chunk SnapshotChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, chunk)
	return nil
}

func (s *fakeStore) Truncate(ctx context.Context, from LogIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := range s.entries {
		if idx >= from {
			delete(s.entries, idx)
		}
	}
	return nil
}

func (s *fakeStore) Flush(ctx context.Context) error { return nil }

func (s *fakeStore) Restore(ctx context.Context) (RestoredState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RestoredState{Term: s.term, VotedFor: s.votedFor}, nil
}

// fakeStateMachine records every string operation in an in-memory map,
// keyed by the operation itself, and returns the operation unchanged. Apply
// is also used for reads (query.go's runLocalQuery), so a query gets its own
// operation echoed back; no operation string is parsed.
type fakeStateMachine struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStateMachine() *fakeStateMachine {
	return &fakeStateMachine{data: make(map[string]string)}
}

func (sm *fakeStateMachine) Apply(ctx context.Context, index LogIndex, operation interface{}) (interface{}, error) {
	op, _ := operation.(string)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.data[op] = op
	return op, nil
}

func (sm *fakeStateMachine) TakeSnapshot(ctx context.Context, index LogIndex, sink ChunkSink) error {
	return sink.Emit(ctx, 0, 1, []byte("snapshot"))
}

func (sm *fakeStateMachine) InstallSnapshot(ctx context.Context, index LogIndex, chunkOperations [][]byte) error {
	return nil
}

func (sm *fakeStateMachine) GetNewTermOperation() (interface{}, bool) {
	return nil, false
}

// newTestNode builds a 3-member group's local node (self) in StatusActive/
// roleFollower with a fresh fakeRuntime/fakeStore/fakeStateMachine, ready
// to drive directly from a test.
func newTestNode(self Endpoint, members []Endpoint) (*Node, *fakeRuntime) {
	rt := newFakeRuntime()
	cfg := DefaultConfig()
	n := NewNode(self, "group-1", members, cfg, rt, newFakeStateMachine(), newFakeStore())
	return n, rt
}

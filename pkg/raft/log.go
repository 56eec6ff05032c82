package raft

import "fmt"

// Log is the append-only replicated log plus an embedded snapshot slot
// standing in for everything at or before snapshotIndex (§4.1). It is a
// bounded ring: the capacity invariant (§3 invariant 7) is enforced on
// every append.
type Log struct {
	capacity int

	// entries holds log entries with index > snapshotIndex, in order.
	// entries[0] has index snapshotIndex+1.
	entries []LogEntry

	snapshot *SnapshotEntry // nil until the first snapshot is installed
}

// newLog creates an empty log with the given slot capacity.
func newLog(capacity int) *Log {
	return &Log{capacity: capacity}
}

// lastLogOrSnapshotIndex is the highest index the log knows about, whether
// it is a live entry or folded into the snapshot.
func (l *Log) lastLogOrSnapshotIndex() LogIndex {
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Index
	}
	return l.snapshotIndex()
}

// lastLogOrSnapshotTerm is the term at lastLogOrSnapshotIndex.
func (l *Log) lastLogOrSnapshotTerm() Term {
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Term
	}
	if l.snapshot != nil {
		return l.snapshot.Term
	}
	return 0
}

// snapshotIndex is 0 (NoIndex) until a snapshot has been installed.
func (l *Log) snapshotIndex() LogIndex {
	if l.snapshot == nil {
		return NoIndex
	}
	return l.snapshot.Index
}

// snapshotEntry returns the current snapshot slot, or nil.
func (l *Log) snapshotEntry() *SnapshotEntry {
	return l.snapshot
}

// containsEntry reports whether index names a live (non-compacted) entry.
func (l *Log) containsEntry(index LogIndex) bool {
	return index > l.snapshotIndex() && index <= l.lastLogOrSnapshotIndex()
}

// getEntry returns the entry at index. index must satisfy
// snapshotIndex < index <= lastLogOrSnapshotIndex.
func (l *Log) getEntry(index LogIndex) LogEntry {
	if !l.containsEntry(index) {
		panic(fmt.Sprintf("raft: getEntry(%d) out of range (snapshot=%d, last=%d)", index, l.snapshotIndex(), l.lastLogOrSnapshotIndex()))
	}
	return l.entries[int(index-l.snapshotIndex()-1)]
}

// getEntries returns entries in [from, to) along with the index and term
// of the entry immediately preceding `from` (when that is the snapshot
// index, the snapshot's term; 0 if there is no snapshot).
func (l *Log) getEntries(from, to LogIndex) (entries []LogEntry, prevIndex LogIndex, prevTerm Term) {
	if from > to {
		panic("raft: getEntries from > to")
	}
	prevIndex = from - 1
	if prevIndex > l.snapshotIndex() {
		prevTerm = l.getEntry(prevIndex).Term
	} else if prevIndex == l.snapshotIndex() && l.snapshot != nil {
		prevTerm = l.snapshot.Term
	}

	if to <= from {
		return nil, prevIndex, prevTerm
	}
	start := int(from - l.snapshotIndex() - 1)
	end := int(to - l.snapshotIndex() - 1)
	if start < 0 {
		start = 0
	}
	if end > len(l.entries) {
		end = len(l.entries)
	}
	if start >= end {
		return nil, prevIndex, prevTerm
	}
	out := make([]LogEntry, end-start)
	copy(out, l.entries[start:end])
	return out, prevIndex, prevTerm
}

// append adds one entry, refusing with errLogFull if that would break the
// capacity invariant (§3 invariant 7).
func (l *Log) append(entry LogEntry) error {
	if len(l.entries) >= l.capacity {
		return errLogFull
	}
	l.entries = append(l.entries, entry)
	return nil
}

// truncateFrom removes the suffix at index >= from. Legal only for indices
// strictly above commitIndex; the caller (AppendEntries handler, follower
// only) is responsible for enforcing that.
func (l *Log) truncateFrom(from LogIndex) {
	if from <= l.snapshotIndex() {
		panic("raft: truncateFrom at or before snapshot index")
	}
	cut := int(from - l.snapshotIndex() - 1)
	if cut < 0 {
		cut = 0
	}
	if cut > len(l.entries) {
		return
	}
	l.entries = l.entries[:cut]
}

// setSnapshot installs a new snapshot and drops every entry at index
// <= keepFromIndex, keeping the live entries after it. A keepFromIndex
// below snapshot.Index is raised to snapshot.Index: the live log always
// starts at snapshot.Index+1, so no entry at or before the snapshot index
// is retained for lagging followers.
func (l *Log) setSnapshot(snapshot SnapshotEntry, keepFromIndex LogIndex) {
	if keepFromIndex < snapshot.Index {
		keepFromIndex = snapshot.Index
	}

	// Find the tail of entries with index >= keepFromIndex+1 that are
	// still live in the current log (there may be none, e.g. on a
	// follower installing a snapshot wholesale).
	var tail []LogEntry
	for _, e := range l.entries {
		if e.Index > keepFromIndex {
			tail = append(tail, e)
		}
	}

	snap := snapshot
	l.snapshot = &snap
	l.entries = tail
}

// flush is a durability barrier: Store-backed implementations route this
// through Store.Flush via PersistentState; the pure in-memory Log has
// nothing more to do since append already mutated state synchronously.
func (l *Log) flush() {}

// Package bolt is a durable raft.Store backed by go.etcd.io/bbolt: one
// bucket per concern, CreateBucketIfNotExists on open, db.Update/db.View
// for writes/reads. Log entries are gob-encoded rather than JSON-encoded
// because LogEntry.Operation.User is an opaque interface{} supplied by the
// host's StateMachine (e.g. cmd/raftnode's kvOp) — JSON unmarshal has no
// way to recover that concrete type (it would come back as a
// map[string]interface{}), whereas gob preserves it for any type the host
// registers with gob.Register before restoring. Snapshot chunks stay plain
// bytes end to end (SnapshotChunk.Operation is already []byte, produced by
// StateMachine.TakeSnapshot), so they have no such concrete-type problem
// and are still JSON-encoded.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/sidecus/raftcore/pkg/raft"
)

var (
	bucketMeta     = []byte("meta")
	bucketEntries  = []byte("entries")
	bucketSnapshot = []byte("snapshot_chunks")
)

var keyTerm = []byte("term")
var keyVotedFor = []byte("voted_for")

// Store implements raft.Store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file raftcore.db under dataDir.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "raftcore.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("raftcore bolt store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketEntries, bucketSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(index raft.LogIndex) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(index))
	return b[:]
}

func chunkKey(index raft.LogIndex, chunkIndex int) []byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[:8], uint64(index))
	binary.BigEndian.PutUint32(b[8:], uint32(chunkIndex))
	return b[:]
}

func (s *Store) PersistTerm(ctx context.Context, term raft.Term, votedFor raft.Endpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		var termBuf [8]byte
		binary.BigEndian.PutUint64(termBuf[:], uint64(term))
		if err := b.Put(keyTerm, termBuf[:]); err != nil {
			return err
		}
		return b.Put(keyVotedFor, []byte(votedFor))
	})
}

func (s *Store) PersistEntries(ctx context.Context, entries []raft.LogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for _, e := range entries {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(e); err != nil {
				return fmt.Errorf("encode entry %d: %w", e.Index, err)
			}
			if err := b.Put(indexKey(e.Index), buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PersistSnapshotChunk(ctx context.Context, chunk raft.SnapshotChunk) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshot)
		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("marshal snapshot chunk %d/%d: %w", chunk.Index, chunk.ChunkIndex, err)
		}
		return b.Put(chunkKey(chunk.Index, chunk.ChunkIndex), data)
	})
}

func (s *Store) Truncate(ctx context.Context, from raft.LogIndex) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(indexKey(from)); k != nil; k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Flush is a no-op beyond what bbolt already guarantees: every db.Update
// call above commits (and, unless NoSync is set, fsyncs) its own
// transaction before returning, so there is nothing left to batch here.
func (s *Store) Flush(ctx context.Context) error {
	return nil
}

func (s *Store) Restore(ctx context.Context) (raft.RestoredState, error) {
	var state raft.RestoredState

	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyTerm); v != nil {
			state.Term = raft.Term(binary.BigEndian.Uint64(v))
		}
		if v := meta.Get(keyVotedFor); v != nil {
			state.VotedFor = raft.Endpoint(v)
		}

		entries := tx.Bucket(bucketEntries)
		if err := entries.ForEach(func(k, v []byte) error {
			var e raft.LogEntry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
				return err
			}
			state.Entries = append(state.Entries, e)
			return nil
		}); err != nil {
			return err
		}
		sort.Slice(state.Entries, func(i, j int) bool { return state.Entries[i].Index < state.Entries[j].Index })

		snapshot := tx.Bucket(bucketSnapshot)
		return snapshot.ForEach(func(k, v []byte) error {
			var c raft.SnapshotChunk
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			state.SnapshotChunks = append(state.SnapshotChunks, c)
			return nil
		})
	})
	if err != nil {
		return raft.RestoredState{}, fmt.Errorf("raftcore bolt store: restore: %w", err)
	}

	sort.Slice(state.SnapshotChunks, func(i, j int) bool {
		return state.SnapshotChunks[i].ChunkIndex < state.SnapshotChunks[j].ChunkIndex
	})
	return state, nil
}

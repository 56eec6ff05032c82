package raft

import (
	"context"

	"github.com/sidecus/raftcore/internal/logutil"
)

// applierComponent implements §4.6: it drives StateMachine for every newly
// committed entry, resolves pending futures, and probes whether it is time
// to take a snapshot.
type applierComponent struct{}

func (a applierComponent) apply(ctx context.Context, n *Node) {
	for n.lastApplied < n.commitIndex {
		index := n.lastApplied + 1
		entry := n.ps.log.getEntry(index)
		a.applyOne(ctx, n, entry)
		n.lastApplied = index
	}

	if n.status.isTerminal() {
		return
	}
	if n.commitIndex-n.ps.log.snapshotIndex() >= LogIndex(n.config.CommitCountToTakeSnapshot) {
		n.takeSnapshot(ctx)
	}
}

func (a applierComponent) applyOne(ctx context.Context, n *Node, entry LogEntry) {
	future := n.futures[entry.Index]
	delete(n.futures, entry.Index)

	switch entry.Operation.Kind {
	case OpUser:
		result, err := n.sm.Apply(ctx, entry.Index, entry.Operation.User)
		if future != nil {
			if err != nil {
				future.complete(Result{Err: err})
			} else {
				future.complete(Result{Value: Ordered{CommitIndex: entry.Index, Result: result}})
			}
		}

	case OpUpdateMembers:
		change := entry.Operation.Membership
		n.status = StatusUpdatingGroupMembers
		n.effectiveMembers = MemberSet{LogIndex: entry.Index, Members: append([]Endpoint(nil), change.Members...)}
		n.committedMembers = n.effectiveMembers.Clone()
		n.membership.onCommitted(n, entry.Index)
		if !n.effectiveMembers.Contains(n.self) {
			logutil.Info("T%d: node %s removed from group, terminating", n.ps.term, n.self)
			n.setTerminated(nil)
		} else {
			n.status = StatusActive
		}
		if future != nil {
			future.complete(Result{Value: Ordered{CommitIndex: entry.Index, Result: change}})
		}

	case OpTerminateGroup:
		n.setTerminated(nil)
		if future != nil {
			future.complete(Result{Value: Ordered{CommitIndex: entry.Index}})
		}
	}
}

package raft

import (
	"context"
	"time"

	"github.com/sidecus/raftcore/internal/logutil"
)

// Node is the per-node Raft core: plain data plus free-function handlers,
// per the Design Notes ("model as plain data NodeState plus free-function
// handlers; no back-pointers"). There is exactly one Node per group
// member, owned and mutated only from its NodeDriver's single executor
// (§5) — nothing in this package takes a lock.
type Node struct {
	self    Endpoint
	groupID Endpoint
	config  Config

	runtime Runtime
	sm      StateMachine
	ps      *PersistentState

	role          roleKind
	status        Status
	currentLeader Endpoint

	committedMembers MemberSet
	effectiveMembers MemberSet

	commitIndex LogIndex
	lastApplied LogIndex

	candidate *candidateState // non-nil only while PreCandidate/Candidate
	leader    *leaderState     // non-nil only while Leader

	futures map[LogIndex]*Future

	replication replicationEngine
	commit      commitTracker
	applier     applierComponent
	membership  membershipController

	snapshotCollector *snapshotChunkCollector

	lastHeardFromLeader time.Time

	driver *NodeDriver
}

// NewNode constructs a Node. It does not start the event loop; call
// Start once the Node and its collaborators are wired up.
func NewNode(self Endpoint, groupID Endpoint, members []Endpoint, config Config, runtime Runtime, sm StateMachine, store Store) *Node {
	n := &Node{
		self:    self,
		groupID: groupID,
		config:  config,
		runtime: runtime,
		sm:      sm,
		ps:      newPersistentState(store, config.logCapacity()),
		role:    roleFollower,
		status:  StatusActive,
		futures: make(map[LogIndex]*Future),
	}
	n.committedMembers = MemberSet{LogIndex: 0, Members: append([]Endpoint(nil), members...)}
	n.effectiveMembers = n.committedMembers.Clone()
	n.driver = newNodeDriver(n)
	return n
}

// Restore loads durable state via Store.Restore before the node starts
// taking traffic.
func (n *Node) Restore(ctx context.Context) error {
	return n.ps.restore(ctx)
}

// Start arms the node's election timer and periodic report; the heartbeat
// timer is armed later, on becoming leader. Call once, after Restore,
// before the host begins delivering messages.
func (n *Node) Start(ctx context.Context) {
	n.driver.Start(ctx)
}

// --- volatile read accessors (§5 "escape hatches... no coherence
// guarantee beyond eventually observed") ---

// Status returns the current lifecycle status.
func (n *Node) Status() Status { return n.status }

// Role returns the current Raft role as a string for operator display.
func (n *Node) Role() string { return n.role.String() }

// Term returns the current term.
func (n *Node) Term() Term { return n.ps.term }

// Leader returns the last known leader hint, or "" if none.
func (n *Node) Leader() Endpoint { return n.currentLeader }

// CommitIndex returns the last known commit index.
func (n *Node) CommitIndex() LogIndex { return n.commitIndex }

// --- derived log accessors used throughout the core ---

func (n *Node) lastLogIndex() LogIndex { return n.ps.log.lastLogOrSnapshotIndex() }
func (n *Node) lastLogTerm() Term      { return n.ps.log.lastLogOrSnapshotTerm() }

func (n *Node) uncommittedCount() int {
	return int(n.lastLogIndex() - n.commitIndex)
}

// --- public API: replicate / query / membership / transfer ---

// Replicate appends operation to the log (leader only) and returns a
// Future resolved once it commits (or the attempt fails/invalidates).
func (n *Node) Replicate(ctx context.Context, operation interface{}) *Future {
	future := newFuture()
	n.runtime.Execute(ctx, func(ctx context.Context) {
		n.doReplicate(ctx, operation, future)
	})
	return future
}

func (n *Node) doReplicate(ctx context.Context, operation interface{}, future *Future) {
	if n.status.isTerminal() {
		future.complete(Result{Err: &NotLeaderError{}})
		return
	}
	if n.role != roleLeader {
		future.complete(Result{Err: &NotLeaderError{LeaderHint: n.currentLeader}})
		return
	}
	if n.membership.hasUncommittedChange() {
		// Ordinary user writes are still allowed to interleave with a
		// pending membership change; only a second membership change is
		// rejected (§4.9). Nothing to do here.
	}
	if n.uncommittedCount() >= n.config.MaxUncommittedLogEntries {
		future.complete(Result{Err: &CannotReplicateError{LeaderHint: n.currentLeader, Reason: "too many uncommitted entries"}})
		return
	}

	entry := LogEntry{
		Index:     n.lastLogIndex() + 1,
		Term:      n.ps.term,
		Operation: Operation{Kind: OpUser, User: operation},
	}
	if err := n.ps.appendAndPersist(ctx, []LogEntry{entry}); err != nil {
		future.complete(Result{Err: err})
		return
	}
	n.futures[entry.Index] = future
	n.replication.onNewEntry(ctx, n, entry.Index)
}

// Query runs a linearizable or stale local read (§4.8).
func (n *Node) Query(ctx context.Context, policy QueryPolicy, operation interface{}, minCommitIndex LogIndex) *Future {
	result := make(chan *Future, 1)
	n.runtime.Execute(ctx, func(ctx context.Context) {
		result <- n.query(ctx, policy, operation, minCommitIndex)
	})
	return <-result
}

// ChangeMembership proposes a single-server membership change (§4.9).
func (n *Node) ChangeMembership(ctx context.Context, endpoint Endpoint, mode MembershipMode, expectedCommitIndex LogIndex) *Future {
	future := newFuture()
	n.runtime.Execute(ctx, func(ctx context.Context) {
		n.membership.changeMembership(ctx, n, endpoint, mode, expectedCommitIndex, future)
	})
	return future
}

// TransferLeadership asks the current leader to hand off to target
// (§4.9).
func (n *Node) TransferLeadership(ctx context.Context, target Endpoint) *Future {
	future := newFuture()
	n.runtime.Execute(ctx, func(ctx context.Context) {
		n.startLeadershipTransfer(ctx, target, future)
	})
	return future
}

// --- role transitions (§4.2) ---

// becomeFollower is always legal. It clears the leader hint only if term
// advances, and fails any pending LEADER_LOCAL queries with NotLeader.
func (n *Node) becomeFollower(ctx context.Context, newTerm Term, leaderHint Endpoint) {
	termAdvanced := newTerm > n.ps.term
	wasLeader := n.role == roleLeader

	if termAdvanced {
		if err := n.ps.setTermAndVote(ctx, newTerm, ""); err != nil {
			n.fatal(ctx, err)
			return
		}
		n.currentLeader = ""
	}
	if leaderHint != "" {
		n.currentLeader = leaderHint
		n.lastHeardFromLeader = n.driver.now()
	}

	if wasLeader {
		n.failPendingLeaderQueries(n.currentLeader)
		// A pending leadership transfer's goal is exactly this: the
		// leader demoting upon observing a higher term (§4.9 "success:
		// the leader observes a higher term"). A demotion within the same
		// term fails the transfer instead.
		if termAdvanced {
			n.invalidateTransfer(nil)
		} else {
			n.invalidateTransfer(&NotLeaderError{LeaderHint: n.currentLeader})
		}
	}

	n.role = roleFollower
	n.candidate = nil
	n.leader = nil
	n.driver.onBecomeFollower()
	logutil.Info("T%d: node %s becomes follower (leader hint %s)", n.ps.term, n.self, n.currentLeader)
}

func (n *Node) becomePreCandidate(ctx context.Context) {
	n.role = rolePreCandidate
	n.candidate = newCandidateState()
	n.candidate.grant(n.self)
	n.driver.onStartElection()
	logutil.Info("T%d: node %s starts pre-vote", n.ps.term, n.self)
	n.broadcastPreVote(ctx)
}

// becomeCandidate starts a real election. sticky should be true for
// ordinary elections (so peers deny the vote if they've recently heard
// from a leader) and false for a leadership-transfer-triggered election,
// which bypasses stickiness entirely (§4.3, §4.9).
func (n *Node) becomeCandidate(ctx context.Context, sticky bool) error {
	newTerm := n.ps.term + 1
	if err := n.ps.setTermAndVote(ctx, newTerm, n.self); err != nil {
		return err
	}
	n.role = roleCandidate
	n.candidate = newCandidateState()
	n.candidate.grant(n.self)
	n.currentLeader = ""
	n.driver.onStartElection()
	logutil.Info("T%d: node %s starts election", n.ps.term, n.self)
	n.broadcastVote(ctx, sticky)
	return nil
}

func (n *Node) becomeLeader(ctx context.Context) {
	n.role = roleLeader
	n.currentLeader = n.self
	n.candidate = nil
	n.leader = newLeaderState(n.otherMembers(), n.lastLogIndex())
	n.driver.onBecomeLeader()
	logutil.Info("T%d: node %s won election", n.ps.term, n.self)

	if op, ok := n.sm.GetNewTermOperation(); ok {
		entry := LogEntry{Index: n.lastLogIndex() + 1, Term: n.ps.term, Operation: Operation{Kind: OpUser, User: op}}
		if err := n.ps.appendAndPersist(ctx, []LogEntry{entry}); err != nil {
			n.fatal(ctx, err)
			return
		}
	}
	n.replication.triggerAll(ctx, n)
}

func (n *Node) otherMembers() []Endpoint {
	out := make([]Endpoint, 0, len(n.effectiveMembers.Members))
	for _, ep := range n.effectiveMembers.Members {
		if ep != n.self {
			out = append(out, ep)
		}
	}
	return out
}

// fatal marks the node Terminated following a persistence failure on the
// log-append path (§7: "persistence failures during log append are fatal
// to the node and trigger Terminated").
func (n *Node) fatal(ctx context.Context, err error) {
	logutil.Error("node %s: fatal error, terminating: %v", n.self, err)
	n.setTerminated(err)
}

func (n *Node) setTerminated(cause error) {
	if n.status.isTerminal() {
		return
	}
	n.status = StatusTerminated
	hint := n.currentLeader
	for _, f := range n.futures {
		f.complete(Result{Err: &NotLeaderError{LeaderHint: hint}})
	}
	n.futures = make(map[LogIndex]*Future)
	n.failPendingLeaderQueries(hint)
	n.invalidateTransfer(&NotLeaderError{LeaderHint: hint})
	n.runtime.OnGroupTerminated()
}

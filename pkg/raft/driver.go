package raft

import (
	"context"
	"math/rand"
	"time"

	"github.com/sidecus/raftcore/internal/logutil"
)

// NodeDriver adapts Node onto Runtime: it arms/disarms the heartbeat and
// election timers, runs the periodic report task, and guards every timer
// callback with a status check (§9 Design Notes: "replace [status-aware
// tasks] with a guard function `if status.isTerminal() return;` ... or a
// higher-order wrapper `statusAware(task)`").
type NodeDriver struct {
	node    *Node
	runtime Runtime

	cancelElection  CancelFunc
	cancelHeartbeat CancelFunc
	cancelReport    CancelFunc
	cancelBackoff   CancelFunc

	clock func() time.Time
}

func newNodeDriver(n *Node) *NodeDriver {
	return &NodeDriver{node: n, runtime: n.runtime, clock: time.Now}
}

func (d *NodeDriver) now() time.Time { return d.clock() }

// statusAware wraps a task so it is a no-op once the node has terminated.
func (d *NodeDriver) statusAware(task Task) Task {
	return func(ctx context.Context) {
		if d.node.status.isTerminal() {
			return
		}
		task(ctx)
	}
}

// Start begins the node's timers. Call once after NewNode/Restore.
func (d *NodeDriver) Start(ctx context.Context) {
	d.resetElectionTimer()
	d.scheduleReport()
}

func (d *NodeDriver) electionTimeout() time.Duration {
	jitter := d.node.config.electionJitter
	if jitter <= 0 {
		return d.node.config.LeaderElectionTimeout
	}
	return d.node.config.LeaderElectionTimeout + time.Duration(rand.Int63n(int64(jitter)))
}

func (d *NodeDriver) resetElectionTimer() {
	if d.cancelElection != nil {
		d.cancelElection()
	}
	if d.node.role == roleLeader {
		return
	}
	d.cancelElection = d.runtime.Schedule(d.statusAware(d.onElectionTimeout), d.electionTimeout())
}

func (d *NodeDriver) cancelElectionTimer() {
	if d.cancelElection != nil {
		d.cancelElection()
		d.cancelElection = nil
	}
}

// onElectionTimeout fires when no leader has been heard from: a follower
// moves to pre-vote (§4.2 Follower->PreCandidate).
func (d *NodeDriver) onElectionTimeout(ctx context.Context) {
	n := d.node
	if n.role == roleLeader {
		return
	}
	if n.currentLeader != "" && n.recentlyHeardFromLeader() {
		d.resetElectionTimer()
		return
	}
	n.becomePreCandidate(ctx)
}

// onStartElection is called by becomePreCandidate/becomeCandidate to reset
// the election timer (it always keeps ticking through PreCandidate and
// Candidate so a stuck election eventually retries).
func (d *NodeDriver) onStartElection() {
	d.resetElectionTimer()
}

func (d *NodeDriver) onBecomeFollower() {
	d.cancelHeartbeatTimer()
	d.resetElectionTimer()
}

func (d *NodeDriver) onBecomeLeader() {
	d.cancelElectionTimer()
	d.scheduleHeartbeat()
}

func (d *NodeDriver) cancelHeartbeatTimer() {
	if d.cancelHeartbeat != nil {
		d.cancelHeartbeat()
		d.cancelHeartbeat = nil
	}
}

func (d *NodeDriver) scheduleHeartbeat() {
	d.cancelHeartbeat = d.runtime.Schedule(d.statusAware(d.onHeartbeatTick), d.node.config.LeaderHeartbeatPeriod)
}

// onHeartbeatTick drives replication every period, and demotes the leader
// if a majority of followers haven't responded within
// LeaderHeartbeatTimeout (§5 "majority-heartbeat-response-timeout elapse:
// leader demotes to follower"). A follower that has not responded at all
// since this node became leader is counted as responsive.
func (d *NodeDriver) onHeartbeatTick(ctx context.Context) {
	n := d.node
	if n.role != roleLeader {
		return
	}

	if d.majorityTimedOut() {
		logutil.Warning("T%d: node %s lost majority heartbeat response, demoting", n.ps.term, n.self)
		n.becomeFollower(ctx, n.ps.term, "")
		return
	}

	n.replication.triggerAll(ctx, n)
	if n.leader != nil && n.leader.transfer != nil {
		n.driveLeadershipTransfer(ctx)
	}
	d.scheduleHeartbeat()
}

func (d *NodeDriver) majorityTimedOut() bool {
	n := d.node
	if n.leader == nil {
		return false
	}
	now := d.now()
	responsive := 1 // self
	quorum := len(n.effectiveMembers.Members)/2 + 1
	for _, ep := range n.effectiveMembers.Members {
		if ep == n.self {
			continue
		}
		if f, ok := n.leader.followers[ep]; ok {
			if f.lastResponse.IsZero() || now.Sub(f.lastResponse) < n.config.LeaderHeartbeatTimeout {
				responsive++
			}
		}
	}
	return responsive < quorum
}

// scheduleBackoffReset arms the single global backoff-reset task described
// in §4.4; it is idempotent (re-arming while already armed is a no-op)
// since the reset task itself re-checks every follower's deadline.
func (d *NodeDriver) scheduleBackoffReset() {
	if d.cancelBackoff != nil {
		return
	}
	d.cancelBackoff = d.runtime.Schedule(d.statusAware(d.onBackoffReset), d.node.config.LeaderBackoffDuration)
}

func (d *NodeDriver) onBackoffReset(ctx context.Context) {
	d.cancelBackoff = nil
	n := d.node
	if n.role != roleLeader {
		return
	}
	n.replication.resetBackoff(ctx, n)
	for _, f := range n.leader.followers {
		if f.inFlight {
			d.scheduleBackoffReset()
			return
		}
	}
}

func (d *NodeDriver) scheduleReport() {
	d.cancelReport = d.runtime.Schedule(d.onReportTick, d.node.config.ReportPublishPeriod)
}

func (d *NodeDriver) onReportTick(ctx context.Context) {
	n := d.node
	report := Report{
		Self:             n.self,
		Role:             n.Role(),
		Status:           n.status.String(),
		Term:             n.ps.term,
		Leader:           n.currentLeader,
		CommitIndex:      n.commitIndex,
		LastApplied:      n.lastApplied,
		LastLogIndex:     n.lastLogIndex(),
		CommittedMembers: n.committedMembers.Members,
		EffectiveMembers: n.effectiveMembers.Members,
	}
	n.runtime.OnReport(report)
	if !n.status.isTerminal() {
		d.scheduleReport()
	}
}

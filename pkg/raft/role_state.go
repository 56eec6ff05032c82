package raft

import "time"

// roleKind is the tagged variant of RoleState (§4.2): Follower,
// PreCandidate, Candidate, or Leader.
type roleKind int

const (
	roleFollower roleKind = iota
	rolePreCandidate
	roleCandidate
	roleLeader
)

func (r roleKind) String() string {
	switch r {
	case roleFollower:
		return "Follower"
	case rolePreCandidate:
		return "PreCandidate"
	case roleCandidate:
		return "Candidate"
	case roleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// followerState is the leader's per-follower bookkeeping (§4.2): next/match
// index, backoff pacing, and in-flight tracking. Adapted from the
// teacher's followerinfo.go/peermanager.go Peer struct, generalized from
// int node IDs to Endpoint and from goroutine-signaled replication to
// synchronous decisions made by ReplicationEngine on the node's executor.
type followerState struct {
	endpoint Endpoint

	nextIndex  LogIndex
	matchIndex LogIndex // 0 means "no match discovered yet"

	inFlight        bool
	backoffRound    int
	lastResponse    time.Time
	backoffDeadline time.Time
}

func newFollowerState(ep Endpoint, lastLogIndex LogIndex) *followerState {
	return &followerState{
		endpoint:   ep,
		nextIndex:  lastLogIndex + 1,
		matchIndex: 0,
	}
}

func (f *followerState) hasDiscoveredMatch() bool {
	return f.matchIndex != 0
}

// setRequestBackoff arms exponential backoff, bounded by maxBackoff, and
// records the deadline the global reset task will check against.
func (f *followerState) setRequestBackoff(now time.Time, base, max time.Duration) {
	f.inFlight = true
	f.backoffRound++
	delay := base << uint(f.backoffRound-1)
	if delay > max || delay <= 0 {
		delay = max
	}
	f.backoffDeadline = now.Add(delay)
}

// clearBackoff is called whenever any response arrives from this follower,
// per §4.4 "cancellation: any inbound response clears backoff immediately".
func (f *followerState) clearBackoff() {
	f.inFlight = false
	f.backoffRound = 0
}

func (f *followerState) onResponse(now time.Time, success bool, lastMatchHint LogIndex, fallback LogIndex) {
	f.lastResponse = now
	f.clearBackoff()
	if success {
		f.nextIndex = lastMatchHint + 1
		f.matchIndex = lastMatchHint
	} else {
		if fallback > 0 && fallback < f.nextIndex {
			f.nextIndex = fallback
		} else if f.nextIndex > 1 {
			f.nextIndex--
		}
		f.matchIndex = 0
	}
}

// leaderState is created on transition to leader and destroyed on
// transition away (§3 lifecycle). It holds per-follower followerState plus
// the in-flight linearizable QueryState, flush tracking, and leadership
// transfer bookkeeping.
type leaderState struct {
	followers map[Endpoint]*followerState

	flushedLogIndex LogIndex
	flushScheduled  bool

	query *queryState

	transfer *transferState

	// sawOwnTermCommit is true once this leader has committed at least
	// one entry whose term equals its own current term (§3 invariant 6,
	// §4.9 membership gating).
	sawOwnTermCommit bool
}

func newLeaderState(members []Endpoint, lastLogIndex LogIndex) *leaderState {
	followers := make(map[Endpoint]*followerState, len(members))
	for _, ep := range members {
		followers[ep] = newFollowerState(ep, lastLogIndex)
	}
	return &leaderState{
		followers: followers,
		query:     newQueryState(),
	}
}

// candidateState tracks pre-vote/vote bookkeeping for an election attempt.
type candidateState struct {
	votes map[Endpoint]bool
}

func newCandidateState() *candidateState {
	return &candidateState{votes: make(map[Endpoint]bool)}
}

func (c *candidateState) grant(ep Endpoint) {
	c.votes[ep] = true
}

// hasMajority counts grants against the member list. The candidate grants
// itself a vote on entering PreCandidate/Candidate (see becomePreCandidate,
// becomeCandidate), so self is already reflected in votes.
func (c *candidateState) hasMajority(members MemberSet) bool {
	quorum := len(members.Members)/2 + 1
	total := 0
	for _, ep := range members.Members {
		if c.votes[ep] {
			total++
			if total >= quorum {
				return true
			}
		}
	}
	return false
}

// transferState tracks an in-flight leadership transfer (§4.9).
type transferState struct {
	target   Endpoint
	future   *Future
	deadline time.Time
	backoff  time.Duration
}

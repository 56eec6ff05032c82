package raft

import "time"

// Config is the exhaustive set of tunables from spec.md §6 Configuration.
type Config struct {
	LeaderElectionTimeout     time.Duration
	LeaderHeartbeatPeriod     time.Duration
	LeaderHeartbeatTimeout    time.Duration
	LeaderBackoffDuration     time.Duration
	AppendEntriesBatchSize    int
	MaxUncommittedLogEntries  int
	CommitCountToTakeSnapshot int
	KeptAfterSnapshot         int
	ReportPublishPeriod       time.Duration

	// electionJitter bounds the randomized 0-100ms noise added to
	// election timeouts. Exposed for deterministic tests; production
	// code leaves it at its default.
	electionJitter time.Duration
}

// DefaultConfig returns sensible defaults, in the same range as typical
// RPC/snapshot timeout constants and standard Raft literature values.
func DefaultConfig() Config {
	return Config{
		LeaderElectionTimeout:     1000 * time.Millisecond,
		LeaderHeartbeatPeriod:     100 * time.Millisecond,
		LeaderHeartbeatTimeout:    500 * time.Millisecond,
		LeaderBackoffDuration:     2 * time.Second,
		AppendEntriesBatchSize:    64,
		MaxUncommittedLogEntries:  1000,
		CommitCountToTakeSnapshot: 10000,
		KeptAfterSnapshot:         100,
		ReportPublishPeriod:       30 * time.Second,
		electionJitter:            100 * time.Millisecond,
	}
}

// logCapacity is the maximum number of slots the log may hold at once
// (§3 invariant 7).
func (c Config) logCapacity() int {
	return c.CommitCountToTakeSnapshot + c.MaxUncommittedLogEntries + c.KeptAfterSnapshot
}

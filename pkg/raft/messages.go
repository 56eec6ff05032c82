package raft

// Message is the tagged sum type every inbound/outbound wire message
// implements. Per the Design Notes ("dynamic dispatch over message kinds"),
// handlers switch on concrete types, never on a shared base interface
// method.
type Message interface {
	messageTerm() Term
	sender() Endpoint
}

type baseMessage struct {
	GroupID Endpoint
	Sender  Endpoint
	Term    Term
}

func (m baseMessage) messageTerm() Term { return m.Term }
func (m baseMessage) sender() Endpoint  { return m.Sender }

// AppendEntriesRequest replicates a batch of entries (possibly empty, as a
// heartbeat) and piggybacks the current query round for read-index
// acknowledgment.
type AppendEntriesRequest struct {
	baseMessage
	PrevLogIndex LogIndex
	PrevLogTerm  Term
	Entries      []LogEntry
	LeaderCommit LogIndex
	QueryRound   uint64
}

// AppendEntriesSuccess acknowledges a successful AppendEntriesRequest.
type AppendEntriesSuccess struct {
	baseMessage
	LastLogIndex LogIndex
	QueryRound   uint64
}

// AppendEntriesFailure rejects an AppendEntriesRequest, carrying a fast
// backtracking hint.
type AppendEntriesFailure struct {
	baseMessage
	ExpectedNextIndex LogIndex
}

// InstallSnapshotRequest transmits one snapshot chunk (or, with an empty
// Chunks slice, acts as a probe that triggers the follower to start
// requesting chunks).
type InstallSnapshotRequest struct {
	baseMessage
	SnapshotIndex   LogIndex
	SnapshotTerm    Term
	Chunks          []SnapshotChunk
	TotalChunkCount int
	GroupMembers    []Endpoint
	QueryRound      uint64
}

// InstallSnapshotResponse acknowledges progress on a snapshot install; if
// the follower is missing chunks it lists them.
type InstallSnapshotResponse struct {
	baseMessage
	LastLogIndex          LogIndex
	RequestedChunkIndices []int
}

// VoteRequest asks a peer to grant a vote for an ordinary (possibly sticky)
// election.
type VoteRequest struct {
	baseMessage
	LastLogTerm  Term
	LastLogIndex LogIndex
	Sticky       bool
}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	baseMessage
	VotedTerm   Term
	VoteGranted bool
}

// PreVoteRequest is the non-durable analog of VoteRequest (§4.3).
type PreVoteRequest struct {
	baseMessage
	LastLogTerm  Term
	LastLogIndex LogIndex
}

// PreVoteResponse answers a PreVoteRequest.
type PreVoteResponse struct {
	baseMessage
	VoteGranted bool
}

// TriggerLeaderElection asks its target to immediately start a non-sticky
// election, used by leadership transfer.
type TriggerLeaderElection struct {
	baseMessage
	LastLogTerm  Term
	LastLogIndex LogIndex
}

// Constructors below let a transport package (outside this package, and so
// unable to name the unexported baseMessage field directly) rebuild a
// Message from wire data.

func NewAppendEntriesRequest(groupID, sender Endpoint, term Term, prevLogIndex LogIndex, prevLogTerm Term, entries []LogEntry, leaderCommit LogIndex, queryRound uint64) *AppendEntriesRequest {
	return &AppendEntriesRequest{
		baseMessage:  baseMessage{GroupID: groupID, Sender: sender, Term: term},
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: leaderCommit,
		QueryRound:   queryRound,
	}
}

func NewAppendEntriesSuccess(groupID, sender Endpoint, term Term, lastLogIndex LogIndex, queryRound uint64) *AppendEntriesSuccess {
	return &AppendEntriesSuccess{
		baseMessage:  baseMessage{GroupID: groupID, Sender: sender, Term: term},
		LastLogIndex: lastLogIndex,
		QueryRound:   queryRound,
	}
}

func NewAppendEntriesFailure(groupID, sender Endpoint, term Term, expectedNextIndex LogIndex) *AppendEntriesFailure {
	return &AppendEntriesFailure{
		baseMessage:       baseMessage{GroupID: groupID, Sender: sender, Term: term},
		ExpectedNextIndex: expectedNextIndex,
	}
}

func NewInstallSnapshotRequest(groupID, sender Endpoint, term Term, snapshotIndex LogIndex, snapshotTerm Term, chunks []SnapshotChunk, totalChunkCount int, groupMembers []Endpoint, queryRound uint64) *InstallSnapshotRequest {
	return &InstallSnapshotRequest{
		baseMessage:     baseMessage{GroupID: groupID, Sender: sender, Term: term},
		SnapshotIndex:   snapshotIndex,
		SnapshotTerm:    snapshotTerm,
		Chunks:          chunks,
		TotalChunkCount: totalChunkCount,
		GroupMembers:    groupMembers,
		QueryRound:      queryRound,
	}
}

func NewInstallSnapshotResponse(groupID, sender Endpoint, term Term, lastLogIndex LogIndex, requestedChunkIndices []int) *InstallSnapshotResponse {
	return &InstallSnapshotResponse{
		baseMessage:           baseMessage{GroupID: groupID, Sender: sender, Term: term},
		LastLogIndex:          lastLogIndex,
		RequestedChunkIndices: requestedChunkIndices,
	}
}

func NewVoteRequest(groupID, sender Endpoint, term Term, lastLogTerm Term, lastLogIndex LogIndex, sticky bool) *VoteRequest {
	return &VoteRequest{
		baseMessage:  baseMessage{GroupID: groupID, Sender: sender, Term: term},
		LastLogTerm:  lastLogTerm,
		LastLogIndex: lastLogIndex,
		Sticky:       sticky,
	}
}

func NewVoteResponse(groupID, sender Endpoint, term Term, votedTerm Term, voteGranted bool) *VoteResponse {
	return &VoteResponse{
		baseMessage: baseMessage{GroupID: groupID, Sender: sender, Term: term},
		VotedTerm:   votedTerm,
		VoteGranted: voteGranted,
	}
}

func NewPreVoteRequest(groupID, sender Endpoint, term Term, lastLogTerm Term, lastLogIndex LogIndex) *PreVoteRequest {
	return &PreVoteRequest{
		baseMessage:  baseMessage{GroupID: groupID, Sender: sender, Term: term},
		LastLogTerm:  lastLogTerm,
		LastLogIndex: lastLogIndex,
	}
}

func NewPreVoteResponse(groupID, sender Endpoint, term Term, voteGranted bool) *PreVoteResponse {
	return &PreVoteResponse{
		baseMessage: baseMessage{GroupID: groupID, Sender: sender, Term: term},
		VoteGranted: voteGranted,
	}
}

func NewTriggerLeaderElection(groupID, sender Endpoint, term Term, lastLogTerm Term, lastLogIndex LogIndex) *TriggerLeaderElection {
	return &TriggerLeaderElection{
		baseMessage:  baseMessage{GroupID: groupID, Sender: sender, Term: term},
		LastLogTerm:  lastLogTerm,
		LastLogIndex: lastLogIndex,
	}
}

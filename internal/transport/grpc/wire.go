package grpc

import "github.com/sidecus/raftcore/pkg/raft"

// Envelope is the one wire shape every RPC carries. Exactly one of the
// Kind-tagged payload fields is populated; the rest are zero values. This is
// the hand-written analog of what a oneof-based AppendEntries/InstallSnapshot/
// Vote/PreVote/TriggerElection protobuf service would generate; there is no
// protoc-generated package here, so conversion between raft.* types and
// these wire* types happens via explicit to/from functions instead.
type Envelope struct {
	Kind string

	AppendEntriesRequest  *wireAppendEntriesRequest
	AppendEntriesSuccess  *wireAppendEntriesSuccess
	AppendEntriesFailure  *wireAppendEntriesFailure
	InstallSnapshotReq    *wireInstallSnapshotRequest
	InstallSnapshotResp   *wireInstallSnapshotResponse
	VoteRequest           *wireVoteRequest
	VoteResponse          *wireVoteResponse
	PreVoteRequest        *wirePreVoteRequest
	PreVoteResponse       *wirePreVoteResponse
	TriggerLeaderElection *wireTriggerLeaderElection
}

type wireBase struct {
	GroupID raft.Endpoint
	Sender  raft.Endpoint
	Term    raft.Term
}

type wireAppendEntriesRequest struct {
	wireBase
	PrevLogIndex raft.LogIndex
	PrevLogTerm  raft.Term
	Entries      []raft.LogEntry
	LeaderCommit raft.LogIndex
	QueryRound   uint64
}

type wireAppendEntriesSuccess struct {
	wireBase
	LastLogIndex raft.LogIndex
	QueryRound   uint64
}

type wireAppendEntriesFailure struct {
	wireBase
	ExpectedNextIndex raft.LogIndex
}

type wireInstallSnapshotRequest struct {
	wireBase
	SnapshotIndex   raft.LogIndex
	SnapshotTerm    raft.Term
	Chunks          []raft.SnapshotChunk
	TotalChunkCount int
	GroupMembers    []raft.Endpoint
	QueryRound      uint64
}

type wireInstallSnapshotResponse struct {
	wireBase
	LastLogIndex          raft.LogIndex
	RequestedChunkIndices []int
}

type wireVoteRequest struct {
	wireBase
	LastLogTerm  raft.Term
	LastLogIndex raft.LogIndex
	Sticky       bool
}

type wireVoteResponse struct {
	wireBase
	VotedTerm   raft.Term
	VoteGranted bool
}

type wirePreVoteRequest struct {
	wireBase
	LastLogTerm  raft.Term
	LastLogIndex raft.LogIndex
}

type wirePreVoteResponse struct {
	wireBase
	VoteGranted bool
}

type wireTriggerLeaderElection struct {
	wireBase
	LastLogTerm  raft.Term
	LastLogIndex raft.LogIndex
}

// toEnvelope flattens a raft.Message into its wire shape. GroupID/Sender/Term
// are exported fields promoted from the embedded (unexported-typed)
// baseMessage, so they're readable here even though this lives outside
// package raft.
func toEnvelope(msg raft.Message) Envelope {
	switch m := msg.(type) {
	case *raft.AppendEntriesRequest:
		return Envelope{Kind: "AppendEntriesRequest", AppendEntriesRequest: &wireAppendEntriesRequest{
			wireBase:     wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			PrevLogIndex: m.PrevLogIndex,
			PrevLogTerm:  m.PrevLogTerm,
			Entries:      m.Entries,
			LeaderCommit: m.LeaderCommit,
			QueryRound:   m.QueryRound,
		}}
	case *raft.AppendEntriesSuccess:
		return Envelope{Kind: "AppendEntriesSuccess", AppendEntriesSuccess: &wireAppendEntriesSuccess{
			wireBase:     wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			LastLogIndex: m.LastLogIndex,
			QueryRound:   m.QueryRound,
		}}
	case *raft.AppendEntriesFailure:
		return Envelope{Kind: "AppendEntriesFailure", AppendEntriesFailure: &wireAppendEntriesFailure{
			wireBase:          wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			ExpectedNextIndex: m.ExpectedNextIndex,
		}}
	case *raft.InstallSnapshotRequest:
		return Envelope{Kind: "InstallSnapshotRequest", InstallSnapshotReq: &wireInstallSnapshotRequest{
			wireBase:        wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			SnapshotIndex:   m.SnapshotIndex,
			SnapshotTerm:    m.SnapshotTerm,
			Chunks:          m.Chunks,
			TotalChunkCount: m.TotalChunkCount,
			GroupMembers:    m.GroupMembers,
			QueryRound:      m.QueryRound,
		}}
	case *raft.InstallSnapshotResponse:
		return Envelope{Kind: "InstallSnapshotResponse", InstallSnapshotResp: &wireInstallSnapshotResponse{
			wireBase:              wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			LastLogIndex:          m.LastLogIndex,
			RequestedChunkIndices: m.RequestedChunkIndices,
		}}
	case *raft.VoteRequest:
		return Envelope{Kind: "VoteRequest", VoteRequest: &wireVoteRequest{
			wireBase:     wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			LastLogTerm:  m.LastLogTerm,
			LastLogIndex: m.LastLogIndex,
			Sticky:       m.Sticky,
		}}
	case *raft.VoteResponse:
		return Envelope{Kind: "VoteResponse", VoteResponse: &wireVoteResponse{
			wireBase:    wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			VotedTerm:   m.VotedTerm,
			VoteGranted: m.VoteGranted,
		}}
	case *raft.PreVoteRequest:
		return Envelope{Kind: "PreVoteRequest", PreVoteRequest: &wirePreVoteRequest{
			wireBase:     wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			LastLogTerm:  m.LastLogTerm,
			LastLogIndex: m.LastLogIndex,
		}}
	case *raft.PreVoteResponse:
		return Envelope{Kind: "PreVoteResponse", PreVoteResponse: &wirePreVoteResponse{
			wireBase:    wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			VoteGranted: m.VoteGranted,
		}}
	case *raft.TriggerLeaderElection:
		return Envelope{Kind: "TriggerLeaderElection", TriggerLeaderElection: &wireTriggerLeaderElection{
			wireBase:     wireBase{GroupID: m.GroupID, Sender: m.Sender, Term: m.Term},
			LastLogTerm:  m.LastLogTerm,
			LastLogIndex: m.LastLogIndex,
		}}
	default:
		return Envelope{}
	}
}

func fromEnvelope(env Envelope) raft.Message {
	switch env.Kind {
	case "AppendEntriesRequest":
		w := env.AppendEntriesRequest
		return raft.NewAppendEntriesRequest(w.GroupID, w.Sender, w.Term, w.PrevLogIndex, w.PrevLogTerm, w.Entries, w.LeaderCommit, w.QueryRound)
	case "AppendEntriesSuccess":
		w := env.AppendEntriesSuccess
		return raft.NewAppendEntriesSuccess(w.GroupID, w.Sender, w.Term, w.LastLogIndex, w.QueryRound)
	case "AppendEntriesFailure":
		w := env.AppendEntriesFailure
		return raft.NewAppendEntriesFailure(w.GroupID, w.Sender, w.Term, w.ExpectedNextIndex)
	case "InstallSnapshotRequest":
		w := env.InstallSnapshotReq
		return raft.NewInstallSnapshotRequest(w.GroupID, w.Sender, w.Term, w.SnapshotIndex, w.SnapshotTerm, w.Chunks, w.TotalChunkCount, w.GroupMembers, w.QueryRound)
	case "InstallSnapshotResponse":
		w := env.InstallSnapshotResp
		return raft.NewInstallSnapshotResponse(w.GroupID, w.Sender, w.Term, w.LastLogIndex, w.RequestedChunkIndices)
	case "VoteRequest":
		w := env.VoteRequest
		return raft.NewVoteRequest(w.GroupID, w.Sender, w.Term, w.LastLogTerm, w.LastLogIndex, w.Sticky)
	case "VoteResponse":
		w := env.VoteResponse
		return raft.NewVoteResponse(w.GroupID, w.Sender, w.Term, w.VotedTerm, w.VoteGranted)
	case "PreVoteRequest":
		w := env.PreVoteRequest
		return raft.NewPreVoteRequest(w.GroupID, w.Sender, w.Term, w.LastLogTerm, w.LastLogIndex)
	case "PreVoteResponse":
		w := env.PreVoteResponse
		return raft.NewPreVoteResponse(w.GroupID, w.Sender, w.Term, w.VoteGranted)
	case "TriggerLeaderElection":
		w := env.TriggerLeaderElection
		return raft.NewTriggerLeaderElection(w.GroupID, w.Sender, w.Term, w.LastLogTerm, w.LastLogIndex)
	default:
		return nil
	}
}

package main

import (
	"context"
	"fmt"

	stdgrpc "google.golang.org/grpc"

	"github.com/sidecus/raftcore/pkg/raft"
)

// kvClientServer exposes this demo's key-value operations as a client-
// facing RPC, registered on the same gRPC server/port the raftcore
// transport already listens on (internal/transport/grpc.Transport.
// RegisterService) rather than a second listener. Put/Delete go through
// Node.Replicate (they must be ordered and durable); Get goes through
// Node.Query, defaulting to the linearizable QueryLeaderLocal policy.
type kvClientServer struct {
	node *raft.Node
}

func newKVClientServer(node *raft.Node) *kvClientServer {
	return &kvClientServer{node: node}
}

// kvPutRequest/kvDeleteRequest/kvGetRequest/kvOpReply/kvGetReply are this
// service's wire types, the client-facing analog of internal/transport/
// grpc/wire.go's Envelope — plain Go structs carried by the process-wide
// gob codec (internal/transport/grpc/codec.go), no protoc step.
type kvPutRequest struct {
	Key   string
	Value string
}

type kvDeleteRequest struct {
	Key string
}

type kvGetRequest struct {
	Key string
	// Stale allows a QueryAnyLocal read against this node's local
	// commitIndex instead of a linearizable QueryLeaderLocal round.
	Stale bool
}

type kvOpReply struct {
	CommitIndex raft.LogIndex
}

type kvGetReply struct {
	Value string
	Found bool
}

// Put replicates a "set" operation and waits for it to commit.
func (s *kvClientServer) Put(ctx context.Context, req *kvPutRequest) (*kvOpReply, error) {
	future := s.node.Replicate(ctx, kvOp{Kind: "set", Key: req.Key, Value: req.Value})
	ordered, err := future.Wait()
	if err != nil {
		return nil, err
	}
	return &kvOpReply{CommitIndex: ordered.CommitIndex}, nil
}

// Delete replicates a "delete" operation and waits for it to commit.
func (s *kvClientServer) Delete(ctx context.Context, req *kvDeleteRequest) (*kvOpReply, error) {
	future := s.node.Replicate(ctx, kvOp{Kind: "delete", Key: req.Key})
	ordered, err := future.Wait()
	if err != nil {
		return nil, err
	}
	return &kvOpReply{CommitIndex: ordered.CommitIndex}, nil
}

// Get answers a read via Node.Query, linearizable by default.
func (s *kvClientServer) Get(ctx context.Context, req *kvGetRequest) (*kvGetReply, error) {
	policy := raft.QueryLeaderLocal
	if req.Stale {
		policy = raft.QueryAnyLocal
	}
	future := s.node.Query(ctx, policy, kvOp{Kind: "get", Key: req.Key}, 0)
	ordered, err := future.Wait()
	if err != nil {
		return nil, err
	}
	result, ok := ordered.Result.(kvGetResult)
	if !ok {
		return nil, fmt.Errorf("kvClientServer: unexpected query result type %T", ordered.Result)
	}
	return &kvGetReply{Value: result.Value, Found: result.Found}, nil
}

// --- hand-written ServiceDesc, matching internal/transport/grpc/service.go's
// pattern: one method per RPC here since the client surface is small enough
// not to need an Envelope-style oneof. ---

const kvClientServiceName = "raftcore.demo.KVClient"

type kvClientRPCHandler interface {
	Put(ctx context.Context, req *kvPutRequest) (*kvOpReply, error)
	Delete(ctx context.Context, req *kvDeleteRequest) (*kvOpReply, error)
	Get(ctx context.Context, req *kvGetRequest) (*kvGetReply, error)
}

func kvPutHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor stdgrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvPutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(kvClientRPCHandler).Put(ctx, in)
	}
	info := &stdgrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + kvClientServiceName + "/Put"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(kvClientRPCHandler).Put(ctx, req.(*kvPutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func kvDeleteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor stdgrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvDeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(kvClientRPCHandler).Delete(ctx, in)
	}
	info := &stdgrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + kvClientServiceName + "/Delete"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(kvClientRPCHandler).Delete(ctx, req.(*kvDeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func kvGetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor stdgrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvGetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(kvClientRPCHandler).Get(ctx, in)
	}
	info := &stdgrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + kvClientServiceName + "/Get"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(kvClientRPCHandler).Get(ctx, req.(*kvGetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var kvClientServiceDesc = stdgrpc.ServiceDesc{
	ServiceName: kvClientServiceName,
	HandlerType: (*kvClientRPCHandler)(nil),
	Methods: []stdgrpc.MethodDesc{
		{MethodName: "Put", Handler: kvPutHandler},
		{MethodName: "Delete", Handler: kvDeleteHandler},
		{MethodName: "Get", Handler: kvGetHandler},
	},
	Streams:  []stdgrpc.StreamDesc{},
	Metadata: "raftcore/demo/kvclient.proto",
}

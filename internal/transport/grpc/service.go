package grpc

import (
	"context"

	stdgrpc "google.golang.org/grpc"
)

// serviceName/methodName identify the single unary RPC this transport
// exposes. There is deliberately one method, not one per message kind: the
// Envelope's Kind field plays the role a protobuf oneof would, keeping the
// ServiceDesc simple to hand-maintain without a protoc step.
const serviceName = "raftcore.RaftTransport"
const methodName = "Send"
const fullMethod = "/" + serviceName + "/" + methodName

// raftTransportServer is implemented by Transport to answer inbound RPCs.
type raftTransportServer interface {
	handleEnvelope(ctx context.Context, env *Envelope) (*Envelope, error)
}

func sendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor stdgrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftTransportServer).handleEnvelope(ctx, in)
	}
	info := &stdgrpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftTransportServer).handleEnvelope(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = stdgrpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*raftTransportServer)(nil),
	Methods: []stdgrpc.MethodDesc{
		{MethodName: methodName, Handler: sendHandler},
	},
	Streams:  []stdgrpc.StreamDesc{},
	Metadata: "raftcore/transport.proto",
}

// raftTransportClient is a thin wrapper around a ClientConn that invokes
// the single Send RPC, the same shape a generated *Client wrapping a
// ClientConn would have.
type raftTransportClient struct {
	conn *stdgrpc.ClientConn
}

func (c *raftTransportClient) send(ctx context.Context, in *Envelope) (*Envelope, error) {
	out := new(Envelope)
	if err := c.conn.Invoke(ctx, fullMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

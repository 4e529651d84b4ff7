package node

import (
	"context"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	emptypb "google.golang.org/protobuf/types/known/emptypb"
	structpb "google.golang.org/protobuf/types/known/structpb"

	"sanders/internal/wire"
)

// Server implements the sanders.Peer gRPC service.
type Server struct {
	wire.UnimplementedPeerServer
	node *Node
}

// NewServer creates a new gRPC server instance bound to n.
func NewServer(n *Node) *Server {
	return &Server{node: n}
}

// Deliver handles an inbound protocol envelope. The envelope is queued for
// the node's event loop; the call returns before it is processed. A repeated
// envelope id is acknowledged without being queued again.
func (s *Server) Deliver(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	env, err := wire.Decode(req)
	if err != nil {
		log.Printf("[%s] Rejecting envelope: %v", s.node.id, err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, ok := s.node.addrs[env.From]; !ok && env.From != s.node.id {
		return nil, status.Errorf(codes.InvalidArgument, "unknown sender %q", env.From)
	}

	if err := s.node.receive(env); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Ping answers readiness probes.
func (s *Server) Ping(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

// Status reports the node's protocol state.
func (s *Server) Status(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.node.Status(ctx)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	return wire.EncodeStatus(st)
}

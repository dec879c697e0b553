// Package transport serves descriptor backends over gRPC and provides the
// "remote" backend that calls them.
//
// The service has a single unary method, benchml.v1.Descriptor/Evaluate,
// whose request and reply are google.protobuf.Struct messages. A standard
// grpc.health.v1 service reports whether the wrapped backend is usable.
package transport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"benchml/internal/descriptor"
)

const (
	ServiceName    = "benchml.v1.Descriptor"
	evaluateMethod = "/" + ServiceName + "/Evaluate"
)

type descriptorServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*descriptorServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Evaluate",
		Handler:    evaluateHandler,
	}},
	Metadata: "benchml/v1/descriptor",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(descriptorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(descriptorServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServerOptions configure a descriptor server.
type ServerOptions struct {
	// Backend is the local backend requests are evaluated with (default "radial").
	Backend string
	// Timeout bounds one request; zero means no bound.
	Timeout time.Duration
	Log     *slog.Logger
}

// Server exposes a local descriptor backend.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
}

type service struct {
	opts ServerOptions
}

// StartServer listens on addr. The health status is SERVING when the
// backend is available and NOT_SERVING otherwise.
func StartServer(addr string, opts ServerOptions) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServer(lis, opts), nil
}

// NewServer serves on an existing listener.
func NewServer(lis net.Listener, opts ServerOptions) *Server {
	if opts.Backend == "" {
		opts.Backend = "radial"
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		lis:    lis,
		health: health.NewServer(),
	}
	s.grpc.RegisterService(&serviceDesc, &service{opts: opts})
	healthpb.RegisterHealthServer(s.grpc, s.health)

	st := healthpb.HealthCheckResponse_SERVING
	if err := descriptor.Available(opts.Backend); err != nil {
		opts.Log.Warn("descriptor backend unavailable", "backend", opts.Backend, "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *service) Evaluate(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	req, err := decodeRequest(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req.cfg.Backend = s.opts.Backend
	b, err := descriptor.New(req.cfg)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	x, err := b.Evaluate(ctx, req.structure, req.centres)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.opts.Log.Debug("descriptor evaluated", "atoms", len(req.structure.Symbols), "rows", x.Rows())
	return encodeReply(x)
}

const checkTimeout = 5 * time.Second

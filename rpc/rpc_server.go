package rpc

import (
	"context"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/securefed/go-coordinator/processor"
	"github.com/securefed/go-coordinator/store"
	"github.com/securefed/go-coordinator/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"net"
	"net/http"
	"time"
)

var _ CoordinatorServiceServer = &Server{}

const maxMsgSize = 64 * 1024 * 1024

type Store interface {
	GetLastProcessedRound(ctx context.Context) (uint64, error)
	GetRoundResult(ctx context.Context, round uint64) (types.RoundResult, error)
	GetAuditRecords(ctx context.Context, round uint64) ([]types.AuditRecord, error)
	GetGlobalState(ctx context.Context, round uint64) (types.GlobalState, error)
}

type StatusProvider interface {
	Status() processor.Status
}

type Server struct {
	UnimplementedCoordinatorServiceServer
	listenAddrGRPC string
	listenAddrHTTP string
	store          Store
	status         StatusProvider
	registry       *prometheus.Registry
	events         http.HandlerFunc
	logger         *zap.SugaredLogger

	grpcServer *grpc.Server
	httpServer *http.Server
}

// NewServer wires the read-only coordinator API. events may be nil.
func NewServer(listenAddrGRPC, listenAddrHTTP string, store Store, status StatusProvider, registry *prometheus.Registry, events http.HandlerFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		listenAddrGRPC: listenAddrGRPC,
		listenAddrHTTP: listenAddrHTTP,
		store:          store,
		status:         status,
		registry:       registry,
		events:         events,
		logger:         logger.Sugar().Named("rpc"),
	}
}

func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	round, err := s.store.GetLastProcessedRound(ctx)
	if err != nil && errors.Cause(err) != store.ErrNotFound {
		return nil, status.Errorf(codes.Internal, "getting last processed round: %v", err)
	}

	current := s.status.Status()
	resp := struct {
		LastProcessedRound   uint64 `json:"lastProcessedRound"`
		Phase                string `json:"phase"`
		Round                uint64 `json:"round"`
		Attempt              int    `json:"attempt"`
		RegisteredNodes      int    `json:"registeredNodes"`
		CompletedRounds      int    `json:"completedRounds"`
		FailedAttempts       int    `json:"failedAttempts"`
		LastStateFingerprint string `json:"lastStateFingerprint"`
		LastAuditDigest      string `json:"lastAuditDigest"`
		LastRoundDuration    string `json:"lastRoundDuration"`
	}{
		LastProcessedRound:   round,
		Phase:                current.Phase.String(),
		Round:                current.Round,
		Attempt:              current.Attempt,
		RegisteredNodes:      current.RegisteredNodes,
		CompletedRounds:      current.CompletedRounds,
		FailedAttempts:       current.FailedAttempts,
		LastStateFingerprint: current.LastStateFingerprint,
		LastAuditDigest:      current.LastAuditDigest,
		LastRoundDuration:    current.LastRoundDuration.String(),
	}

	doc, err := toStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding status: %v", err)
	}

	return doc, nil
}

func (s *Server) GetRoundResult(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	result, err := s.store.GetRoundResult(ctx, req.GetValue())
	if err != nil {
		if errors.Cause(err) == store.ErrNotFound {
			return nil, status.Errorf(codes.NotFound, "round result not found")
		}
		return nil, status.Errorf(codes.Internal, "getting round result: %v", err)
	}

	doc, err := toStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding round result: %v", err)
	}

	return doc, nil
}

func (s *Server) GetAuditRecords(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.ListValue, error) {
	records, err := s.store.GetAuditRecords(ctx, req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "getting audit records: %v", err)
	}

	list, err := toList(records)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding audit records: %v", err)
	}

	return list, nil
}

func (s *Server) GetGlobalState(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	state, err := s.store.GetGlobalState(ctx, req.GetValue())
	if err != nil {
		if errors.Cause(err) == store.ErrNotFound {
			return nil, status.Errorf(codes.NotFound, "global state not found")
		}
		return nil, status.Errorf(codes.Internal, "getting global state: %v", err)
	}

	doc, err := toStruct(state)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding global state: %v", err)
	}

	return doc, nil
}

func (s *Server) newGRPCServer() *grpc.Server {
	srvMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120}),
		),
	)
	if s.registry != nil {
		s.registry.MustRegister(srvMetrics)
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(srvMetrics.UnaryServerInterceptor(), s.roundNumberInterceptor),
	)
	RegisterCoordinatorServiceServer(srv, s)
	reflection.Register(srv)
	srvMetrics.InitializeMetrics(srv)

	return srv
}

// Start serves gRPC and, when an HTTP address is configured, the JSON gateway that
// proxies to it.
func (s *Server) Start() error {
	s.grpcServer = s.newGRPCServer()

	lis, err := net.Listen("tcp", s.listenAddrGRPC)
	if err != nil {
		return errors.Wrap(err, "listening for grpc")
	}

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Errorw("grpc server stopped", "error", err)
		}
	}()

	if s.listenAddrHTTP == "" {
		return nil
	}

	cc, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		),
	)
	if err != nil {
		return errors.Wrap(err, "creating gateway client")
	}

	mux, err := s.newGatewayMux(NewCoordinatorServiceClient(cc))
	if err != nil {
		return errors.Wrap(err, "creating gateway mux")
	}

	s.httpServer = &http.Server{
		Addr:              s.listenAddrHTTP,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("http server stopped", "error", err)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "shutting down http server")
		}
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	return nil
}

package rpc

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// roundNumberInterceptor rejects requests for rounds the coordinator has not reached.
// Results and audit records may exist for the round in progress, global states only
// for processed rounds.
func (s *Server) roundNumberInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	var err error

	request, ok := req.(*wrapperspb.UInt64Value)
	if ok {
		switch info.FullMethod {
		case methodGetGlobalState:
			err = s.checkRoundWithinProcessed(ctx, request.GetValue(), false)
		case methodGetRoundResult, methodGetAuditRecords:
			err = s.checkRoundWithinProcessed(ctx, request.GetValue(), true)
		}
	}

	if err != nil {
		return nil, err
	}

	return handler(ctx, req)
}

func (s *Server) checkRoundWithinProcessed(ctx context.Context, round uint64, allowInProgress bool) error {
	lastProcessedRound, err := s.store.GetLastProcessedRound(ctx)
	if err != nil {
		if errors.Cause(err) == store.ErrNotFound {
			return status.Errorf(codes.FailedPrecondition, "no round processed yet")
		}
		return status.Errorf(codes.Internal, "failed to get last processed round")
	}

	limit := lastProcessedRound
	if allowInProgress {
		limit++
	}

	if round > limit {
		st := status.Newf(codes.FailedPrecondition, "requested round %d is greater than last processed round %d", round, lastProcessedRound)
		st, err = st.WithDetails(wrapperspb.UInt64(lastProcessedRound))
		if err != nil {
			return status.Errorf(codes.Internal, "creating custom status")
		}
		return st.Err()
	}

	return nil
}

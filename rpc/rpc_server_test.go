package rpc

import (
	"context"
	"github.com/cockroachdb/pebble"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/securefed/go-coordinator/processor"
	"github.com/securefed/go-coordinator/store"
	"github.com/securefed/go-coordinator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fixedStatus processor.Status

func (fs fixedStatus) Status() processor.Status { return processor.Status(fs) }

type fixture struct {
	server *Server
	client CoordinatorServiceClient
	result types.RoundResult
	record types.AuditRecord
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	dbDir, err := os.MkdirTemp("", "pebble_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dbDir) })

	db, err := pebble.Open(filepath.Join(dbDir, "testdb"), &pebble.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ps, err := store.NewPebbleStore(db, zap.NewNop())
	require.NoError(t, err)

	state := types.GlobalState{Round: 1, Parameters: types.Parameters{types.NewTensor([]int{2}, []float64{0.75, -1.5})}}
	require.NoError(t, ps.SetGlobalState(ctx, types.GlobalState{Round: 0, Parameters: types.Parameters{types.Zeros(2)}}))
	require.NoError(t, ps.SetGlobalState(ctx, state))

	record, err := ps.AppendAuditRecord(ctx, types.AuditRecord{
		Round: 1, NodeID: "node-m", Fingerprint: "invalid_fake_hash_string_12345",
		Verdict: types.Quarantined, Reason: types.ReasonSentinelFingerprint,
		RecordedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	result := types.RoundResult{
		Round:              1,
		Attempt:            1,
		Status:             types.RoundCompleted,
		NewState:           state,
		ReceivedCount:      3,
		AcceptedCount:      2,
		QuarantinedCount:   1,
		InvitedNodeIDs:     []string{"node-a", "node-b", "node-m"},
		QuarantinedNodeIDs: []string{"node-m"},
		MissingNodeIDs:     []string{},
		ExcludedNodeIDs:    []string{"node-m"},
		UninvitedNodeIDs:   []string{},
		AuditDigest:        "ab",
		Evaluation: &types.EvaluationSummary{
			Loss:             0.5,
			ExampleCount:     30,
			Metrics:          map[string]float64{"accuracy": 0.75},
			EvaluatedNodeIDs: []string{"node-a", "node-b", "node-m"},
			MissingNodeIDs:   []string{},
		},
		StartedAt:          time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:           1500 * time.Millisecond,
	}
	require.NoError(t, ps.SetRoundResult(ctx, result))

	s := NewServer("", "", ps, fixedStatus{Phase: processor.PhaseCompleted, Round: 1, CompletedRounds: 1}, prometheus.NewRegistry(), nil, zap.NewNop())

	lis := bufconn.Listen(1024 * 1024)
	srv := s.newGRPCServer()
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })

	return fixture{server: s, client: NewCoordinatorServiceClient(cc), result: result, record: record}
}

func TestServer_GetRoundResult(t *testing.T) {
	f := newFixture(t)

	doc, err := f.client.GetRoundResult(context.Background(), wrapperspb.UInt64(1))
	require.NoError(t, err)

	var got types.RoundResult
	require.NoError(t, DecodeStruct(doc, &got))
	if diff := cmp.Diff(f.result, got); diff != "" {
		t.Fatalf("round result mismatch (-want +got):\n%s", diff)
	}

	// round two is in progress: allowed, but nothing stored yet
	_, err = f.client.GetRoundResult(context.Background(), wrapperspb.UInt64(2))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = f.client.GetRoundResult(context.Background(), wrapperspb.UInt64(3))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServer_GetAuditRecords(t *testing.T) {
	f := newFixture(t)

	list, err := f.client.GetAuditRecords(context.Background(), wrapperspb.UInt64(1))
	require.NoError(t, err)

	var got []types.AuditRecord
	require.NoError(t, DecodeList(list, &got))
	if diff := cmp.Diff([]types.AuditRecord{f.record}, got); diff != "" {
		t.Fatalf("audit records mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_GetGlobalState(t *testing.T) {
	f := newFixture(t)

	doc, err := f.client.GetGlobalState(context.Background(), wrapperspb.UInt64(1))
	require.NoError(t, err)

	var got types.GlobalState
	require.NoError(t, DecodeStruct(doc, &got))
	if diff := cmp.Diff(f.result.NewState, got); diff != "" {
		t.Fatalf("global state mismatch (-want +got):\n%s", diff)
	}

	_, err = f.client.GetGlobalState(context.Background(), wrapperspb.UInt64(2))
	st := status.Convert(err)
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Len(t, st.Details(), 1)
	last, ok := st.Details()[0].(*wrapperspb.UInt64Value)
	require.True(t, ok)
	require.Equal(t, uint64(1), last.GetValue())
}

func TestServer_GetStatus(t *testing.T) {
	f := newFixture(t)

	doc, err := f.client.GetStatus(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	assert.Equal(t, float64(1), doc.GetFields()["lastProcessedRound"].GetNumberValue())
	assert.Equal(t, "Completed", doc.GetFields()["phase"].GetStringValue())
	assert.Equal(t, float64(1), doc.GetFields()["completedRounds"].GetNumberValue())
}

func TestGateway(t *testing.T) {
	f := newFixture(t)
	f.server.events = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"writesStalled":false}`))
	}

	mux, err := f.server.newGatewayMux(f.client)
	require.NoError(t, err)

	cases := []struct {
		path     string
		code     int
		contains string
	}{
		{path: "/v1/status", code: http.StatusOK, contains: "Completed"},
		{path: "/v1/rounds/1", code: http.StatusOK, contains: "acceptedCount"},
		{path: "/v1/rounds/1/audit", code: http.StatusOK, contains: "Quarantined"},
		{path: "/v1/state/1", code: http.StatusOK, contains: "-1.5"},
		{path: "/v1/state/5", code: http.StatusBadRequest},
		{path: "/v1/rounds/abc", code: http.StatusBadRequest},
		{path: "/v1/store/events", code: http.StatusOK, contains: "writesStalled"},
		{path: "/metrics", code: http.StatusOK, contains: "grpc_server_handled_total"},
	}

	// protojson output is not byte stable, so only look for values
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			if tc.contains != "" {
				require.Contains(t, rec.Body.String(), tc.contains)
			}
		})
	}
}

package rpc

import (
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"net/http"
	"strconv"
)

type route struct {
	path    string
	handler runtime.HandlerFunc
}

// newGatewayMux exposes the coordinator service as JSON over HTTP. Every call goes
// through client, so the gRPC interceptors apply to HTTP requests as well.
func (s *Server) newGatewayMux(client CoordinatorServiceClient) (*runtime.ServeMux, error) {
	marshaler := &runtime.JSONPb{
		MarshalOptions: protojson.MarshalOptions{EmitDefaultValues: true, EmitUnpopulated: false},
	}
	mux := runtime.NewServeMux(runtime.WithMarshalerOption(runtime.MIMEWildcard, marshaler))

	respond := func(w http.ResponseWriter, r *http.Request, msg proto.Message, err error) {
		if err != nil {
			runtime.HTTPError(r.Context(), mux, marshaler, w, r, err)
			return
		}

		data, err := marshaler.Marshal(msg)
		if err != nil {
			runtime.HTTPError(r.Context(), mux, marshaler, w, r, status.Errorf(codes.Internal, "marshalling response: %v", err))
			return
		}

		w.Header().Set("Content-Type", marshaler.ContentType(msg))
		if _, err := w.Write(data); err != nil {
			s.logger.Errorw("writing response", "path", r.URL.Path, "error", err)
		}
	}

	roundParam := func(params map[string]string) (*wrapperspb.UInt64Value, error) {
		round, err := strconv.ParseUint(params["round"], 10, 64)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid round %q", params["round"])
		}
		return wrapperspb.UInt64(round), nil
	}

	routes := []route{
		{path: "/v1/status", handler: func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := client.GetStatus(r.Context(), &emptypb.Empty{})
			respond(w, r, resp, err)
		}},
		{path: "/v1/rounds/{round}", handler: func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			req, err := roundParam(params)
			if err != nil {
				respond(w, r, nil, err)
				return
			}
			resp, err := client.GetRoundResult(r.Context(), req)
			respond(w, r, resp, err)
		}},
		{path: "/v1/rounds/{round}/audit", handler: func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			req, err := roundParam(params)
			if err != nil {
				respond(w, r, nil, err)
				return
			}
			resp, err := client.GetAuditRecords(r.Context(), req)
			respond(w, r, resp, err)
		}},
		{path: "/v1/state/{round}", handler: func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			req, err := roundParam(params)
			if err != nil {
				respond(w, r, nil, err)
				return
			}
			resp, err := client.GetGlobalState(r.Context(), req)
			respond(w, r, resp, err)
		}},
	}

	if s.registry != nil {
		metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
		routes = append(routes, route{path: "/metrics", handler: func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metricsHandler.ServeHTTP(w, r)
		}})
	}

	if s.events != nil {
		routes = append(routes, route{path: "/v1/store/events", handler: func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			s.events(w, r)
		}})
	}

	for _, rt := range routes {
		if err := mux.HandlePath(http.MethodGet, rt.path, rt.handler); err != nil {
			return nil, errors.Wrapf(err, "registering %s", rt.path)
		}
	}

	return mux, nil
}

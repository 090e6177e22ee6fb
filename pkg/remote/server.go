// Copyright 2026 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote exports a DeviceSource over gRPC and provides the
// client side DeviceSource that lists the devices of a remote host.
package remote

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

const (
	serviceName       = "opae.remote.v1.Enumeration"
	listDevicesMethod = "/" + serviceName + "/ListDevices"
)

// EnumerationServer is the server API of the Enumeration service.
type EnumerationServer interface {
	ListDevices(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func listDevicesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(EnumerationServer).ListDevices(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: listDevicesMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EnumerationServer).ListDevices(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

var enumerationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EnumerationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListDevices",
			Handler:    listDevicesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "opae/remote/v1/enumeration.proto",
}

// RegisterEnumerationServer registers srv with s.
func RegisterEnumerationServer(s grpc.ServiceRegistrar, srv EnumerationServer) {
	s.RegisterService(&enumerationServiceDesc, srv)
}

// Metrics counts the requests served.
type Metrics struct {
	requests *prometheus.CounterVec
	records  prometheus.Counter
}

// NewMetrics creates the server metrics and registers them with reg, if
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opae",
			Subsystem: "remote",
			Name:      "list_devices_total",
			Help:      "ListDevices requests by result.",
		}, []string{"result"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opae",
			Subsystem: "remote",
			Name:      "records_served_total",
			Help:      "Device records sent to clients.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.records)
	}

	return m
}

// Server exports a DeviceSource. Remote ids are the serials the registry
// assigns to each location, so they stay stable for the server's life.
type Server struct {
	source   opae.DeviceSource
	registry *opae.Registry
	host     string
	metrics  *Metrics
}

var _ EnumerationServer = (*Server)(nil)

// NewServer returns a server listing the devices of source under the
// given host name. registry may be shared with a local Enumerator.
func NewServer(source opae.DeviceSource, registry *opae.Registry, host string, metrics *Metrics) *Server {
	if registry == nil {
		registry = opae.NewRegistry()
	}

	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Server{
		source:   source,
		registry: registry,
		host:     host,
		metrics:  metrics,
	}
}

// remoteID returns the registry serial of the record's location.
func (s *Server) remoteID(rec *opae.AttributeRecord) (uint64, error) {
	t, err := s.registry.RegisterOrGet(rec.Identity())
	if err != nil {
		return 0, err
	}

	defer t.Destroy()

	return t.Serial(), nil
}

// ListDevices discovers the devices of the exported source.
func (s *Server) ListDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	resp, err := s.listDevices(ctx)
	result := opae.ResultOf(err)

	s.metrics.requests.WithLabelValues(result.Error()).Inc()

	if err != nil {
		klog.Warningf("ListDevices failed: %v", err)
		return nil, status.Error(codeOf(result), err.Error())
	}

	return resp, nil
}

func (s *Server) listDevices(ctx context.Context) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, errors.Wrap(opae.NoDriver, "no device source configured")
	}

	records, err := s.source.Discover(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[*opae.AttributeRecord]uint64, len(records))
	devices := make([]any, 0, len(records))

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			klog.V(2).Infof("Not exporting malformed record: %v", err)
			continue
		}

		id, err := s.remoteID(rec)
		if err != nil {
			klog.V(2).Infof("Not exporting %s: %v", rec.Location, err)
			continue
		}

		ids[rec] = id

		parentID := uint64(0)

		if rec.Parent != nil {
			if parentID = ids[rec.Parent]; parentID == 0 {
				klog.V(2).Infof("Not exporting %s: parent %s not exported", rec.Location, rec.Parent.Location)
				continue
			}
		}

		entry, err := encodeRecord(rec, id, parentID)
		if err != nil {
			return nil, err
		}

		devices = append(devices, entry.AsMap())
	}

	resp, err := structpb.NewStruct(map[string]any{
		keyHost:    s.host,
		keyDevices: devices,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	s.metrics.records.Add(float64(len(devices)))
	klog.V(4).Infof("Exported %d records", len(devices))

	return resp, nil
}

var resultCodes = map[opae.Result]codes.Code{
	opae.InvalidParam: codes.InvalidArgument,
	opae.Busy:         codes.ResourceExhausted,
	opae.NotFound:     codes.NotFound,
	opae.NoMemory:     codes.ResourceExhausted,
	opae.NotSupported: codes.Unimplemented,
	opae.NoDriver:     codes.FailedPrecondition,
	opae.NoAccess:     codes.PermissionDenied,
}

func codeOf(r opae.Result) codes.Code {
	if c, ok := resultCodes[r]; ok {
		return c
	}

	return codes.Internal
}

// resultOf maps a gRPC error back to a result code. A server that can't
// be reached is NoDaemon.
func resultOf(err error) opae.Result {
	switch c := status.Code(err); c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return opae.NoDaemon
	case codes.FailedPrecondition:
		return opae.NoDriver
	case codes.PermissionDenied:
		return opae.NoAccess
	case codes.NotFound:
		return opae.NotFound
	case codes.InvalidArgument:
		return opae.InvalidParam
	case codes.Unimplemented:
		return opae.NotSupported
	case codes.ResourceExhausted:
		return opae.Busy
	}

	return opae.Exception
}

// Package grpc exposes a Governor over gRPC. Messages are protobuf well-known types, so
// the service needs no generated code: scalars travel as wrappers and structured values
// as google.protobuf.Struct.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "governor.v1.Governor"

const (
	methodOnUnitComplete    = "/" + ServiceName + "/OnUnitComplete"
	methodBeforeLargeOutput = "/" + ServiceName + "/BeforeLargeOutput"
	methodCheckpoint        = "/" + ServiceName + "/Checkpoint"
	methodUpdateContinuity  = "/" + ServiceName + "/UpdateContinuity"
	methodStatus            = "/" + ServiceName + "/Status"
	methodReset             = "/" + ServiceName + "/Reset"
	methodReadLatest        = "/" + ServiceName + "/ReadLatest"
	methodShutdown          = "/" + ServiceName + "/Shutdown"
)

// GovernorServer is the server API for the governor.v1.Governor service.
type GovernorServer interface {
	OnUnitComplete(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	BeforeLargeOutput(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	Checkpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateContinuity(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ReadLatest(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Shutdown(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

func RegisterGovernorServer(s grpc.ServiceRegistrar, srv GovernorServer) {
	s.RegisterService(&governorServiceDesc, srv)
}

// unaryHandler adapts one typed server method to the grpc.MethodDesc handler shape.
func unaryHandler[Req any, Resp any](fullMethod string, newReq func() *Req, call func(GovernorServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GovernorServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GovernorServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newInt64() *wrapperspb.Int64Value   { return &wrapperspb.Int64Value{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newStruct() *structpb.Struct        { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }

var governorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GovernorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "OnUnitComplete",
			Handler:    unaryHandler(methodOnUnitComplete, newInt64, GovernorServer.OnUnitComplete),
		},
		{
			MethodName: "BeforeLargeOutput",
			Handler:    unaryHandler(methodBeforeLargeOutput, newInt64, GovernorServer.BeforeLargeOutput),
		},
		{
			MethodName: "Checkpoint",
			Handler:    unaryHandler(methodCheckpoint, newStruct, GovernorServer.Checkpoint),
		},
		{
			MethodName: "UpdateContinuity",
			Handler:    unaryHandler(methodUpdateContinuity, newStruct, GovernorServer.UpdateContinuity),
		},
		{
			MethodName: "Status",
			Handler:    unaryHandler(methodStatus, newEmpty, GovernorServer.Status),
		},
		{
			MethodName: "Reset",
			Handler:    unaryHandler(methodReset, newEmpty, GovernorServer.Reset),
		},
		{
			MethodName: "ReadLatest",
			Handler:    unaryHandler(methodReadLatest, newString, GovernorServer.ReadLatest),
		},
		{
			MethodName: "Shutdown",
			Handler:    unaryHandler(methodShutdown, newEmpty, GovernorServer.Shutdown),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "governor/v1/governor.proto",
}

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * pricekeeper.v1.PricingAPI carries google.protobuf.Struct on the wire in
 * both directions. The descriptor below is what protoc-gen-go-grpc would
 * emit for
 *
 *   service PricingAPI {
 *     rpc EvaluatePrice(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc SelectBuybox(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc TransitionRule(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc DetectConflicts(google.protobuf.Struct) returns (google.protobuf.Struct);
 *   }
 *
 * Struct payloads are decoded into typed requests by codec.go.
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pricekeeper.v1.PricingAPI"

// Full method names, as seen by interceptors.
const (
	MethodEvaluatePrice   = "/" + ServiceName + "/EvaluatePrice"
	MethodSelectBuybox    = "/" + ServiceName + "/SelectBuybox"
	MethodTransitionRule  = "/" + ServiceName + "/TransitionRule"
	MethodDetectConflicts = "/" + ServiceName + "/DetectConflicts"
)

// PricingAPIServer is the server API for the PricingAPI service.
type PricingAPIServer interface {
	EvaluatePrice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectBuybox(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetectConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPricingAPIServer registers srv on s.
func RegisterPricingAPIServer(s grpc.ServiceRegistrar, srv PricingAPIServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(fullMethod string, call func(PricingAPIServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PricingAPIServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PricingAPIServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is the grpc.ServiceDesc for the PricingAPI service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PricingAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EvaluatePrice",
			Handler:    unaryHandler(MethodEvaluatePrice, PricingAPIServer.EvaluatePrice),
		},
		{
			MethodName: "SelectBuybox",
			Handler:    unaryHandler(MethodSelectBuybox, PricingAPIServer.SelectBuybox),
		},
		{
			MethodName: "TransitionRule",
			Handler:    unaryHandler(MethodTransitionRule, PricingAPIServer.TransitionRule),
		},
		{
			MethodName: "DetectConflicts",
			Handler:    unaryHandler(MethodDetectConflicts, PricingAPIServer.DetectConflicts),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pricekeeper/v1/pricing_api.proto",
}

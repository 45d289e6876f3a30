package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DistributionServiceServer is the server API for DistributionService.
type DistributionServiceServer interface {
	DistributeOrder(context.Context, *DistributeOrderRequest) (*DistributeOrderResponse, error)
}

// UnimplementedDistributionServiceServer may be embedded for forward
// compatibility with additional methods added to the service later.
type UnimplementedDistributionServiceServer struct{}

func (UnimplementedDistributionServiceServer) DistributeOrder(context.Context, *DistributeOrderRequest) (*DistributeOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DistributeOrder not implemented")
}

// RegisterDistributionServiceServer registers srv with s the same way a
// protoc-gen-go-grpc-generated Register function would.
func RegisterDistributionServiceServer(s grpc.ServiceRegistrar, srv DistributionServiceServer) {
	s.RegisterService(&DistributionService_ServiceDesc, srv)
}

func _DistributionService_DistributeOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DistributeOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DistributionServiceServer).DistributeOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/distribution.v1.DistributionService/DistributeOrder",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DistributionServiceServer).DistributeOrder(ctx, req.(*DistributeOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// DistributionService_ServiceDesc is the grpc.ServiceDesc for
// DistributionService; it plays the role a protoc-gen-go-grpc _grpc.pb.go
// file would generate from the .proto in this directory.
var DistributionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "distribution.v1.DistributionService",
	HandlerType: (*DistributionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DistributeOrder",
			Handler:    _DistributionService_DistributeOrder_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "distribution/v1/distribution_service.proto",
}

// DistributionServiceClient is the client API for DistributionService.
type DistributionServiceClient interface {
	DistributeOrder(ctx context.Context, in *DistributeOrderRequest, opts ...grpc.CallOption) (*DistributeOrderResponse, error)
}

type distributionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDistributionServiceClient constructs a client bound to cc, defaulting
// every call to the JSON content-subtype registered in codec.go.
func NewDistributionServiceClient(cc grpc.ClientConnInterface) DistributionServiceClient {
	return &distributionServiceClient{cc: cc}
}

func (c *distributionServiceClient) DistributeOrder(ctx context.Context, in *DistributeOrderRequest, opts ...grpc.CallOption) (*DistributeOrderResponse, error) {
	out := new(DistributeOrderResponse)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/distribution.v1.DistributionService/DistributeOrder", in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

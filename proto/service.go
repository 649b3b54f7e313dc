package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "autoalloc.AutoAlloc"

// AutoAllocServer is the server API for the AutoAlloc service.
// Implementations must embed UnimplementedAutoAllocServer for forward compatibility.
type AutoAllocServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	AddQueue(context.Context, *AddQueueRequest) (*AddQueueResponse, error)
	ListQueues(context.Context, *ListQueuesRequest) (*ListQueuesResponse, error)
	GetAllocations(context.Context, *GetAllocationsRequest) (*GetAllocationsResponse, error)
	GetEvents(context.Context, *GetEventsRequest) (*GetEventsResponse, error)
	RemoveQueue(context.Context, *RemoveQueueRequest) (*RemoveQueueResponse, error)
	SetWorkload(context.Context, *SetWorkloadRequest) (*SetWorkloadResponse, error)
	StopServer(context.Context, *StopServerRequest) (*StopServerResponse, error)
	mustEmbedUnimplementedAutoAllocServer()
}

type UnimplementedAutoAllocServer struct{}

func (UnimplementedAutoAllocServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedAutoAllocServer) AddQueue(context.Context, *AddQueueRequest) (*AddQueueResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddQueue not implemented")
}
func (UnimplementedAutoAllocServer) ListQueues(context.Context, *ListQueuesRequest) (*ListQueuesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListQueues not implemented")
}
func (UnimplementedAutoAllocServer) GetAllocations(context.Context, *GetAllocationsRequest) (*GetAllocationsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAllocations not implemented")
}
func (UnimplementedAutoAllocServer) GetEvents(context.Context, *GetEventsRequest) (*GetEventsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetEvents not implemented")
}
func (UnimplementedAutoAllocServer) RemoveQueue(context.Context, *RemoveQueueRequest) (*RemoveQueueResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveQueue not implemented")
}
func (UnimplementedAutoAllocServer) SetWorkload(context.Context, *SetWorkloadRequest) (*SetWorkloadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetWorkload not implemented")
}
func (UnimplementedAutoAllocServer) StopServer(context.Context, *StopServerRequest) (*StopServerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StopServer not implemented")
}
func (UnimplementedAutoAllocServer) mustEmbedUnimplementedAutoAllocServer() {}

func RegisterAutoAllocServer(s grpc.ServiceRegistrar, srv AutoAllocServer) {
	s.RegisterService(&AutoAlloc_ServiceDesc, srv)
}

// unaryMethod builds the descriptor of a unary method, decoding the request into a new Req.
func unaryMethod[Req any, Resp any](name string, call func(AutoAllocServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AutoAllocServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AutoAllocServer), ctx, req.(*Req))
			})
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

var AutoAlloc_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AutoAllocServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Ping", AutoAllocServer.Ping),
		unaryMethod("AddQueue", AutoAllocServer.AddQueue),
		unaryMethod("ListQueues", AutoAllocServer.ListQueues),
		unaryMethod("GetAllocations", AutoAllocServer.GetAllocations),
		unaryMethod("GetEvents", AutoAllocServer.GetEvents),
		unaryMethod("RemoveQueue", AutoAllocServer.RemoveQueue),
		unaryMethod("SetWorkload", AutoAllocServer.SetWorkload),
		unaryMethod("StopServer", AutoAllocServer.StopServer),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autoalloc.proto",
}

// AutoAllocClient is the client API for the AutoAlloc service.
type AutoAllocClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	AddQueue(ctx context.Context, in *AddQueueRequest, opts ...grpc.CallOption) (*AddQueueResponse, error)
	ListQueues(ctx context.Context, in *ListQueuesRequest, opts ...grpc.CallOption) (*ListQueuesResponse, error)
	GetAllocations(ctx context.Context, in *GetAllocationsRequest, opts ...grpc.CallOption) (*GetAllocationsResponse, error)
	GetEvents(ctx context.Context, in *GetEventsRequest, opts ...grpc.CallOption) (*GetEventsResponse, error)
	RemoveQueue(ctx context.Context, in *RemoveQueueRequest, opts ...grpc.CallOption) (*RemoveQueueResponse, error)
	SetWorkload(ctx context.Context, in *SetWorkloadRequest, opts ...grpc.CallOption) (*SetWorkloadResponse, error)
	StopServer(ctx context.Context, in *StopServerRequest, opts ...grpc.CallOption) (*StopServerResponse, error)
}

type autoAllocClient struct {
	cc grpc.ClientConnInterface
}

func NewAutoAllocClient(cc grpc.ClientConnInterface) AutoAllocClient {
	return &autoAllocClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *autoAllocClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, "Ping", in, opts)
}

func (c *autoAllocClient) AddQueue(ctx context.Context, in *AddQueueRequest, opts ...grpc.CallOption) (*AddQueueResponse, error) {
	return invoke[AddQueueResponse](ctx, c.cc, "AddQueue", in, opts)
}

func (c *autoAllocClient) ListQueues(ctx context.Context, in *ListQueuesRequest, opts ...grpc.CallOption) (*ListQueuesResponse, error) {
	return invoke[ListQueuesResponse](ctx, c.cc, "ListQueues", in, opts)
}

func (c *autoAllocClient) GetAllocations(ctx context.Context, in *GetAllocationsRequest, opts ...grpc.CallOption) (*GetAllocationsResponse, error) {
	return invoke[GetAllocationsResponse](ctx, c.cc, "GetAllocations", in, opts)
}

func (c *autoAllocClient) GetEvents(ctx context.Context, in *GetEventsRequest, opts ...grpc.CallOption) (*GetEventsResponse, error) {
	return invoke[GetEventsResponse](ctx, c.cc, "GetEvents", in, opts)
}

func (c *autoAllocClient) RemoveQueue(ctx context.Context, in *RemoveQueueRequest, opts ...grpc.CallOption) (*RemoveQueueResponse, error) {
	return invoke[RemoveQueueResponse](ctx, c.cc, "RemoveQueue", in, opts)
}

func (c *autoAllocClient) SetWorkload(ctx context.Context, in *SetWorkloadRequest, opts ...grpc.CallOption) (*SetWorkloadResponse, error) {
	return invoke[SetWorkloadResponse](ctx, c.cc, "SetWorkload", in, opts)
}

func (c *autoAllocClient) StopServer(ctx context.Context, in *StopServerRequest, opts ...grpc.CallOption) (*StopServerResponse, error) {
	return invoke[StopServerResponse](ctx, c.cc, "StopServer", in, opts)
}

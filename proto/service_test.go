package proto

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type testServer struct {
	UnimplementedAutoAllocServer

	added *AddQueueRequest
}

func (s *testServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return &PingResponse{Version: "1.0.0", Commit: "abcdef"}, nil
}

func (s *testServer) AddQueue(_ context.Context, in *AddQueueRequest) (*AddQueueResponse, error) {
	s.added = in
	return &AddQueueResponse{ID: 1}, nil
}

func (s *testServer) GetEvents(_ context.Context, in *GetEventsRequest) (*GetEventsResponse, error) {
	if in.QueueID != 1 {
		return nil, status.Errorf(codes.NotFound, "allocation queue not found: %d", in.QueueID)
	}
	events := make([]*Event, 500)
	for i := range events {
		events[i] = &Event{Time: timestamppb.Now(), Kind: "Allocation queued", Message: strings.Repeat("x", 100)}
	}
	return &GetEventsResponse{Events: events}, nil
}

func newTestClient(t *testing.T, server AutoAllocServer, interceptors ...grpc.UnaryServerInterceptor) AutoAllocClient {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterAutoAllocServer(s, server)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewAutoAllocClient(conn)
}

func TestServiceRoundTrip(t *testing.T) {
	server := &testServer{}
	client := newTestClient(t, server)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ping, err := client.Ping(ctx, &PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", ping.Version)

	added, err := client.AddQueue(ctx, &AddQueueRequest{Queue: &QueueDescriptor{
		Backend:         "pbs",
		Backlog:         2,
		WorkersPerAlloc: 1,
		TimeLimit:       durationpb.New(3 * time.Minute),
		AdditionalArgs:  []string{"--foo=bar"},
	}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), added.ID)

	require.NotNil(t, server.added)
	assert.Equal(t, 3*time.Minute, server.added.Queue.TimeLimit.AsDuration())
	assert.Equal(t, []string{"--foo=bar"}, server.added.Queue.AdditionalArgs)
}

func TestServiceCompressedResponses(t *testing.T) {
	client := newTestClient(t, &testServer{})

	events, err := client.GetEvents(context.Background(), &GetEventsRequest{QueueID: 1}, grpc.UseCompressor(CompressorName))
	require.NoError(t, err)
	assert.Len(t, events.Events, 500)
	assert.NotNil(t, events.Events[0].Time)
}

func TestServiceErrors(t *testing.T) {
	client := newTestClient(t, &testServer{})

	_, err := client.GetEvents(context.Background(), &GetEventsRequest{QueueID: 2})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.StopServer(context.Background(), &StopServerRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestServiceInterceptors(t *testing.T) {
	var methods []string
	client := newTestClient(t, &testServer{}, func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		methods = append(methods, info.FullMethod)
		return handler(ctx, req)
	})

	_, err := client.Ping(context.Background(), &PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/autoalloc.AutoAlloc/Ping"}, methods)
}

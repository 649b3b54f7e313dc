package main

import (
	"context"
	"errors"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/server/log"
	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type server struct {
	proto.UnimplementedAutoAllocServer

	manager *autoalloc.Manager
	// Nil when pending work is assumed
	pendingTasks *autoalloc.PendingTasksGauge
	// Initiates the shutdown of the whole server
	stop func()
}

func (s *server) Ping(ctx context.Context, in *proto.PingRequest) (*proto.PingResponse, error) {
	current := currentServerStatus()
	if s.pendingTasks != nil {
		current.PendingTasks = lo.ToPtr(uint32(s.pendingTasks.PendingTasks()))
	}

	return &proto.PingResponse{
		Version: version,
		Commit:  commit,
		Status:  current,
	}, nil
}

func (s *server) StopServer(ctx context.Context, in *proto.StopServerRequest) (*proto.StopServerResponse, error) {
	log.Info("Stop requested by client")
	s.stop()
	return &proto.StopServerResponse{}, nil
}

// grpcError maps manager errors to the status codes seen by clients.
func grpcError(err error) error {
	switch {
	case errors.Is(err, autoalloc.ErrQueueNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, autoalloc.ErrQueueHasRunningAllocations):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, autoalloc.ErrUnknownBackend):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, autoalloc.ErrShutdown):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

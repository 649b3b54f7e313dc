package main

import (
	"context"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/server/log"
	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func (s *server) AddQueue(ctx context.Context, in *proto.AddQueueRequest) (*proto.AddQueueResponse, error) {
	if in.Queue == nil {
		return nil, status.Error(codes.InvalidArgument, "queue descriptor is required")
	}

	descriptor := autoalloc.QueueDescriptor{
		Backend:         in.Queue.Backend,
		Name:            in.Queue.Name,
		Backlog:         int(in.Queue.Backlog),
		WorkersPerAlloc: int(in.Queue.WorkersPerAlloc),
		TimeLimit:       in.Queue.TimeLimit.AsDuration(),
		AdditionalArgs:  in.Queue.AdditionalArgs,
	}
	if err := descriptor.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	queue, err := s.manager.CreateQueue(descriptor)
	if err != nil {
		return nil, grpcError(err)
	}

	log.Info("Allocation queue added", "queue", queue.ID, "backend", queue.Backend)
	return &proto.AddQueueResponse{ID: uint64(queue.ID)}, nil
}

func (s *server) ListQueues(ctx context.Context, in *proto.ListQueuesRequest) (*proto.ListQueuesResponse, error) {
	queues, err := s.manager.Queues()
	if err != nil {
		return nil, grpcError(err)
	}

	response := &proto.ListQueuesResponse{Queues: make([]*proto.Queue, 0, len(queues))}
	for _, queue := range queues {
		allocations, err := s.manager.Allocations(queue.ID)
		if err != nil {
			// Removed since the queues were listed
			continue
		}

		response.Queues = append(response.Queues, &proto.Queue{
			ID:         uint64(queue.ID),
			Descriptor: queueDescriptorAsProto(queue.QueueDescriptor),
			CreatedAt:  timestamppb.New(queue.CreatedAt),
			ActiveAllocations: uint32(lo.CountBy(allocations, func(a *autoalloc.Allocation) bool {
				return !a.Status.IsTerminal()
			})),
		})
	}
	return response, nil
}

func (s *server) GetAllocations(ctx context.Context, in *proto.GetAllocationsRequest) (*proto.GetAllocationsResponse, error) {
	allocations, err := s.manager.Allocations(autoalloc.QueueID(in.QueueID))
	if err != nil {
		return nil, grpcError(err)
	}

	return &proto.GetAllocationsResponse{
		Allocations: lo.Map(allocations, func(a *autoalloc.Allocation, _ int) *proto.Allocation {
			return allocationAsProto(a)
		}),
	}, nil
}

func (s *server) GetEvents(ctx context.Context, in *proto.GetEventsRequest) (*proto.GetEventsResponse, error) {
	events, err := s.manager.Events(autoalloc.QueueID(in.QueueID))
	if err != nil {
		return nil, grpcError(err)
	}

	return &proto.GetEventsResponse{
		Events: lo.Map(events, func(e *autoalloc.EventRecord, _ int) *proto.Event {
			return &proto.Event{
				Time:    timestamppb.New(e.Time),
				Kind:    e.Kind,
				Message: e.Message,
			}
		}),
	}, nil
}

func (s *server) RemoveQueue(ctx context.Context, in *proto.RemoveQueueRequest) (*proto.RemoveQueueResponse, error) {
	if err := s.manager.RemoveQueue(ctx, autoalloc.QueueID(in.ID), in.Force); err != nil {
		return nil, grpcError(err)
	}

	log.Info("Allocation queue removed", "queue", in.ID, "force", in.Force)
	return &proto.RemoveQueueResponse{}, nil
}

func (s *server) SetWorkload(ctx context.Context, in *proto.SetWorkloadRequest) (*proto.SetWorkloadResponse, error) {
	if s.pendingTasks == nil {
		return nil, status.Error(codes.FailedPrecondition, "the server assumes there is always pending work, restart it with --assume-pending-work=false to report a workload")
	}

	s.pendingTasks.Set(int(in.PendingTasks))
	s.manager.RequestTick()

	log.Debug("Workload updated", "pendingTasks", in.PendingTasks)
	return &proto.SetWorkloadResponse{}, nil
}

func queueDescriptorAsProto(descriptor autoalloc.QueueDescriptor) *proto.QueueDescriptor {
	return &proto.QueueDescriptor{
		Backend:         descriptor.Backend,
		Name:            descriptor.Name,
		Backlog:         uint32(descriptor.Backlog),
		WorkersPerAlloc: uint32(descriptor.WorkersPerAlloc),
		TimeLimit:       durationpb.New(descriptor.TimeLimit),
		AdditionalArgs:  descriptor.AdditionalArgs,
	}
}

func allocationAsProto(allocation *autoalloc.Allocation) *proto.Allocation {
	var exitCode *int32
	if allocation.ExitCode != nil {
		exitCode = lo.ToPtr(int32(*allocation.ExitCode))
	}

	return &proto.Allocation{
		Index:       allocation.Index,
		JobID:       allocation.JobID,
		State:       string(allocation.Status),
		Workers:     uint32(allocation.Workers),
		QueuedAt:    allocation.QueueTime,
		StartedAt:   allocation.StartTime,
		FinishedAt:  allocation.ModifyTime,
		ExitCode:    exitCode,
		WorkDir:     allocation.WorkDir,
		SubmittedAt: timestamppb.New(allocation.SubmittedAt),
	}
}

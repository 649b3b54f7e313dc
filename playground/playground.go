package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/backend/pbs"
	"github.com/gammadia/hqalloc/backend/slurm"
)

// Runs a manager with a single queue against the batch scheduler of the current host,
// printing its events until interrupted. Every allocation is cancelled on exit.
//
//	BACKEND=slurm TIME_LIMIT=10m go run ./playground -- --partition=debug
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	backendID := os.Getenv("BACKEND")
	var backend autoalloc.Backend
	switch backendID {
	case pbs.Name, "":
		backendID = pbs.Name
		backend = pbs.NewLocal(pbs.Config{Logger: logger, WorkerCommand: []string{"sleep", "60"}, CommandRate: 1, CommandBurst: 1})
	case slurm.Name:
		backend = slurm.NewLocal(slurm.Config{Logger: logger, WorkerCommand: []string{"sleep", "60"}, CommandRate: 1, CommandBurst: 1})
	default:
		fmt.Printf("unknown backend '%s'\n", backendID)
		os.Exit(1)
	}

	timeLimit, err := time.ParseDuration(os.Getenv("TIME_LIMIT"))
	if err != nil {
		timeLimit = 5 * time.Minute
	}

	manager, err := autoalloc.New(map[string]autoalloc.Backend{backendID: backend}, autoalloc.AlwaysPending{}, autoalloc.Config{
		Logger:         logger,
		Interval:       5 * time.Second,
		BackendTimeout: 30 * time.Second,
		WorkDir:        os.TempDir(),
	})
	if err != nil {
		fmt.Printf("unable to create manager: %s\n", err)
		os.Exit(1)
	}

	events, unsubscribe := manager.Subscribe()
	defer unsubscribe()
	go manager.Run()

	queue, err := manager.CreateQueue(autoalloc.QueueDescriptor{
		Backend:         backendID,
		Name:            "playground",
		Backlog:         1,
		WorkersPerAlloc: 1,
		TimeLimit:       timeLimit,
		AdditionalArgs:  os.Args[1:],
	})
	if err != nil {
		fmt.Printf("unable to create queue: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		select {
		case event := <-events:
			fmt.Printf("%T %+v\n", event, event)
		case <-ctx.Done():
			log, _ := manager.Events(queue.ID)
			for _, record := range log {
				fmt.Printf("%s  %-30s %s\n", record.Time.Format(time.TimeOnly), record.Kind, record.Message)
			}

			manager.Shutdown()
			manager.Wait()
			return
		}
	}
}

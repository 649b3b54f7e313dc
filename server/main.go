package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/server/config"
	"github.com/gammadia/hqalloc/server/flags"
	"github.com/gammadia/hqalloc/server/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

// Global context for shutdown cascading. When cancel() is called (signal handler or
// StopServer), all goroutines watching ctx.Done() begin their shutdown sequence.
var ctx, cancel = context.WithCancel(context.Background())

// wg tracks the main goroutines: manager, gRPC server and metrics server.
var wg sync.WaitGroup

func main() {
	if err := flags.Bind(flags.NewFlagSet(os.Args[0]), os.Args[1:]); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, err))
		os.Exit(2)
	}

	// Setup logger first as this will be used to report progress of the rest of the setup
	if err := log.Init(os.Stdout); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, err))
		os.Exit(1)
	}
	log.Info("Autoalloc server starting up...", "version", version, "commit", commit)
	serverStatus.StartedAt = timestamppb.Now()

	if err := os.MkdirAll(viper.GetString(flags.WorkDir), 0755); err != nil {
		log.Error("Failed to create work directory", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", viper.GetString(flags.Listen))
	if err != nil {
		log.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	setupInterrupts()

	if err = createManager(); err != nil {
		log.Error("Failed to create manager", "error", err)
		os.Exit(1)
	}

	s := grpc.NewServer(grpc.MaxRecvMsgSize(config.MaxPacketSize))
	proto.RegisterAutoAllocServer(s, &server{
		manager:      manager,
		pendingTasks: pendingTasks,
		stop:         cancel,
	})

	// The manager cancels the allocations of every queue before Wait returns
	wg.Add(1)
	go manager.Run()
	go func() {
		<-ctx.Done()
		manager.Shutdown()
		manager.Wait()
		wg.Done()
	}()

	channel, unsubscribe := manager.Subscribe()
	defer unsubscribe()
	go listenEvents(channel)

	if address := viper.GetString(flags.MetricsListen); address != "" {
		wg.Add(1)
		go serveMetrics(address)
	}

	wg.Add(1)
	go func() {
		go func() {
			<-ctx.Done()
			s.GracefulStop()
		}()

		log.Info("Server listening", "address", lis.Addr())
		if err := s.Serve(lis); err != nil {
			log.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
		wg.Done()
	}()

	wg.Wait()
	log.Info("Shutdown completed. Bye!")
}

func serveMetrics(address string) {
	defer wg.Done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: address, Handler: mux}

	go func() {
		<-ctx.Done()
		if err := metricsServer.Shutdown(context.Background()); err != nil {
			log.Warn("Failed to stop metrics server", "error", err)
		}
	}()

	log.Info("Metrics listening", "address", address)
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Failed to serve metrics", "error", err)
		cancel()
	}
}

// setupInterrupts handles SIGINT and SIGTERM with a double-tap pattern:
// the first signal starts a graceful shutdown, the second one forces an exit.
func setupInterrupts() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info("Shutdown signal received, cancelling allocations")
		cancel()
		<-sig
		log.Warn("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()
}

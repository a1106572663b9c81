package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/rl1809/custody-ledger/internal/adapter/handler"
	"github.com/rl1809/custody-ledger/internal/adapter/messaging"
	"github.com/rl1809/custody-ledger/internal/app"
	"github.com/rl1809/custody-ledger/internal/config"
	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/core/service"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/metrics"
	"github.com/rl1809/custody-ledger/internal/port"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "failed to open backends", "error", err)
		os.Exit(1)
	}

	m := metrics.New("custody")
	events := service.NewEventQueue(cfg.Ledger.EventQueueSize, m)

	var publisher port.EventPublisher = messaging.NewLogPublisher()
	if cfg.Kafka.Enabled {
		publisher = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	opts := append(app.ServiceOptions(cfg.Ledger), service.WithEvents(events), service.WithMetrics(m))
	services := app.NewServices(infra, opts...)

	// Start event workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.Ledger.EventWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, events.Events(), publisher)
		}(i)
	}
	logger.Info(ctx, "started event workers", "count", cfg.Ledger.EventWorkers)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor()))
	handler.RegisterCustodyServer(grpcServer, handler.NewGRPCHandler(services))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error(ctx, "failed to listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info(ctx, "gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error(ctx, "gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(services), m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP shutdown error", "error", err)
	}
	logger.Info(ctx, "HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info(ctx, "gRPC server stopped")

	// No more writers: drain the event queue
	events.Close()
	wg.Wait()
	if err := publisher.Close(); err != nil {
		logger.Error(ctx, "failed to close publisher", "error", err)
	}
	logger.Info(ctx, "event workers stopped")

	if err := infra.Close(); err != nil {
		logger.Error(ctx, "failed to close backends", "error", err)
	}
	logger.Info(ctx, "connections closed")
}

func workerLoop(id int, queue <-chan domain.Event, publisher port.EventPublisher) {
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.Publish(ctx, ev); err != nil {
			logger.Error(ctx, "failed to publish event",
				"worker", id,
				"type", ev.Type,
				"subject_id", ev.SubjectID,
				"error", err,
			)
		}

		cancel()
	}
}

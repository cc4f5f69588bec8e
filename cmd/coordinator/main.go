package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/frozlab/tidelog/internal/config"
	"github.com/frozlab/tidelog/internal/epochstore"
	"github.com/frozlab/tidelog/internal/executor"
	"github.com/frozlab/tidelog/internal/healthmon"
	"github.com/frozlab/tidelog/internal/metrics"
	"github.com/frozlab/tidelog/internal/server"
	"github.com/frozlab/tidelog/internal/zk"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("zk_quorum", cfg.Zookeeper.Quorum),
		zap.String("cluster", cfg.EpochStore.ClusterName))

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Live zookeeper config cell; ops tooling can publish replacements
	// to rebind the epoch store's client on quorum changes.
	zkConfig := config.NewUpdatableZookeeper(&cfg.Zookeeper)

	// Completion executor for epoch store callers
	completionExec := executor.New(&executor.Config{
		Name:   "epoch-store-completions",
		Logger: logger,
	})
	defer completionExec.Stop()

	// Epoch store
	store, err := epochstore.New(
		cfg.EpochStore,
		zkConfig,
		zk.NewFactory(logger),
		completionExec,
		m,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize epoch store", zap.Error(err))
	}
	defer store.Shutdown()

	logger.Info("Epoch store ready", zap.String("identity", store.Identify()))

	// Health monitor on its own serial executor
	monitorExec := executor.New(&executor.Config{
		Name:      "health-monitor",
		QueueSize: cfg.HealthMonitor.QueueSize,
		Logger:    logger,
	})

	monitor := healthmon.New(monitorExec, healthmon.Params{
		SleepPeriod:                   cfg.HealthMonitor.SleepPeriod,
		NumWorkers:                    cfg.HealthMonitor.NumWorkers,
		MaxQueueStallsAvg:             cfg.HealthMonitor.MaxQueueStallsAvg,
		MaxQueueStallDuration:         cfg.HealthMonitor.MaxQueueStallDuration,
		MaxOverloadedWorkerPercentage: cfg.HealthMonitor.MaxOverloadedWorkerPercentage,
		MaxStallsAvg:                  cfg.HealthMonitor.MaxStallsAvg,
		MaxStalledWorkerPercentage:    cfg.HealthMonitor.MaxStalledWorkerPercentage,
	}, m, logger)
	monitor.StartUp()

	// gRPC server exposing the standard health service, driven by the
	// health monitor's node state.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	stopPolling := make(chan struct{})
	go pollNodeState(monitor, healthServer, cfg.HealthMonitor.SleepPeriod, stopPolling)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", addr), zap.Error(err))
	}

	go func() {
		logger.Info("Starting gRPC server", zap.String("addr", addr))
		if err := grpcServer.Serve(listener); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	// Metrics server
	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Port:   cfg.Metrics.Port,
			NodeID: cfg.Server.NodeID,
		}, registry, monitor, logger)
		metricsServer.Start()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	close(stopPolling)
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	// Stop the monitor loop before tearing down its executor.
	select {
	case <-monitor.Shutdown():
	case <-shutdownCtx.Done():
		logger.Warn("Health monitor did not stop within the shutdown timeout")
	}
	monitorExec.Stop()

	logger.Info("Shutdown complete")
}

// pollNodeState mirrors the health monitor's classification into the
// gRPC health service.
func pollNodeState(monitor *healthmon.Monitor, hs *health.Server,
	period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if monitor.NodeState().Serving() {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			} else {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			}
		case <-stop:
			return
		}
	}
}

// initLogger builds the process logger from config.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
	}
	return zapCfg.Build()
}

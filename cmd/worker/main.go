package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskibarqy/transaction-dispatch/internal/app"
	"github.com/riskibarqy/transaction-dispatch/internal/config"
	"github.com/riskibarqy/transaction-dispatch/internal/observability"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel).Named("worker")
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	stopProfiler, err := observability.InitPyroscope(cfg, "worker", logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}
	pprofSrv := observability.StartPprofServer(cfg, logger)

	worker, err := app.NewWorker(cfg, logger)
	if err != nil {
		logger.Error("build worker", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting",
		"topic", cfg.KafkaTopic,
		"group_id", cfg.ConsumerGroupID,
		"max_degree_of_parallelism", cfg.ConsumerMaxDegreeOfParallelism,
	)
	exitCode := 0
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped with error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := observability.StopPprofServer(pprofSrv, logger, 5*time.Second); err != nil {
		logger.Warn("stop pprof server", "error", err)
	}
	if err := stopProfiler(); err != nil {
		logger.Warn("stop pyroscope", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("shutdown uptrace", "error", err)
	}

	logger.Info("worker stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// Command sentry is the orchestration memory and governance daemon: it
// owns one project's ingest queue drain (via a Temporal worker) and
// exposes the Memory Provider / Solution Registry RPC surface over
// HTTP. The Hook Dispatcher itself runs out-of-process, once per
// lifecycle event, via cmd/sentry-hook — this daemon is the
// long-running half of the system.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/antigravity-dev/sentry/internal/api"
	"github.com/antigravity-dev/sentry/internal/config"
	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/health"
	"github.com/antigravity-dev/sentry/internal/memory"
	"github.com/antigravity-dev/sentry/internal/pathresolve"
	"github.com/antigravity-dev/sentry/internal/processor"
	"github.com/antigravity-dev/sentry/internal/queue"
	"github.com/antigravity-dev/sentry/internal/solutions"
	"github.com/antigravity-dev/sentry/internal/temporal"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func buildEmbedClient(cfg config.Embedding) embedclient.Client {
	httpClient := embedclient.NewHTTPClient(cfg.Endpoint, os.Getenv(pathresolve.EnvEmbeddingAPIKey))
	if cfg.Model != "" {
		httpClient.Model = cfg.Model
	}
	if cfg.SingleTimeout.Duration > 0 {
		httpClient.SingleTimeout = cfg.SingleTimeout.Duration
	}
	if cfg.BatchTimeout.Duration > 0 {
		httpClient.BatchTimeout = cfg.BatchTimeout.Duration
	}
	return embedclient.NewCachingClient(httpClient, httpClient.Model)
}

func main() {
	configPath := flag.String("config", "sentry.toml", "path to daemon config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootLogger)
	bootLogger.Info("sentry starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	lockPath := "/tmp/sentry.lock"
	if cfg.General.LockFile != "" {
		lockPath = config.ExpandHome(cfg.General.LockFile)
	}
	lockFile, err := health.AcquireFlock(lockPath)
	if err != nil {
		logger.Error("failed to acquire lock", "path", lockPath, "error", err)
		os.Exit(1)
	}
	defer health.ReleaseFlock(lockFile)

	paths, err := pathresolve.Resolve(nil)
	if err != nil {
		logger.Error("failed to resolve project paths", "error", err)
		os.Exit(1)
	}

	budget := embedclient.NewTokenBudget(cfg.Embedding.DailyTokenCap)
	memStore, err := memory.Open(cfg.Store.DSN, budget)
	if err != nil {
		logger.Error("failed to open memory store", "dsn", cfg.Store.DSN, "error", err)
		os.Exit(1)
	}
	defer memStore.Close()

	solutionRegistry := solutions.New(memStore.DB())
	embedClient := buildEmbedClient(cfg.Embedding)

	q, err := queue.New(paths.IngestQueueDir, cfg.Ingest.MaxAttempts, cfg.Ingest.BackoffBase.Duration, cfg.Ingest.BackoffMax.Duration, cfg.Ingest.NonfatalRegex)
	if err != nil {
		logger.Error("failed to open ingest queue", "dir", paths.IngestQueueDir, "error", err)
		os.Exit(1)
	}
	proc := processor.New(q, memStore, embedClient, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	temporalClient, temporalWorker, err := temporal.StartWorker(cfg.Temporal.HostPort, proc, q)
	if err != nil {
		logger.Error("failed to start temporal worker", "host_port", cfg.Temporal.HostPort, "error", err)
		os.Exit(1)
	}
	defer temporalWorker.Stop()
	defer temporalClient.Close()

	if err := temporal.EnsureDrainSchedule(ctx, temporalClient, cfg.Temporal.CronSpec); err != nil {
		logger.Error("failed to ensure drain schedule", "error", err)
	}

	apiSrv := api.NewServer(cfg, memStore, solutionRegistry, embedClient, logger.With("component", "api"))
	go func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server error", "error", err)
		}
	}()

	logger.Info("sentry running",
		"project_root", paths.ProjectRoot,
		"api_addr", cfg.API.Addr,
		"temporal_task_queue", cfg.Temporal.TaskQueue,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			reloaded, err := config.Load(*configPath)
			if err != nil {
				logger.Error(fmt.Sprintf("config reload failed: %v", err))
				continue
			}
			cfg = reloaded
			logger = configureLogger(cfg.General.LogLevel, *dev)
			slog.SetDefault(logger)
			logger.Info("config reloaded")
		case syscall.SIGINT, syscall.SIGTERM:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			logger.Info("sentry stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		}
	}
}

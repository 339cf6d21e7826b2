// Command sentry-hook is the per-lifecycle-event entrypoint the host
// invokes directly: it reads one JSON event from stdin, runs it
// through the Hook Dispatcher, writes any advisory text to stderr, and
// exits with the dispatcher's verdict code (0 allow, 1 warn, 2 block).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/antigravity-dev/sentry/internal/config"
	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/hooks"
	"github.com/antigravity-dev/sentry/internal/memory"
	"github.com/antigravity-dev/sentry/internal/pathresolve"
	"github.com/antigravity-dev/sentry/internal/processor"
	"github.com/antigravity-dev/sentry/internal/queue"
)

// buildProcessor opens the Memory Provider store and ingest queue for
// one opportunistic Stop-event drain. Any failure here is non-fatal to
// the hook invocation (fail-open): the caller just skips the drain.
func buildProcessor(cfg *config.Config, paths *pathresolve.Paths) (*processor.Processor, func(), error) {
	budget := embedclient.NewTokenBudget(cfg.Embedding.DailyTokenCap)
	store, err := memory.Open(cfg.Store.DSN, budget)
	if err != nil {
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}

	q, err := queue.New(paths.IngestQueueDir, cfg.Ingest.MaxAttempts, cfg.Ingest.BackoffBase.Duration, cfg.Ingest.BackoffMax.Duration, cfg.Ingest.NonfatalRegex)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open ingest queue: %w", err)
	}

	client := embedclient.NewHTTPClient(cfg.Embedding.Endpoint, os.Getenv(pathresolve.EnvEmbeddingAPIKey))
	if cfg.Embedding.Model != "" {
		client.Model = cfg.Embedding.Model
	}
	proc := processor.New(q, store, client, 0)
	return proc, func() { store.Close() }, nil
}

func loadConfig(paths *pathresolve.Paths) *config.Config {
	daemonConfigPath := os.Getenv("SENTRY_CONFIG")
	if daemonConfigPath == "" {
		daemonConfigPath = "/etc/sentry/sentry.toml"
	}

	base, err := config.Load(daemonConfigPath)
	if err != nil {
		base = config.Default()
	}

	projectConfigPath := paths.ProjectRoot + "/.claude/config.json"
	pc, err := config.LoadProjectConfig(projectConfigPath)
	if err != nil {
		return base
	}
	return pc.Merge(base)
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	paths, err := pathresolve.Resolve(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentry-hook: "+err.Error())
		return hooks.ExitAllow
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("read stdin", "error", err)
		return hooks.ExitAllow
	}

	var ev hooks.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Error("parse event", "error", err)
		return hooks.ExitAllow
	}
	if ev.ProjectDir == "" {
		ev.ProjectDir = paths.ProjectRoot
	}

	cfg := loadConfig(paths)
	dispatcher := hooks.New(paths, cfg, logger)

	if ev.EventType == "stop" {
		if proc, closeProc, err := buildProcessor(cfg, paths); err != nil {
			logger.Warn("opportunistic drain unavailable", "error", err)
		} else {
			defer closeProc()
			dispatcher.Processor = proc
		}
	}

	result := dispatcher.Handle(context.Background(), ev)
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	return result.ExitCode
}

func main() {
	os.Exit(run())
}

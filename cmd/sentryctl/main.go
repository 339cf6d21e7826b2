// Command sentryctl is the operational CLI for a running sentry
// installation: queue inspection/draining, checkpoint listing and
// restore, and solution preview, matching the daemon's own flag-based
// style rather than a third-party CLI framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/antigravity-dev/sentry/internal/checkpoint"
	"github.com/antigravity-dev/sentry/internal/config"
	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/memory"
	"github.com/antigravity-dev/sentry/internal/pathresolve"
	"github.com/antigravity-dev/sentry/internal/processor"
	"github.com/antigravity-dev/sentry/internal/queue"
	"github.com/antigravity-dev/sentry/internal/solutions"
)

func usage() {
	fmt.Fprintln(os.Stderr, `sentryctl: operational CLI for a sentry installation

Usage:
  sentryctl queue status
  sentryctl queue drain
  sentryctl checkpoint list
  sentryctl checkpoint restore <id>
  sentryctl solution preview <id> [project_root]

Flags:`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "sentry.toml", "path to daemon config file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}

	paths, err := pathresolve.Resolve(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentryctl: "+err.Error())
		os.Exit(1)
	}

	ctx := context.Background()
	var cmdErr error
	switch args[0] {
	case "queue":
		cmdErr = runQueue(ctx, cfg, paths, args[1:])
	case "checkpoint":
		cmdErr = runCheckpoint(cfg, paths, args[1:])
	case "solution":
		cmdErr = runSolution(ctx, cfg, paths, args[1:])
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, "sentryctl: "+cmdErr.Error())
		os.Exit(1)
	}
}

func openQueue(cfg *config.Config, paths *pathresolve.Paths) (*queue.Queue, error) {
	return queue.New(paths.IngestQueueDir, cfg.Ingest.MaxAttempts, cfg.Ingest.BackoffBase.Duration, cfg.Ingest.BackoffMax.Duration, cfg.Ingest.NonfatalRegex)
}

func runQueue(ctx context.Context, cfg *config.Config, paths *pathresolve.Paths, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sentryctl queue <status|drain>")
	}

	q, err := openQueue(cfg, paths)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}

	switch args[0] {
	case "status":
		pending, err := q.Pending()
		if err != nil {
			return fmt.Errorf("list pending: %w", err)
		}
		dead, err := q.DeadCount()
		if err != nil {
			return fmt.Errorf("count dead letters: %w", err)
		}
		fmt.Printf("pending: %d\ndead: %d\n", len(pending), dead)
		return nil
	case "drain":
		budget := embedclient.NewTokenBudget(cfg.Embedding.DailyTokenCap)
		memStore, err := memory.Open(cfg.Store.DSN, budget)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer memStore.Close()

		httpClient := embedclient.NewHTTPClient(cfg.Embedding.Endpoint, os.Getenv(pathresolve.EnvEmbeddingAPIKey))
		proc := processor.New(q, memStore, httpClient, 0)
		result, err := proc.ProcessOnce(ctx)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		fmt.Printf("processed: %d\nfailed: %d\ndead: %d\n", result.Processed, result.Failed, result.Dead)
		return nil
	default:
		return fmt.Errorf("unknown queue subcommand %q", args[0])
	}
}

func runCheckpoint(cfg *config.Config, paths *pathresolve.Paths, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sentryctl checkpoint <list|restore> [id]")
	}
	mgr := checkpoint.New(paths.ProjectRoot, paths.CheckpointsDir, cfg.Checkpoint.Retention)

	switch args[0] {
	case "list":
		records, err := mgr.List()
		if err != nil {
			return fmt.Errorf("list checkpoints: %w", err)
		}
		for _, r := range records {
			fmt.Printf("%s\t%s\t%s\n", r.ID, r.Trigger, r.StashRef)
		}
		return nil
	case "restore":
		if len(args) < 2 {
			return fmt.Errorf("usage: sentryctl checkpoint restore <id>")
		}
		if err := mgr.Restore(args[1]); err != nil {
			return fmt.Errorf("restore checkpoint %s: %w", args[1], err)
		}
		fmt.Printf("restored checkpoint %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown checkpoint subcommand %q", args[0])
	}
}

func runSolution(ctx context.Context, cfg *config.Config, paths *pathresolve.Paths, args []string) error {
	if len(args) < 1 || args[0] != "preview" {
		return fmt.Errorf("usage: sentryctl solution preview <id> [project_root]")
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: sentryctl solution preview <id> [project_root]")
	}
	id := args[1]
	projectRoot := paths.ProjectRoot
	if len(args) > 2 {
		projectRoot = args[2]
	}

	budget := embedclient.NewTokenBudget(cfg.Embedding.DailyTokenCap)
	memStore, err := memory.Open(cfg.Store.DSN, budget)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer memStore.Close()

	reg := solutions.New(memStore.DB())
	preview, err := reg.PreviewSolution(ctx, id, projectRoot)
	if err != nil {
		return fmt.Errorf("preview solution %s: %w", id, err)
	}

	fmt.Printf("steps:\n")
	for i, step := range preview.Steps {
		fmt.Printf("  %d. %s\n", i+1, step.Description)
	}
	fmt.Printf("checks:\n")
	for _, check := range preview.Checks {
		fmt.Printf("  - %s\n", check.Cmd)
	}
	return nil
}

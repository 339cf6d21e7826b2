package main

import (
	"context"
	"testing"

	"github.com/antigravity-dev/sentry/internal/config"
	"github.com/antigravity-dev/sentry/internal/pathresolve"
)

func TestRunQueueRejectsMissingSubcommand(t *testing.T) {
	if err := runQueue(context.Background(), config.Default(), &pathresolve.Paths{}, nil); err == nil {
		t.Fatal("expected an error for a missing queue subcommand")
	}
}

func TestRunCheckpointRejectsMissingSubcommand(t *testing.T) {
	if err := runCheckpoint(config.Default(), &pathresolve.Paths{}, nil); err == nil {
		t.Fatal("expected an error for a missing checkpoint subcommand")
	}
}

func TestRunCheckpointRestoreRequiresID(t *testing.T) {
	if err := runCheckpoint(config.Default(), &pathresolve.Paths{}, []string{"restore"}); err == nil {
		t.Fatal("expected an error when no checkpoint id is given")
	}
}

func TestRunSolutionRequiresPreviewSubcommand(t *testing.T) {
	if err := runSolution(context.Background(), config.Default(), &pathresolve.Paths{}, []string{"apply"}); err == nil {
		t.Fatal("expected an error for an unsupported solution subcommand")
	}
}

func TestRunSolutionPreviewRequiresID(t *testing.T) {
	if err := runSolution(context.Background(), config.Default(), &pathresolve.Paths{}, []string{"preview"}); err == nil {
		t.Fatal("expected an error when no solution id is given")
	}
}

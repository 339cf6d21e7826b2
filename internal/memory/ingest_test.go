package memory

import (
	"context"
	"testing"

	"github.com/antigravity-dev/sentry/internal/embedclient"
)

func fixedDimClient() *fakeEmbedClient {
	return &fakeEmbedClient{vecFor: func(text string) []float32 {
		return unitVec(embedclient.Dim, len(text))
	}}
}

func TestIngestCreatesChunksAndProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()

	result, err := s.Ingest(ctx, client, "/repo/a", "NOTES.md", "hello world, this is a short note.", IngestOptions{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1", result.Chunks)
	}
	if result.ProjectID == "" {
		t.Error("expected non-empty ProjectID")
	}
}

func TestIngestEmptyTextIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()

	result, err := s.Ingest(ctx, client, "/repo/a", "NOTES.md", "   \n  ", IngestOptions{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Chunks != 0 {
		t.Errorf("Chunks = %d, want 0 for blank text", result.Chunks)
	}
}

func TestIngestDedupesIdenticalContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()

	text := "a decision was made to use sqlite for storage."
	if _, err := s.Ingest(ctx, client, "/repo/a", "NOTES.md", text, IngestOptions{}); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	result, err := s.Ingest(ctx, client, "/repo/a", "NOTES.md", text, IngestOptions{})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if result.Chunks != 0 {
		t.Errorf("Chunks = %d, want 0 on dedupe replay of identical content", result.Chunks)
	}
}

func TestIngestRejectsOverBudget(t *testing.T) {
	s := newTestStore(t)
	s.budget = embedclient.NewTokenBudget(1)
	ctx := context.Background()
	client := fixedDimClient()

	_, err := s.Ingest(ctx, client, "/repo/a", "NOTES.md", "this note has enough words to exceed a one token budget easily.", IngestOptions{})
	if err == nil {
		t.Fatal("expected error when ingest exceeds token budget")
	}
}

func TestInferComponentAndCategory(t *testing.T) {
	if got := inferComponent("internal/memory/store.go"); got != "internal" {
		t.Errorf("inferComponent = %q, want internal", got)
	}
	if got := inferComponent("logs/digests/task-1"); got != "digest" {
		t.Errorf("inferComponent = %q, want digest", got)
	}
	if got := inferCategory("NOTES.md", "## DIGEST — stuff"); got != "decision" {
		t.Errorf("inferCategory = %q, want decision", got)
	}
	if got := inferCategory("main.go", "package main"); got != "code" {
		t.Errorf("inferCategory = %q, want code", got)
	}
}

package memory

import (
	"context"
	"testing"
)

func firstChunkID(t *testing.T, s *Store, projectRoot string) string {
	t.Helper()
	rows, err := s.db.Query(`SELECT c.id FROM chunks c JOIN projects p ON p.id = c.project_id WHERE p.root_path = ? LIMIT 1`, projectRoot)
	if err != nil {
		t.Fatalf("query chunk id: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("no chunk found")
	}
	var id string
	if err := rows.Scan(&id); err != nil {
		t.Fatalf("scan chunk id: %v", err)
	}
	return id
}

func TestRecordFeedbackAndTopHelpful(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()

	if _, err := s.Ingest(ctx, client, "/repo/a", "a.md", "a note worth remembering about the build pipeline.", IngestOptions{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	chunkID := firstChunkID(t, s, "/repo/a")

	if err := s.RecordFeedback(ctx, chunkID, true, "used during review"); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if err := s.RecordFeedback(ctx, chunkID, true, "used again"); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}

	top, err := s.TopHelpfulMemories(ctx, "", 10, 1)
	if err != nil {
		t.Fatalf("TopHelpfulMemories: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("expected 1 helpful memory, got %d", len(top))
	}
	if top[0].HelpfulRatio != 1.0 {
		t.Errorf("HelpfulRatio = %v, want 1.0", top[0].HelpfulRatio)
	}
}

func TestTopHelpfulMemoriesRequiresMinVotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()

	if _, err := s.Ingest(ctx, client, "/repo/a", "a.md", "a note worth remembering about the build pipeline.", IngestOptions{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	chunkID := firstChunkID(t, s, "/repo/a")

	if err := s.RecordFeedback(ctx, chunkID, true, "single vote"); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}

	top, err := s.TopHelpfulMemories(ctx, "", 10, 3)
	if err != nil {
		t.Fatalf("TopHelpfulMemories: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("expected 0 results below minVotes threshold, got %d", len(top))
	}
}

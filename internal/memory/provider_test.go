package memory

import (
	"context"
	"testing"
)

func TestDeleteByPathRemovesChunksAndFTSRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()
	sharedCache.clear()

	if _, err := s.Ingest(ctx, client, "/repo/a", "a.md", "the quokka hopped across the meadow at dawn.", IngestOptions{}); err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	if _, err := s.Ingest(ctx, client, "/repo/a", "b.md", "bananas are a good source of potassium.", IngestOptions{}); err != nil {
		t.Fatalf("Ingest b: %v", err)
	}

	if err := s.DeleteByPath(ctx, "/repo/a", "a.md"); err != nil {
		t.Fatalf("DeleteByPath: %v", err)
	}

	var remaining int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE path = ?`, "a.md").Scan(&remaining); err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected a.md's chunks gone, found %d", remaining)
	}

	var other int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE path = ?`, "b.md").Scan(&other); err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if other == 0 {
		t.Error("expected b.md's chunks to survive deleting a.md")
	}

	resp, err := s.Search(ctx, client, SearchParams{ProjectRoot: "/repo/a", Query: "quokka", K: 5}, defaultWeights, OutcomeBonus{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no search hits for a deleted path, got %d", len(resp.Results))
	}
}

func TestDeleteByPathUnknownProjectIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteByPath(context.Background(), "/repo/never-ingested", "x.md"); err != nil {
		t.Fatalf("DeleteByPath on unknown project: %v", err)
	}
}

func TestReindexRebuildsFTSWithoutReembedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client := fixedDimClient()
	sharedCache.clear()

	if _, err := s.Ingest(ctx, client, "/repo/a", "a.md", "the quokka hopped across the meadow at dawn.", IngestOptions{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var chunkID string
	if err := s.db.QueryRow(`SELECT id FROM chunks WHERE path = ?`, "a.md").Scan(&chunkID); err != nil {
		t.Fatalf("find chunk: %v", err)
	}
	if _, err := s.db.Exec(`DELETE FROM chunks_fts WHERE chunk_id = ?`, chunkID); err != nil {
		t.Fatalf("simulate fts corruption: %v", err)
	}

	resp, err := s.Search(ctx, client, SearchParams{ProjectRoot: "/repo/a", Query: "quokka", K: 5}, defaultWeights, OutcomeBonus{})
	if err != nil {
		t.Fatalf("Search before reindex: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected 0 hits with the fts row missing, got %d", len(resp.Results))
	}

	if err := s.Reindex(ctx, "/repo/a"); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	resp, err = s.Search(ctx, client, SearchParams{ProjectRoot: "/repo/a", Query: "quokka", K: 5}, defaultWeights, OutcomeBonus{})
	if err != nil {
		t.Fatalf("Search after reindex: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected reindex to restore the hit, got %d", len(resp.Results))
	}
}

func TestReindexUnknownProjectIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.Reindex(context.Background(), "/repo/never-ingested"); err != nil {
		t.Fatalf("Reindex on unknown project: %v", err)
	}
}

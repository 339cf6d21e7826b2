package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(dsn, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateProjectIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.GetOrCreateProject(ctx, "/repo/a", "a")
	if err != nil {
		t.Fatalf("GetOrCreateProject: %v", err)
	}
	id2, err := s.GetOrCreateProject(ctx, "/repo/a", "a")
	if err != nil {
		t.Fatalf("GetOrCreateProject (second): %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same project id, got %q and %q", id1, id2)
	}
}

func TestProjectsListsDocCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateProject(ctx, "/repo/a", "a"); err != nil {
		t.Fatalf("GetOrCreateProject: %v", err)
	}

	projects, err := s.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
	if projects[0].DocCount != 0 {
		t.Errorf("DocCount = %d, want 0 for a project with no chunks", projects[0].DocCount)
	}
}

package wsi

import (
	"path/filepath"
	"testing"
)

func TestFileHashCacheObserveIncrementsOnSameSHA(t *testing.T) {
	c := NewFileHashCache(filepath.Join(t.TempDir(), "file_hashes.json"))

	e1, err := c.Observe("src/x.ts", "sha-a", 1)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if e1.ReadCount != 1 {
		t.Fatalf("first observe ReadCount = %d, want 1", e1.ReadCount)
	}

	e2, err := c.Observe("src/x.ts", "sha-a", 3)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if e2.ReadCount != 2 {
		t.Fatalf("second observe ReadCount = %d, want 2", e2.ReadCount)
	}
	if e2.FirstSeenTurn != 1 {
		t.Errorf("FirstSeenTurn should be preserved across same-sha observes, got %d", e2.FirstSeenTurn)
	}
}

func TestFileHashCacheObserveResetsOnSHAChange(t *testing.T) {
	c := NewFileHashCache(filepath.Join(t.TempDir(), "file_hashes.json"))

	c.Observe("src/x.ts", "sha-a", 1)
	c.Observe("src/x.ts", "sha-a", 2)
	e, err := c.Observe("src/x.ts", "sha-b", 3)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if e.ReadCount != 1 {
		t.Fatalf("ReadCount after sha change = %d, want reset to 1", e.ReadCount)
	}
	if e.FirstSeenTurn != 3 {
		t.Errorf("FirstSeenTurn after reset = %d, want 3", e.FirstSeenTurn)
	}
}

func TestFileHashCacheGetMissing(t *testing.T) {
	c := NewFileHashCache(filepath.Join(t.TempDir(), "file_hashes.json"))
	_, ok, err := c.Get("nope.ts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss for untracked path")
	}
}

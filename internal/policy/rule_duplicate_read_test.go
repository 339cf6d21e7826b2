package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/sentry/internal/wsi"
)

func TestDuplicateReadProgressiveBlock(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "x.ts")
	if err := os.WriteFile(target, []byte("const x = 1;"), 0644); err != nil {
		t.Fatal(err)
	}

	rule := &DuplicateReadRule{Hashes: wsi.NewFileHashCache(filepath.Join(dir, "file_hashes.json"))}

	wantVerdicts := []Verdict{Allow, Warn, Warn, Block}
	for i, want := range wantVerdicts {
		ev := Event{ToolName: "Read", ToolInput: map[string]any{"path": target}, TurnCounter: i + 1}
		d, err := rule.Evaluate(ev)
		if err != nil {
			t.Fatalf("Evaluate %d: %v", i, err)
		}
		if d.Verdict != want {
			t.Errorf("read %d: verdict = %v, want %v", i+1, d.Verdict, want)
		}
	}
}

func TestDuplicateReadResetsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "x.ts")
	os.WriteFile(target, []byte("v1"), 0644)

	rule := &DuplicateReadRule{Hashes: wsi.NewFileHashCache(filepath.Join(dir, "file_hashes.json"))}

	rule.Evaluate(Event{ToolName: "Read", ToolInput: map[string]any{"path": target}, TurnCounter: 1})
	rule.Evaluate(Event{ToolName: "Read", ToolInput: map[string]any{"path": target}, TurnCounter: 2})

	os.WriteFile(target, []byte("v2, a different length entirely"), 0644)
	d, err := rule.Evaluate(Event{ToolName: "Read", ToolInput: map[string]any{"path": target}, TurnCounter: 3})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Errorf("expected Allow after content change resets the count, got %v", d.Verdict)
	}
}

func TestDuplicateReadIgnoresOtherTools(t *testing.T) {
	dir := t.TempDir()
	rule := &DuplicateReadRule{Hashes: wsi.NewFileHashCache(filepath.Join(dir, "file_hashes.json"))}
	d, err := rule.Evaluate(Event{ToolName: "Write", ToolInput: map[string]any{"path": "x.ts"}, TurnCounter: 1})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Errorf("non-Read tool should always Allow from R1, got %v", d.Verdict)
	}
}

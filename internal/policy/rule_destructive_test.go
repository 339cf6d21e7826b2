package policy

import (
	"strings"
	"testing"
)

type fakeCheckpointer struct {
	id  string
	err error
}

func (f fakeCheckpointer) Create(trigger string) (string, error) { return f.id, f.err }

func TestDestructiveOpWarnsAndCheckpoints(t *testing.T) {
	r := &DestructiveOpRule{Checkpoint: fakeCheckpointer{id: "ckpt-1"}}
	d, err := r.Evaluate(Event{ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf build/"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Warn {
		t.Fatalf("Verdict = %v, want Warn", d.Verdict)
	}
	if !strings.Contains(d.Message, "ckpt-1") {
		t.Errorf("Message = %q, want checkpoint id surfaced", d.Message)
	}
}

func TestDestructiveOpAllowsSafeCommand(t *testing.T) {
	r := &DestructiveOpRule{}
	d, err := r.Evaluate(Event{ToolName: "Bash", ToolInput: map[string]any{"command": "go test ./..."}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Fatalf("Verdict = %v, want Allow", d.Verdict)
	}
}

func TestDestructiveOpMatchesDropTable(t *testing.T) {
	r := &DestructiveOpRule{}
	d, err := r.Evaluate(Event{ToolName: "Bash", ToolInput: map[string]any{"command": "psql -c 'DROP TABLE users'"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Warn {
		t.Fatalf("Verdict = %v, want Warn for DROP TABLE", d.Verdict)
	}
}

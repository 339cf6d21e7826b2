package policy

import "testing"

func TestRoutingWarnsOnDirectSourceEdit(t *testing.T) {
	r := &RoutingRule{}
	d, err := r.Evaluate(Event{ToolName: "Edit", ToolInput: map[string]any{"path": "src/handler.ts"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Warn {
		t.Fatalf("Verdict = %v, want Warn", d.Verdict)
	}
}

func TestRoutingAllowsDelegatedEdit(t *testing.T) {
	r := &RoutingRule{}
	d, err := r.Evaluate(Event{ToolName: "Edit", ToolInput: map[string]any{"path": "src/handler.ts", "delegated": true}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Fatalf("Verdict = %v, want Allow for delegated edit", d.Verdict)
	}
}

func TestRoutingExemptsSafeDirs(t *testing.T) {
	r := &RoutingRule{}
	d, err := r.Evaluate(Event{ToolName: "Write", ToolInput: map[string]any{"path": ".claude/config.json"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Fatalf("Verdict = %v, want Allow for safe dir", d.Verdict)
	}
}

func TestRoutingExemptsSafeFiles(t *testing.T) {
	r := &RoutingRule{}
	d, err := r.Evaluate(Event{ToolName: "Write", ToolInput: map[string]any{"path": "go.mod"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Fatalf("Verdict = %v, want Allow for single-file config", d.Verdict)
	}
}

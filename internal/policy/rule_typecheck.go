package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TypeChecker runs a configured type checker against a project and
// reports whether it passed. Implemented by internal/sandbox for the
// Docker-isolated runner.
type TypeChecker interface {
	Check(ctx context.Context, projectRoot string, files []string) (ok bool, output string, err error)
}

// TypecheckGateRule is R5: after an edit touches a typed-language source
// file, runs the configured type checker with a hard timeout. A failing
// run blocks further edits to the same project until it's resolved;
// gating state is persisted on disk keyed by project.
type TypecheckGateRule struct {
	Checker     TypeChecker
	StatePath   func(projectRoot string) string
	Timeout     time.Duration
	TypedExts   []string
}

var defaultTypedExtensions = []string{".ts", ".tsx", ".go", ".py"}

type typecheckGateState struct {
	Failing bool   `json:"failing"`
	Output  string `json:"output,omitempty"`
}

func (r *TypecheckGateRule) ID() string    { return "R5" }
func (r *TypecheckGateRule) Priority() int { return 55 }

func (r *TypecheckGateRule) Evaluate(ev Event) (Decision, error) {
	if !routedTools[ev.ToolName] {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	path, _ := ev.ToolInput["path"].(string)
	if !r.isTyped(path) {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	statePath := r.stateFile(ev.ProjectRoot)
	state := r.loadState(statePath)
	if state.Failing {
		return Decision{
			Verdict: Block,
			Rule:    r.ID(),
			Message: fmt.Sprintf("typecheck gate: project has a failing type check; resolve before further edits:\n%s", state.Output),
		}, nil
	}

	if r.Checker == nil {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
	defer cancel()

	ok, output, err := r.Checker.Check(ctx, ev.ProjectRoot, []string{path})
	if err != nil {
		// Checker infrastructure failure: fail open, don't gate on it.
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	if ok {
		r.saveState(statePath, typecheckGateState{Failing: false})
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	r.saveState(statePath, typecheckGateState{Failing: true, Output: output})
	return Decision{
		Verdict: Block,
		Rule:    r.ID(),
		Message: fmt.Sprintf("typecheck gate: %s failed type check:\n%s", path, output),
	}, nil
}

func (r *TypecheckGateRule) isTyped(path string) bool {
	if path == "" {
		return false
	}
	exts := r.TypedExts
	if len(exts) == 0 {
		exts = defaultTypedExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func (r *TypecheckGateRule) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 30 * time.Second
}

func (r *TypecheckGateRule) stateFile(projectRoot string) string {
	if r.StatePath != nil {
		return r.StatePath(projectRoot)
	}
	return filepath.Join(projectRoot, ".claude", "logs", "typecheck_gate.json")
}

func (r *TypecheckGateRule) loadState(path string) typecheckGateState {
	data, err := os.ReadFile(path)
	if err != nil {
		return typecheckGateState{}
	}
	var s typecheckGateState
	json.Unmarshal(data, &s)
	return s
}

func (r *TypecheckGateRule) saveState(path string, s typecheckGateState) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, data, 0644)
}

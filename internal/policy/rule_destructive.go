package policy

import (
	"fmt"
	"regexp"
)

// Checkpointer is the narrow interface R4 and R6 need from the
// Checkpoint Manager — requesting a snapshot before a risky operation.
type Checkpointer interface {
	Create(trigger string) (id string, err error)
}

// DestructiveOpRule is R4: bash commands matching a configured pattern
// list (rm -rf, DROP TABLE, package uninstalls, migration applies)
// request a checkpoint and warn with its id. The pattern list is
// configuration, not hard-coded, per the spec's design note that this
// must not be baked into source.
type DestructiveOpRule struct {
	Checkpoint Checkpointer
	Patterns   []*regexp.Regexp
}

// DefaultDestructivePatterns is the shipped pattern list; projects may
// override it via policy.rules.R4.params.patterns.
var DefaultDestructivePatterns = []string{
	`rm\s+-rf\s`,
	`DROP\s+TABLE`,
	`DELETE\s+FROM\s+\w+\s*;?\s*$`,
	`npm\s+uninstall`,
	`pip\s+uninstall`,
	`go\s+mod\s+tidy\s+-compat`,
	`migrate\s+.*\s+up\b`,
	`migrate\s+.*\s+down\b`,
	`git\s+reset\s+--hard`,
	`git\s+clean\s+-[a-z]*f`,
}

// CompileDestructivePatterns compiles a pattern list (case-insensitive),
// skipping any entry that fails to compile rather than failing the
// whole rule — a malformed configured pattern shouldn't take down
// policy evaluation.
func CompileDestructivePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func (r *DestructiveOpRule) ID() string    { return "R4" }
func (r *DestructiveOpRule) Priority() int { return 60 }

func (r *DestructiveOpRule) Evaluate(ev Event) (Decision, error) {
	if ev.ToolName != "Bash" {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	cmd, _ := ev.ToolInput["command"].(string)
	if cmd == "" {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	patterns := r.Patterns
	if len(patterns) == 0 {
		patterns = CompileDestructivePatterns(DefaultDestructivePatterns)
	}

	matched := false
	for _, re := range patterns {
		if re.MatchString(cmd) {
			matched = true
			break
		}
	}
	if !matched {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	msg := fmt.Sprintf("destructive command detected: %s", ShellEscape(cmd))
	if r.Checkpoint != nil {
		if id, err := r.Checkpoint.Create("destructive_op"); err == nil {
			msg = fmt.Sprintf("%s (checkpoint %s)", msg, id)
		} else {
			msg = fmt.Sprintf("%s (checkpoint failed: %v)", msg, err)
		}
	}

	return Decision{Verdict: Warn, Rule: r.ID(), Message: msg}, nil
}

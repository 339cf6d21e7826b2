package policy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MDSpamRule is R2: blocks Write to an arbitrary new .md file unless it's
// on the allow-list or the event carries an explicit user-request flag.
type MDSpamRule struct {
	AllowList []string // defaults to the spec's fixed allow-list if empty
}

var defaultMDAllowList = []string{
	"FEATURE_MAP.md", "NOTES.md", "COMPACTION.md", "CHANGELOG.md", "README.md", "CLAUDE.md",
}

func (r *MDSpamRule) ID() string    { return "R2" }
func (r *MDSpamRule) Priority() int { return 40 }

func (r *MDSpamRule) Evaluate(ev Event) (Decision, error) {
	if ev.ToolName != "Write" {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	path, _ := ev.ToolInput["path"].(string)
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	if ev.UserRequested {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	allow := r.AllowList
	if len(allow) == 0 {
		allow = defaultMDAllowList
	}
	base := filepath.Base(path)
	for _, a := range allow {
		if strings.EqualFold(a, base) {
			return Decision{Verdict: Allow, Rule: r.ID()}, nil
		}
	}

	return Decision{
		Verdict: Block,
		Rule:    r.ID(),
		Message: fmt.Sprintf("unauthorized .md creation: %s is not on the allow-list", base),
	}, nil
}

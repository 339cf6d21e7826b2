package policy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RoutingRule is R3: warns when the orchestrator itself performs a
// direct edit on project source rather than delegating to a subagent
// role. Safe paths (hook/config/doc directories, single-file configs)
// are exempt.
type RoutingRule struct {
	SourceExtensions []string // defaults to a common set if empty
	SafeDirs         []string // path prefixes exempt from the rule
	SafeFiles        []string // exact basenames exempt from the rule
}

var defaultSourceExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rb", ".java", ".rs", ".c", ".cpp", ".h",
}

var defaultSafeDirs = []string{".claude", ".github", "docs"}
var defaultSafeFiles = []string{"go.mod", "go.sum", "package.json", "tsconfig.json", ".gitignore"}

var routedTools = map[string]bool{"Edit": true, "Write": true, "MultiEdit": true}

func (r *RoutingRule) ID() string    { return "R3" }
func (r *RoutingRule) Priority() int { return 30 }

func (r *RoutingRule) Evaluate(ev Event) (Decision, error) {
	if !routedTools[ev.ToolName] {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	path, _ := ev.ToolInput["path"].(string)
	if path == "" {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	delegated, _ := ev.ToolInput["delegated"].(bool)
	if delegated {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	if r.isSafe(path) {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	exts := r.SourceExtensions
	if len(exts) == 0 {
		exts = defaultSourceExtensions
	}
	for _, e := range exts {
		if ext == e {
			return Decision{
				Verdict: Warn,
				Rule:    r.ID(),
				Message: fmt.Sprintf("direct %s on %s by the orchestrator; prefer delegating to a subagent role", ev.ToolName, path),
			}, nil
		}
	}
	return Decision{Verdict: Allow, Rule: r.ID()}, nil
}

func (r *RoutingRule) isSafe(path string) bool {
	base := filepath.Base(path)
	files := r.SafeFiles
	if len(files) == 0 {
		files = defaultSafeFiles
	}
	for _, f := range files {
		if base == f {
			return true
		}
	}

	dirs := r.SafeDirs
	if len(dirs) == 0 {
		dirs = defaultSafeDirs
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	for _, d := range dirs {
		if cleaned == d || strings.HasPrefix(cleaned, d+"/") {
			return true
		}
	}
	return false
}

// Package pathresolve resolves the project root, log directory, and WSI
// path the dispatcher needs from its injected environment, and supplies a
// monotonic clock for event ordering.
package pathresolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antigravity-dev/sentry/internal/herr"
)

// Env names the environment variables the host injects into every hook
// invocation, per the external-interface contract.
const (
	EnvProjectDir               = "PROJECT_DIR"
	EnvWSIPath                  = "WSI_PATH"
	EnvLogsDir                  = "LOGS_DIR"
	EnvEnableVectorRAG          = "ENABLE_VECTOR_RAG"
	EnvVectorStoreURL           = "VECTOR_STORE_URL"
	EnvEmbeddingAPIKey          = "EMBEDDING_API_KEY"
	EnvStopTailWindowBytes      = "STOP_TAIL_WINDOW_BYTES"
	EnvStopHookMaxTranscript    = "STOP_HOOK_MAX_TRANSCRIPT_BYTES"
	EnvStopTailFastOnly         = "STOP_TAIL_FAST_ONLY"
	EnvStopTimeBudgetMS         = "STOP_TIME_BUDGET_MS"
	EnvWSIMax                   = "WSI_MAX"
	EnvWSITTLTurns              = "WSI_TTL_TURNS"
	EnvIngestMCPTimeoutSec      = "INGEST_MCP_TIMEOUT_SEC"
	EnvIngestNonfatalPattern    = "INGEST_NONFATAL_ERRORS_PATTERN"
	EnvFixpackMaxSuggestions    = "FIXPACK_MAX_SUGGESTIONS"
	EnvFixpackSuggestTimeoutSec = "FIXPACK_SUGGEST_TIMEOUT_SEC"
)

// Paths is the set of resolved, absolute, project-scoped filesystem
// locations a dispatcher invocation operates on.
type Paths struct {
	ProjectRoot    string
	LogsDir        string
	WSIPath        string
	NotesPath      string
	FileHashesPath string
	TurnCounterPath string
	CheckpointsDir string
	IngestQueueDir string
	InflightDir    string
	DeadDir        string
	AutoSetupErrorsLog string
}

// Resolve reads the hook environment and builds the absolute paths a
// dispatcher invocation will read and write. PROJECT_DIR is required;
// every other path is derived from it unless overridden.
func Resolve(getenv func(string) string) (*Paths, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	root := getenv(EnvProjectDir)
	if root == "" {
		return nil, herr.Wrap(herr.ErrConfig, "pathresolve", "resolve", fmt.Errorf("%s is not set", EnvProjectDir))
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, herr.Wrap(herr.ErrConfig, "pathresolve", "resolve", err)
	}

	logsDir := getenv(EnvLogsDir)
	if logsDir == "" {
		logsDir = filepath.Join(root, ".claude", "logs")
	} else if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(root, logsDir)
	}

	wsiPath := getenv(EnvWSIPath)
	if wsiPath == "" {
		wsiPath = filepath.Join(logsDir, "wsi.json")
	} else if !filepath.IsAbs(wsiPath) {
		wsiPath = filepath.Join(root, wsiPath)
	}

	queueDir := filepath.Join(root, ".claude", "ingest-queue")

	return &Paths{
		ProjectRoot:        root,
		LogsDir:            logsDir,
		WSIPath:            wsiPath,
		NotesPath:          filepath.Join(logsDir, "NOTES.md"),
		FileHashesPath:     filepath.Join(logsDir, "file_hashes.json"),
		TurnCounterPath:    filepath.Join(logsDir, "turn_counter.json"),
		CheckpointsDir:     filepath.Join(logsDir, "checkpoints"),
		IngestQueueDir:     queueDir,
		InflightDir:        filepath.Join(queueDir, "inflight"),
		DeadDir:            filepath.Join(queueDir, "dead"),
		AutoSetupErrorsLog: filepath.Join(logsDir, "auto_setup_errors.log"),
	}, nil
}

// EnsureDirs creates every directory Paths references, so downstream
// writers never have to special-case ENOENT on first use.
func (p *Paths) EnsureDirs() error {
	dirs := []string{p.LogsDir, p.CheckpointsDir, p.IngestQueueDir, p.InflightDir, p.DeadDir}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return herr.Wrap(herr.ErrIntegrity, "pathresolve", "ensure dirs", err)
		}
	}
	return nil
}

// NormalizeRel makes path relative to root when it's an absolute path
// inside root, otherwise returns it unchanged (already relative or
// outside the project entirely).
func NormalizeRel(root, path string) string {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return path
	}
	return rel
}

// Clock supplies monotonic-safe timestamps so components never reason
// about wall-clock adjustments mid-event.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NowMillis returns the current time as epoch milliseconds, the unit
// WSI entries and checkpoint records store timestamps in.
func NowMillis(c Clock) int64 {
	if c == nil {
		c = SystemClock{}
	}
	return c.Now().UnixMilli()
}

package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/antigravity-dev/sentry/internal/wsi"
)

// DuplicateReadRule is R1: progressively warns then blocks repeated
// reads of the same unchanged file within a turn window.
type DuplicateReadRule struct {
	Hashes       *wsi.FileHashCache
	WindowTurns  int // default 10
	MaxReadBytes int64
}

const (
	duplicateReadDefaultWindow   = 10
	duplicateReadDefaultMaxBytes = 1 << 20
)

func (r *DuplicateReadRule) ID() string  { return "R1" }
func (r *DuplicateReadRule) Priority() int { return 50 }

func (r *DuplicateReadRule) Evaluate(ev Event) (Decision, error) {
	if ev.ToolName != "Read" {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	path, _ := ev.ToolInput["path"].(string)
	if path == "" {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	sha, err := hashFilePrefix(path, r.maxBytes())
	if err != nil {
		// Unreadable file: nothing to gate on, allow silently.
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	prev, ok, err := r.Hashes.Get(path)
	if err != nil {
		return Decision{}, err
	}

	window := r.WindowTurns
	if window <= 0 {
		window = duplicateReadDefaultWindow
	}

	withinWindow := ok && prev.SHA256 == sha && ev.TurnCounter-prev.LastSeenTurn <= window

	entry, err := r.Hashes.Observe(path, sha, ev.TurnCounter)
	if err != nil {
		return Decision{}, err
	}

	if !withinWindow {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	switch {
	case entry.ReadCount == 1:
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	case entry.ReadCount == 2:
		return Decision{Verdict: Warn, Rule: r.ID(), Message: "duplicate read; will block after 2 more"}, nil
	case entry.ReadCount == 3:
		return Decision{Verdict: Warn, Rule: r.ID(), Message: "duplicate read; will block after 1 more"}, nil
	default:
		return Decision{Verdict: Block, Rule: r.ID(), Message: "duplicate read within 10 turns; use Grep or read with offset/limit"}, nil
	}
}

func (r *DuplicateReadRule) maxBytes() int64 {
	if r.MaxReadBytes > 0 {
		return r.MaxReadBytes
	}
	return duplicateReadDefaultMaxBytes
}

func hashFilePrefix(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("policy: hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, maxBytes); err != nil && err != io.EOF {
		return "", fmt.Errorf("policy: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Package digest validates DIGEST JSON blocks captured from subagent
// output, appends their human-readable form to NOTES.md, and builds
// the corresponding ingest job and WSI touches.
package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity-dev/sentry/internal/herr"
	"github.com/antigravity-dev/sentry/internal/queue"
)

// FileRef is one file entry in a DIGEST.
type FileRef struct {
	Path    string   `json:"path"`
	Reason  string   `json:"reason"`
	Anchors []Anchor `json:"anchors,omitempty"`
}

// Anchor locates a region within a file, by line range or symbol name.
type Anchor struct {
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// Digest is a structured session summary emitted by a subagent.
type Digest struct {
	Agent     string            `json:"agent"`
	TaskID    string            `json:"task_id"`
	Decisions []string          `json:"decisions"`
	Files     []FileRef         `json:"files"`
	Contracts []string          `json:"contracts"`
	Next      []string          `json:"next"`
	Evidence  map[string]string `json:"evidence"`

	// Extra preserves fields outside the required shape verbatim into
	// ingest metadata.
	Extra map[string]json.RawMessage `json:"-"`
}

// Parse decodes raw into a Digest, validating that agent and task_id
// are non-empty and defaulting absent list fields to empty. Extra
// fields are captured for verbatim ingest-metadata preservation.
func Parse(raw json.RawMessage) (Digest, error) {
	var d Digest
	if err := json.Unmarshal(raw, &d); err != nil {
		return Digest{}, herr.Wrap(herr.ErrValidation, "digest", "unmarshal", err)
	}
	if d.Agent == "" || d.TaskID == "" {
		return Digest{}, herr.Wrap(herr.ErrValidation, "digest", "validate", fmt.Errorf("agent and task_id are required"))
	}
	if d.Decisions == nil {
		d.Decisions = []string{}
	}
	if d.Files == nil {
		d.Files = []FileRef{}
	}
	if d.Contracts == nil {
		d.Contracts = []string{}
	}
	if d.Next == nil {
		d.Next = []string{}
	}
	if d.Evidence == nil {
		d.Evidence = map[string]string{}
	}

	var known map[string]json.RawMessage
	if err := json.Unmarshal(raw, &known); err == nil {
		required := map[string]bool{
			"agent": true, "task_id": true, "decisions": true,
			"files": true, "contracts": true, "next": true, "evidence": true,
		}
		extra := map[string]json.RawMessage{}
		for k, v := range known {
			if !required[k] {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			d.Extra = extra
		}
	}
	return d, nil
}

// Markdown formats d per the NOTES.md block grammar.
func Markdown(d Digest, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## DIGEST — %s — agent=%s — task=%s\n", at.UTC().Format(time.RFC3339), d.Agent, d.TaskID)

	b.WriteString("### Decisions\n")
	for _, v := range d.Decisions {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("### Files\n")
	for _, f := range d.Files {
		fmt.Fprintf(&b, "- %s — %s\n", f.Path, f.Reason)
	}
	b.WriteString("### Contracts\n")
	for _, v := range d.Contracts {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("### Next\n")
	for _, v := range d.Next {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("### Evidence\n")
	for _, k := range sortedKeys(d.Evidence) {
		fmt.Fprintf(&b, "- %s: %s\n", k, d.Evidence[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const notesBanner = "# NOTES\n\nAppend-only digest log. Do not edit entries in place.\n\n"

// AppendNotes atomically appends md to NOTES.md at path, creating the
// file with a banner if it does not yet exist.
func AppendNotes(path, md string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return herr.Wrap(herr.ErrIntegrity, "digest", "read notes", err)
	}

	var out strings.Builder
	if len(existing) == 0 {
		out.WriteString(notesBanner)
	} else {
		out.Write(existing)
		if !strings.HasSuffix(string(existing), "\n") {
			out.WriteByte('\n')
		}
		out.WriteByte('\n')
	}
	out.WriteString(md)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "digest", "mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".notes-*.tmp")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "digest", "create temp", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(out.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "digest", "write temp", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "digest", "close temp", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "digest", "rename", err)
	}
	return nil
}

// WSITouch is one derived WSI update from a DIGEST's file list.
type WSITouch struct {
	Path   string
	Reason string
}

// DeriveWSITouches maps d.Files into WSI touch requests.
func DeriveWSITouches(d Digest) []WSITouch {
	touches := make([]WSITouch, 0, len(d.Files))
	for _, f := range d.Files {
		touches = append(touches, WSITouch{Path: f.Path, Reason: f.Reason})
	}
	return touches
}

// outcomeStatus infers a success/failure/unknown status from evidence,
// mirroring the search ranking's outcome-bonus lookup. The outcome,
// status and result keys are consulted first; otherwise any failing
// evidence value yields failure and any passing one success.
func outcomeStatus(d Digest) string {
	for _, key := range []string{"outcome", "status", "result"} {
		if v, ok := d.Evidence[key]; ok {
			lower := strings.ToLower(v)
			switch {
			case strings.Contains(lower, "fail"):
				return "failure"
			case strings.Contains(lower, "ok") || strings.Contains(lower, "success") || strings.Contains(lower, "pass"):
				return "success"
			}
		}
	}
	status := "unknown"
	for _, k := range sortedKeys(d.Evidence) {
		lower := strings.ToLower(d.Evidence[k])
		switch {
		case strings.Contains(lower, "fail"):
			return "failure"
		case strings.Contains(lower, "ok") || strings.Contains(lower, "success") || strings.Contains(lower, "pass"):
			status = "success"
		}
	}
	return status
}

// BuildIngestJob constructs the queue.Job for a validated digest,
// canonicalizing its Markdown form as the ingest text.
func BuildIngestJob(projectRoot string, d Digest, at time.Time) queue.Job {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	meta := map[string]any{
		"agent":           d.Agent,
		"task_id":         d.TaskID,
		"decisions_count": len(d.Decisions),
		"files_count":     len(d.Files),
		"contracts":       d.Contracts,
		"outcome_status":  outcomeStatus(d),
	}
	for k, v := range d.Extra {
		meta[k] = v
	}

	return queue.Job{
		ProjectRoot:   projectRoot,
		Source:        "digest",
		PathInProject: fmt.Sprintf("logs/digests/%s-%s", d.TaskID, ts),
		Text:          Markdown(d, at),
		Meta:          meta,
	}
}

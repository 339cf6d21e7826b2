// Package checkpoint implements the Checkpoint Manager: point-in-time
// working-tree snapshots taken before destructive operations or on a
// periodic cadence, backed by git stash entries and a retained JSON
// record per checkpoint.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/sentry/internal/git"
	"github.com/antigravity-dev/sentry/internal/herr"
)

// Record is the persisted metadata for one checkpoint.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt int64          `json:"created_at"`
	Trigger   string         `json:"trigger"`
	StashRef  string         `json:"stash_ref"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// Manager snapshots and restores a project's working tree, persisting
// one JSON record per checkpoint under dir.
type Manager struct {
	Workspace string
	Dir       string
	Retention int
	Now       Clock
}

// New constructs a Manager rooted at workspace, storing records under
// dir (conventionally "<projectRoot>/.claude/logs/checkpoints").
func New(workspace, dir string, retention int) *Manager {
	if retention <= 0 {
		retention = 20
	}
	return &Manager{Workspace: workspace, Dir: dir, Retention: retention, Now: time.Now}
}

// Create snapshots the current working tree via git stash and persists
// a Record describing it. It implements the policy.Checkpointer seam.
// A stash snapshot failure degrades to a warning-worthy error rather
// than aborting the caller's tool invocation; callers decide how to
// surface it.
func (m *Manager) Create(trigger string) (id string, err error) {
	now := m.now()
	ref, stashErr := git.StashSnapshot(m.Workspace, fmt.Sprintf("sentry-checkpoint %s %d", trigger, now.UnixMilli()))
	if stashErr != nil {
		return "", herr.Wrap(herr.ErrTransient, "checkpoint", "stash snapshot", stashErr)
	}

	rec := Record{
		ID:        uuid.NewString(),
		CreatedAt: now.UnixMilli(),
		Trigger:   trigger,
		StashRef:  ref,
	}
	if err := m.write(rec); err != nil {
		return "", err
	}
	if err := m.enforceRetention(); err != nil {
		return rec.ID, err
	}
	return rec.ID, nil
}

// List returns all retained checkpoints, most recent first.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, herr.Wrap(herr.ErrIntegrity, "checkpoint", "list dir", err)
	}

	var recs []Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := m.read(e.Name())
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt > recs[j].CreatedAt })
	return recs, nil
}

// Restore re-applies the checkpoint with the given id to the working
// tree. The stash entry is kept (not dropped) so Restore is repeatable.
func (m *Manager) Restore(id string) error {
	rec, err := m.read(id + ".json")
	if err != nil {
		return herr.Wrap(herr.ErrValidation, "checkpoint", "lookup "+id, err)
	}
	if rec.StashRef == "" {
		return fmt.Errorf("checkpoint %s has no stash entry (no-op snapshot)", id)
	}
	if err := git.StashApply(m.Workspace, rec.StashRef); err != nil {
		return herr.Wrap(herr.ErrTransient, "checkpoint", "restore "+id, err)
	}
	return nil
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.Dir, id+".json")
}

func (m *Manager) read(filename string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir, filename))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, herr.Wrap(herr.ErrIntegrity, "checkpoint", "parse "+filename, err)
	}
	return rec, nil
}

func (m *Manager) write(rec Record) error {
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "checkpoint", "mkdir", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "checkpoint", "marshal", err)
	}

	tmp, err := os.CreateTemp(m.Dir, ".checkpoint-*.tmp")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "checkpoint", "create temp", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "checkpoint", "write temp", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "checkpoint", "close temp", err)
	}
	if err := os.Rename(tmpPath, m.path(rec.ID)); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "checkpoint", "rename", err)
	}
	return nil
}

// enforceRetention drops the oldest checkpoints (both their stash
// entries and JSON records) past m.Retention.
func (m *Manager) enforceRetention() error {
	recs, err := m.List()
	if err != nil {
		return err
	}
	if len(recs) <= m.Retention {
		return nil
	}

	for _, rec := range recs[m.Retention:] {
		if rec.StashRef != "" {
			if err := git.StashDrop(m.Workspace, rec.StashRef); err != nil {
				return herr.Wrap(herr.ErrTransient, "checkpoint", "retention drop "+rec.ID, err)
			}
		}
		os.Remove(m.path(rec.ID))
	}
	return nil
}

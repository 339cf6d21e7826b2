package wsi

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/sentry/internal/herr"
)

type turnCounterFile struct {
	Value int `json:"value"`
}

// TurnCounter persists the per-project monotonic turn counter at
// turn_counter.json, incremented once per pre-tool event.
type TurnCounter struct {
	path string
}

// NewTurnCounter constructs a counter bound to path.
func NewTurnCounter(path string) *TurnCounter {
	return &TurnCounter{path: path}
}

// Increment loads the current value, adds one, persists it atomically,
// and returns the new value.
func (t *TurnCounter) Increment() (int, error) {
	cur, err := t.Value()
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := t.store(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Value returns the current counter without mutating it.
func (t *TurnCounter) Value() (int, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, herr.Wrap(herr.ErrIntegrity, "wsi", "read turn counter", err)
	}
	var f turnCounterFile
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, herr.Wrap(herr.ErrIntegrity, "wsi", "parse turn counter", err)
	}
	return f.Value, nil
}

func (t *TurnCounter) store(value int) error {
	data, err := json.Marshal(turnCounterFile{Value: value})
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "wsi", "marshal turn counter", err)
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "wsi", "mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".turn_counter-*.tmp")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "wsi", "create temp", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "wsi", "write temp", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "wsi", "close temp", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "wsi", "rename", err)
	}
	return nil
}

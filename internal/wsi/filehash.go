package wsi

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/sentry/internal/herr"
)

// FileHashEntry backs the duplicate-read policy's progressive state
// machine: one entry per path, reset whenever the observed content hash
// changes.
type FileHashEntry struct {
	SHA256        string `json:"sha256"`
	FirstSeenTurn int    `json:"first_seen_turn"`
	LastSeenTurn  int    `json:"last_seen_turn"`
	ReadCount     int    `json:"read_count"`
}

type fileHashSnapshot struct {
	Files map[string]FileHashEntry `json:"files"`
}

// FileHashCache persists file_hashes.json with the same atomic
// temp-file-plus-rename discipline as the WSI snapshot.
type FileHashCache struct {
	path string
}

// NewFileHashCache constructs a cache bound to path (conventionally
// <logs_dir>/file_hashes.json).
func NewFileHashCache(path string) *FileHashCache {
	return &FileHashCache{path: path}
}

func (c *FileHashCache) load() (*fileHashSnapshot, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return &fileHashSnapshot{Files: map[string]FileHashEntry{}}, nil
	}
	if err != nil {
		return nil, herr.Wrap(herr.ErrIntegrity, "wsi", "read file hashes", err)
	}
	var snap fileHashSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, herr.Wrap(herr.ErrIntegrity, "wsi", "parse file hashes", err)
	}
	if snap.Files == nil {
		snap.Files = map[string]FileHashEntry{}
	}
	return &snap, nil
}

func (c *FileHashCache) writeAtomic(snap *fileHashSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "wsi", "marshal file hashes", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "wsi", "mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".file_hashes-*.tmp")
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
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "wsi", "rename", err)
	}
	return nil
}

// Get returns the tracked entry for path, if any.
func (c *FileHashCache) Get(path string) (FileHashEntry, bool, error) {
	snap, err := c.load()
	if err != nil {
		return FileHashEntry{}, false, err
	}
	e, ok := snap.Files[path]
	return e, ok, nil
}

// Observe records a read of path with the given content sha at
// turnCounter, returning the updated entry. A sha change resets
// ReadCount to 1; an unchanged sha increments it.
func (c *FileHashCache) Observe(path, sha string, turnCounter int) (FileHashEntry, error) {
	snap, err := c.load()
	if err != nil {
		return FileHashEntry{}, err
	}

	e, exists := snap.Files[path]
	switch {
	case !exists:
		e = FileHashEntry{SHA256: sha, FirstSeenTurn: turnCounter, LastSeenTurn: turnCounter, ReadCount: 1}
	case e.SHA256 != sha:
		e = FileHashEntry{SHA256: sha, FirstSeenTurn: turnCounter, LastSeenTurn: turnCounter, ReadCount: 1}
	default:
		e.LastSeenTurn = turnCounter
		e.ReadCount++
	}
	snap.Files[path] = e

	if err := c.writeAtomic(snap); err != nil {
		return FileHashEntry{}, err
	}
	return e, nil
}

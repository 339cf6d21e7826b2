package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sentry.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
[general]
log_level = "info"
queue_high_watermark = 10

[wsi]
max = 5
ttl_turns = 10
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WSI.Max != 5 {
		t.Errorf("WSI.Max = %d, want 5 (explicit value should not be overridden)", cfg.WSI.Max)
	}
	if cfg.WSI.TTLTurns != 10 {
		t.Errorf("WSI.TTLTurns = %d, want 10", cfg.WSI.TTLTurns)
	}
	if cfg.Ingest.MaxAttempts != 5 {
		t.Errorf("Ingest.MaxAttempts = %d, want default 5", cfg.Ingest.MaxAttempts)
	}
	if cfg.Embedding.Dim != 1536 {
		t.Errorf("Embedding.Dim = %d, want default 1536", cfg.Embedding.Dim)
	}
	if cfg.Search.Weights.Vector != 0.60 {
		t.Errorf("Search.Weights.Vector = %v, want default 0.60", cfg.Search.Weights.Vector)
	}
	if cfg.Checkpoint.Retention != 20 {
		t.Errorf("Checkpoint.Retention = %d, want default 20", cfg.Checkpoint.Retention)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := &Config{Policy: Policy{Rules: map[string]RuleConfig{
		"R1": {Enabled: true, Params: map[string]any{"window": 10}},
	}}}

	clone := cfg.Clone()
	clone.Policy.Rules["R1"] = RuleConfig{Enabled: false}

	if !cfg.Policy.Rules["R1"].Enabled {
		t.Error("mutating the clone's rule map should not affect the original")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got := ExpandHome("~/sentry/memory.db")
	want := filepath.Join(home, "sentry/memory.db")
	if got != want {
		t.Errorf("ExpandHome = %q, want %q", got, want)
	}
}

package main

import (
	"os"
	"testing"

	"github.com/antigravity-dev/sentry/internal/pathresolve"
)

func TestLoadConfigFallsBackToDefaultsWithoutDaemonConfig(t *testing.T) {
	projectRoot := t.TempDir()
	t.Setenv("SENTRY_CONFIG", projectRoot+"/missing-sentry.toml")

	cfg := loadConfig(&pathresolve.Paths{ProjectRoot: projectRoot})
	if cfg == nil {
		t.Fatal("expected a non-nil config")
	}
	if cfg.General.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.General.LogLevel)
	}
}

func TestLoadConfigMergesProjectOverrides(t *testing.T) {
	projectRoot := t.TempDir()
	t.Setenv("SENTRY_CONFIG", projectRoot+"/missing-sentry.toml")

	claudeDir := projectRoot + "/.claude"
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(claudeDir+"/config.json", []byte(`{"wsi": {"max": 99}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := loadConfig(&pathresolve.Paths{ProjectRoot: projectRoot})
	if cfg.WSI.Max != 99 {
		t.Fatalf("expected project override wsi.max=99, got %d", cfg.WSI.Max)
	}
}

package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/antigravity-dev/sentry/internal/config"
)

func TestConfigureLoggerLevels(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger := configureLogger(tc.level, true)
		if !logger.Enabled(context.Background(), tc.want) {
			t.Errorf("configureLogger(%q): expected level %v to be enabled", tc.level, tc.want)
		}
	}
}

func TestBuildEmbedClientAppliesOverrides(t *testing.T) {
	cfg := config.Embedding{
		Model:    "custom-model",
		Endpoint: "http://localhost:9999",
	}
	client := buildEmbedClient(cfg)
	if client == nil {
		t.Fatal("expected a non-nil client")
	}
}

package pathresolve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/sentry/internal/herr"
)

func fakeEnv(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestResolveRequiresProjectDir(t *testing.T) {
	_, err := Resolve(fakeEnv(nil))
	if !errors.Is(err, herr.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestResolveDerivesDefaults(t *testing.T) {
	root := "/tmp/project"
	p, err := Resolve(fakeEnv(map[string]string{EnvProjectDir: root}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	wantWSI := filepath.Join(root, ".claude", "logs", "wsi.json")
	if p.WSIPath != wantWSI {
		t.Errorf("WSIPath = %q, want %q", p.WSIPath, wantWSI)
	}
	wantQueue := filepath.Join(root, ".claude", "ingest-queue")
	if p.IngestQueueDir != wantQueue {
		t.Errorf("IngestQueueDir = %q, want %q", p.IngestQueueDir, wantQueue)
	}
	wantDead := filepath.Join(wantQueue, "dead")
	if p.DeadDir != wantDead {
		t.Errorf("DeadDir = %q, want %q", p.DeadDir, wantDead)
	}
}

func TestResolveHonorsExplicitOverrides(t *testing.T) {
	root := "/tmp/project"
	p, err := Resolve(fakeEnv(map[string]string{
		EnvProjectDir: root,
		EnvLogsDir:    "/var/log/sentry",
		EnvWSIPath:    "/var/log/sentry/wsi.json",
	}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.LogsDir != "/var/log/sentry" {
		t.Errorf("LogsDir = %q, want override honored", p.LogsDir)
	}
	if p.WSIPath != "/var/log/sentry/wsi.json" {
		t.Errorf("WSIPath = %q, want override honored", p.WSIPath)
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	p, err := Resolve(fakeEnv(map[string]string{EnvProjectDir: root}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := p.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{p.LogsDir, p.CheckpointsDir, p.IngestQueueDir, p.InflightDir, p.DeadDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("dir %q not created: %v", dir, err)
		}
	}
}

func TestNormalizeRel(t *testing.T) {
	root := "/tmp/project"
	if got := NormalizeRel(root, filepath.Join(root, "src", "x.ts")); got != filepath.Join("src", "x.ts") {
		t.Errorf("NormalizeRel = %q", got)
	}
	if got := NormalizeRel(root, "already/relative.ts"); got != "already/relative.ts" {
		t.Errorf("NormalizeRel relative passthrough = %q", got)
	}
	if got := NormalizeRel(root, "/etc/passwd"); got != "/etc/passwd" {
		t.Errorf("NormalizeRel outside root should pass through unchanged, got %q", got)
	}
}

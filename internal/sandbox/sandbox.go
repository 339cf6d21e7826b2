// Package sandbox runs the R5 typecheck gate's configured type checker
// inside a throwaway Docker container, isolating it from the host the
// same way the teacher isolates agent sessions: a read-only context
// mount for inputs, a bind mount for the project, and a disposable
// container torn down once the check completes.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// LanguageProfile names the image and command used to typecheck one
// language. Command runs with the project root bind-mounted at
// Workdir.
type LanguageProfile struct {
	Image   string
	Command []string
	Workdir string
}

// defaultProfiles maps a typed-source extension to the container
// profile that checks it. Unknown extensions have no profile and the
// gate allows them through uncontested (policy.TypecheckGateRule
// already filters to TypedExts before calling Check).
var defaultProfiles = map[string]LanguageProfile{
	".go":  {Image: "golang:1.22", Command: []string{"go", "build", "./..."}, Workdir: "/workspace"},
	".ts":  {Image: "node:20", Command: []string{"npx", "--yes", "tsc", "--noEmit"}, Workdir: "/workspace"},
	".tsx": {Image: "node:20", Command: []string{"npx", "--yes", "tsc", "--noEmit"}, Workdir: "/workspace"},
	".py":  {Image: "python:3.12", Command: []string{"python", "-m", "mypy", "."}, Workdir: "/workspace"},
}

// DockerTypeChecker implements policy.TypeChecker by running the
// profile matching the edited file's extension in a fresh container
// bind-mounting projectRoot read-write (type checkers commonly write
// caches) and removing the container once the run completes.
type DockerTypeChecker struct {
	mu       sync.Mutex
	cli      *client.Client
	profiles map[string]LanguageProfile
}

// NewDockerTypeChecker dials the local Docker daemon the same way the
// teacher's dispatcher does (client.FromEnv + API version negotiation).
// A dial failure is non-fatal: Check fails open (policy.TypecheckGateRule
// allows on Checker error) rather than blocking every edit because
// Docker happens to be unavailable.
func NewDockerTypeChecker() *DockerTypeChecker {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		cli = nil
	}
	return &DockerTypeChecker{cli: cli, profiles: defaultProfiles}
}

// WithProfile overrides (or adds) the profile for ext, e.g. to pin a
// project-specific image or command via project configuration.
func (d *DockerTypeChecker) WithProfile(ext string, profile LanguageProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[ext] = profile
}

// Check runs the type checker matching files' extensions against
// projectRoot. Only the first recognized extension among files is
// used, since a typecheck run covers the whole project, not one file.
func (d *DockerTypeChecker) Check(ctx context.Context, projectRoot string, files []string) (bool, string, error) {
	if d.cli == nil {
		return false, "", fmt.Errorf("sandbox: docker client unavailable")
	}

	profile, ok := d.profileFor(files)
	if !ok {
		return true, "", nil
	}

	workDirPath, err := filepath.Abs(projectRoot)
	if err != nil {
		return false, "", fmt.Errorf("sandbox: resolve project root: %w", err)
	}

	containerConfig := &container.Config{
		Image:      profile.Image,
		Cmd:        profile.Command,
		Tty:        false,
		WorkingDir: profile.Workdir,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: workDirPath, Target: profile.Workdir},
		},
		AutoRemove: false,
	}

	name := fmt.Sprintf("sentry-typecheck-%s", randomSuffix())
	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return false, "", fmt.Errorf("sandbox: create container: %w", err)
	}
	defer d.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return false, "", fmt.Errorf("sandbox: start container: %w", err)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return false, "", fmt.Errorf("sandbox: wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return false, "", ctx.Err()
	}

	output, logErr := d.captureLogs(context.Background(), resp.ID)
	if logErr != nil {
		output = ""
	}
	return exitCode == 0, output, nil
}

func (d *DockerTypeChecker) captureLogs(ctx context.Context, containerID string) (string, error) {
	logs, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String() + "\n" + stderr.String()), nil
}

func (d *DockerTypeChecker) profileFor(files []string) (LanguageProfile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if p, ok := d.profiles[ext]; ok {
			return p, true
		}
	}
	return LanguageProfile{}, false
}

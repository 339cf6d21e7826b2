// Package hooks implements the Hook Dispatcher: the per-lifecycle-event
// entry point invoked by the host once per tool call and session
// transition, wired to the Policy Engine and the side-effect handlers
// (WSI, Checkpoint Manager, DIGEST/NOTES, Ingest Queue).
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/antigravity-dev/sentry/internal/checkpoint"
	"github.com/antigravity-dev/sentry/internal/config"
	"github.com/antigravity-dev/sentry/internal/digest"
	"github.com/antigravity-dev/sentry/internal/pathresolve"
	"github.com/antigravity-dev/sentry/internal/policy"
	"github.com/antigravity-dev/sentry/internal/processor"
	"github.com/antigravity-dev/sentry/internal/queue"
	"github.com/antigravity-dev/sentry/internal/sandbox"
	"github.com/antigravity-dev/sentry/internal/transcript"
	"github.com/antigravity-dev/sentry/internal/wsi"
)

// Exit codes per the hook invocation contract: 0 silent allow, 1 allow
// with advisory, 2 block.
const (
	ExitAllow  = 0
	ExitWarn   = 1
	ExitBlock  = 2
)

// Event is the single JSON object read from stdin for one lifecycle
// invocation.
type Event struct {
	EventType     string         `json:"event_type"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	ProjectDir    string         `json:"project_dir"`
	TranscriptPath string        `json:"transcript_path"`
	ToolResult    string         `json:"tool_result"`
	UserRequested bool           `json:"user_requested"`
}

// Result is what the dispatcher writes back to the host: an exit code
// and the advisory text for stderr.
type Result struct {
	ExitCode int
	Stderr   string
}

// Dispatcher wires the Policy Engine and side-effect handlers together
// for one project. It is constructed fresh per process invocation,
// matching the single-process-per-event concurrency model.
type Dispatcher struct {
	Paths      *pathresolve.Paths
	Config     *config.Config
	Engine     *policy.Engine
	Checkpoint *checkpoint.Manager
	Logger     *slog.Logger

	// Processor, when set, lets the Stop handler opportunistically
	// drain the ingest queue within the configured stop time budget
	// (spec: "drain opportunistically at stop events with a short
	// budget"). Left nil by default so callers that don't want a
	// per-event Memory Provider connection (most tests) still work.
	Processor *processor.Processor
}

// New builds a Dispatcher from resolved paths and merged configuration,
// wiring the policy engine's rules against this project's checkpoint
// manager.
func New(paths *pathresolve.Paths, cfg *config.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ckpt := checkpoint.New(paths.ProjectRoot, paths.CheckpointsDir, cfg.Checkpoint.Retention)

	engine := policy.NewEngine(buildRules(cfg, ckpt, paths.FileHashesPath)...)
	return &Dispatcher{Paths: paths, Config: cfg, Engine: engine, Checkpoint: ckpt, Logger: logger.With("component", "hooks")}
}

func buildRules(cfg *config.Config, ckpt *checkpoint.Manager, fileHashesPath string) []policy.Rule {
	enabled := func(id string, def bool) bool {
		if rc, ok := cfg.Policy.Rules[id]; ok {
			return rc.Enabled
		}
		return def
	}

	hashes := wsi.NewFileHashCache(fileHashesPath)

	var rules []policy.Rule
	if enabled("R1", true) {
		rules = append(rules, &policy.DuplicateReadRule{Hashes: hashes})
	}
	if enabled("R2", true) {
		rules = append(rules, &policy.MDSpamRule{})
	}
	if enabled("R3", true) {
		rules = append(rules, &policy.RoutingRule{})
	}
	if enabled("R4", true) {
		rules = append(rules, &policy.DestructiveOpRule{Checkpoint: ckpt})
	}
	if enabled("R5", true) {
		rules = append(rules, &policy.TypecheckGateRule{Checker: sandbox.NewDockerTypeChecker()})
	}
	if enabled("R6", true) {
		rules = append(rules, &policy.PeriodicCheckpointRule{Checkpoint: ckpt, Every: cfg.Checkpoint.PeriodicEvery})
	}
	return rules
}

// Handle dispatches one event, recovering from any panic inside the
// policy engine or side-effect handlers so the host is never blocked
// by a bug in this core (the fail-open guarantee). Only an explicit
// PolicyBlock decision yields a non-zero-or-one exit code.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logFailOpen(fmt.Sprintf("panic: %v", r))
			result = Result{ExitCode: ExitAllow}
		}
	}()

	switch ev.EventType {
	case "pre_tool":
		return d.handlePreTool(ev)
	case "post_tool_task":
		return d.handlePostToolTask(ctx, ev)
	case "stop":
		return d.handleStop(ctx, ev)
	default:
		return Result{ExitCode: ExitAllow}
	}
}

func (d *Dispatcher) handlePreTool(ev Event) Result {
	turn, err := incrementTurn(d.Paths.TurnCounterPath)
	if err != nil {
		d.logFailOpen("turn counter: " + err.Error())
		return Result{ExitCode: ExitAllow}
	}

	store := wsi.New(d.Paths.WSIPath, d.Config.WSI.Max, d.Config.WSI.TTLTurns)
	if degraded, err := store.Prune(turn); err != nil {
		d.logFailOpen("wsi prune: " + err.Error())
	} else if degraded {
		d.Logger.Warn("wsi lock unavailable during prune", "project", ev.ProjectDir)
	}

	event := policy.Event{
		ToolName:      ev.ToolName,
		ToolInput:     ev.ToolInput,
		ProjectRoot:   ev.ProjectDir,
		TurnCounter:   turn,
		UserRequested: ev.UserRequested,
	}
	res, err := d.Engine.Evaluate(event)
	if err != nil {
		d.logFailOpen("policy evaluate: " + err.Error())
		return Result{ExitCode: ExitAllow}
	}

	if path, ok := toolPath(ev.ToolInput); ok {
		if degraded, err := store.Touch(path, "pre_tool", turn, time.Now()); err != nil {
			d.logFailOpen("wsi touch: " + err.Error())
		} else if degraded {
			d.Logger.Warn("wsi lock unavailable during touch", "path", path)
		}
	}

	return resultFromVerdict(res)
}

func (d *Dispatcher) handlePostToolTask(ctx context.Context, ev Event) Result {
	raw := extractDigestFromResult(ev.ToolResult)
	if raw == nil {
		return Result{ExitCode: ExitAllow}
	}
	d.captureDigest(raw)
	return Result{ExitCode: ExitAllow}
}

func (d *Dispatcher) handleStop(ctx context.Context, ev Event) Result {
	budget := d.Config.General.StopTimeBudget.Duration
	if budget <= 0 {
		budget = 2 * time.Second
	}
	deadline := time.Now().Add(budget)

	if ev.TranscriptPath != "" {
		raw, err := transcript.Scan(ev.TranscriptPath, transcript.Options{
			TimeBudget: time.Until(deadline),
			InvalidDigest: func(reason string) {
				d.Logger.Warn("invalid digest in transcript", "reason", reason)
			},
		})
		if err != nil {
			d.logFailOpen("transcript scan: " + err.Error())
			return Result{ExitCode: ExitAllow}
		}
		if raw != nil {
			d.captureDigest(raw)
		}
	}

	if d.Processor != nil {
		remaining := time.Until(deadline)
		if remaining > 0 {
			result, err := d.Processor.DrainOpportunistic(ctx, remaining)
			if err != nil {
				d.logFailOpen("opportunistic drain: " + err.Error())
			} else if result.Processed > 0 || result.Failed > 0 {
				d.Logger.Info("opportunistic drain", "processed", result.Processed, "failed", result.Failed, "dead", result.Dead)
			}
		}
	}
	return Result{ExitCode: ExitAllow}
}

// captureDigest runs the full C7 pipeline: validate, append to NOTES,
// derive WSI touches, enqueue an ingest job. Any failure here is logged
// and swallowed per the fail-open guarantee.
func (d *Dispatcher) captureDigest(raw json.RawMessage) {
	dg, err := digest.Parse(raw)
	if err != nil {
		d.logFailOpen("digest validate: " + err.Error())
		return
	}

	now := time.Now()
	if err := digest.AppendNotes(d.Paths.NotesPath, digest.Markdown(dg, now)); err != nil {
		d.logFailOpen("notes append: " + err.Error())
	}

	store := wsi.New(d.Paths.WSIPath, d.Config.WSI.Max, d.Config.WSI.TTLTurns)
	turn, _ := peekTurn(d.Paths.TurnCounterPath)
	for _, touch := range digest.DeriveWSITouches(dg) {
		if _, err := store.Touch(touch.Path, touch.Reason, turn, now); err != nil {
			d.logFailOpen("wsi touch from digest: " + err.Error())
		}
	}

	q, err := queue.New(d.Paths.IngestQueueDir, d.Config.Ingest.MaxAttempts, d.Config.Ingest.BackoffBase.Duration, d.Config.Ingest.BackoffMax.Duration, d.Config.Ingest.NonfatalRegex)
	if err != nil {
		d.logFailOpen("queue init: " + err.Error())
		return
	}
	job := digest.BuildIngestJob(d.Paths.ProjectRoot, dg, now)
	if err := q.Enqueue(job); err != nil {
		d.logFailOpen("enqueue: " + err.Error())
	}
}

func resultFromVerdict(res policy.Result) Result {
	var stderr string
	for _, dec := range res.Decisions {
		stderr += fmt.Sprintf("[%s] %s\n", dec.Rule, dec.Message)
	}
	switch res.Verdict {
	case policy.Block:
		return Result{ExitCode: ExitBlock, Stderr: stderr}
	case policy.Warn:
		return Result{ExitCode: ExitWarn, Stderr: stderr}
	default:
		return Result{ExitCode: ExitAllow}
	}
}

func (d *Dispatcher) logFailOpen(msg string) {
	d.Logger.Error("fail-open", "error", msg)
	if d.Paths == nil || d.Paths.AutoSetupErrorsLog == "" {
		return
	}
	f, err := os.OpenFile(d.Paths.AutoSetupErrorsLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), msg)
}

func toolPath(input map[string]any) (string, bool) {
	v, ok := input["path"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// extractDigestFromResult looks for a fenced DIGEST block embedded
// directly in a tool result string (as opposed to a transcript file).
func extractDigestFromResult(result string) json.RawMessage {
	if result == "" {
		return nil
	}
	tmp, err := os.CreateTemp("", "toolresult-*.jsonl")
	if err != nil {
		return nil
	}
	defer os.Remove(tmp.Name())
	rec := map[string]string{"text": result}
	data, _ := json.Marshal(rec)
	tmp.Write(data)
	tmp.Close()

	raw, err := transcript.Scan(tmp.Name(), transcript.Options{FastOnly: true})
	if err != nil {
		return nil
	}
	return raw
}

func incrementTurn(path string) (int, error) {
	tc := wsi.NewTurnCounter(path)
	return tc.Increment()
}

func peekTurn(path string) (int, error) {
	tc := wsi.NewTurnCounter(path)
	return tc.Value()
}

// Package queue implements the Ingest Queue: a file-per-job FIFO
// directory with pending/inflight/dead states, claimed by rename.
package queue

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/antigravity-dev/sentry/internal/herr"
)

// Job is one unit of work bound for the Memory Provider.
type Job struct {
	JobID        string            `json:"job_id"`
	ProjectRoot  string            `json:"project_root"`
	Source       string            `json:"source"` // digest | fixpack | doc | conversation_summary
	PathInProject string           `json:"path_in_project"`
	Text         string            `json:"text"`
	Meta         map[string]any    `json:"meta,omitempty"`
	EnqueuedAt   int64             `json:"enqueued_at"`
	Attempts     int               `json:"attempts"`
}

const (
	inflightDir = "inflight"
	deadDir     = "dead"
)

var nonJSONOrphanAge = time.Hour

// Queue manages one project's ingest-queue directory.
type Queue struct {
	dir         string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	nonfatal    *regexp.Regexp
}

// New constructs a Queue rooted at dir (conventionally
// "<projectRoot>/.claude/ingest-queue"). nonfatalPattern classifies a
// processing failure's error text as transient (retry) vs fatal
// (dead-letter immediately).
func New(dir string, maxAttempts int, backoffBase, backoffMax time.Duration, nonfatalPattern string) (*Queue, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = 30 * time.Second
	}
	if backoffMax <= 0 {
		backoffMax = 10 * time.Minute
	}
	var re *regexp.Regexp
	if nonfatalPattern != "" {
		compiled, err := regexp.Compile("(?i)" + nonfatalPattern)
		if err != nil {
			return nil, fmt.Errorf("queue: compile nonfatal pattern: %w", err)
		}
		re = compiled
	}
	return &Queue{dir: dir, maxAttempts: maxAttempts, backoffBase: backoffBase, backoffMax: backoffMax, nonfatal: re}, nil
}

// Enqueue writes job as a new pending file via write-temp then rename.
// Producers never block or retry on failure; callers should log and
// drop on error rather than propagate it to the host.
func (q *Queue) Enqueue(job Job) error {
	if err := os.MkdirAll(q.dir, 0755); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "mkdir", err)
	}
	if job.JobID == "" {
		job.JobID = fmt.Sprintf("%d-%d", time.Now().UnixMilli(), rand.Intn(1_000_000))
	}
	if job.EnqueuedAt == 0 {
		job.EnqueuedAt = time.Now().UnixMilli()
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "marshal job", err)
	}

	tmp, err := os.CreateTemp(q.dir, ".job-*.tmp")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "create temp", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "queue", "write temp", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "queue", "close temp", err)
	}
	finalPath := filepath.Join(q.dir, job.JobID+".json")
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.ErrIntegrity, "queue", "rename", err)
	}
	return nil
}

// Pending lists queued job file names (<job_id>.json), oldest mtime
// first.
func (q *Queue) Pending() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, herr.Wrap(herr.ErrIntegrity, "queue", "read pending dir", err)
	}
	type withTime struct {
		name string
		mod  time.Time
	}
	var ids []withTime
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		ids = append(ids, withTime{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].mod.Before(ids[j].mod) })
	out := make([]string, len(ids))
	for i, w := range ids {
		out[i] = w.name
	}
	return out, nil
}

// Claim attempts to move filename from pending into inflight/. The
// rename is the exclusive linearization point; ErrClaimLost is returned
// if another processor already claimed it.
func (q *Queue) Claim(filename string) (Job, error) {
	if err := os.MkdirAll(filepath.Join(q.dir, inflightDir), 0755); err != nil {
		return Job{}, herr.Wrap(herr.ErrIntegrity, "queue", "mkdir inflight", err)
	}
	src := filepath.Join(q.dir, filename)
	dst := filepath.Join(q.dir, inflightDir, filename)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return Job{}, ErrClaimLost
		}
		return Job{}, herr.Wrap(herr.ErrIntegrity, "queue", "claim rename", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		return Job{}, herr.Wrap(herr.ErrIntegrity, "queue", "read claimed job", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, herr.Wrap(herr.ErrIntegrity, "queue", "parse claimed job", err)
	}
	return job, nil
}

// ErrClaimLost indicates another processor already claimed the job.
var ErrClaimLost = fmt.Errorf("queue: claim lost to another processor")

// Complete deletes the inflight file for a successfully processed job.
func (q *Queue) Complete(job Job) error {
	path := filepath.Join(q.dir, inflightDir, job.JobID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return herr.Wrap(herr.ErrIntegrity, "queue", "complete remove", err)
	}
	return nil
}

// Retry classifies processErr and either requeues job with exponential
// backoff (transient) or moves it to dead/ (fatal or attempts
// exhausted).
func (q *Queue) Retry(job Job, processErr error) error {
	job.Attempts++
	inflightPath := filepath.Join(q.dir, inflightDir, job.JobID+".json")

	if job.Attempts >= q.maxAttempts || !q.isTransient(processErr) {
		return q.moveToDead(job, inflightPath)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "marshal retry", err)
	}
	if err := os.Remove(inflightPath); err != nil && !os.IsNotExist(err) {
		return herr.Wrap(herr.ErrIntegrity, "queue", "remove inflight for retry", err)
	}

	pendingPath := filepath.Join(q.dir, job.JobID+".json")
	if err := os.WriteFile(pendingPath, data, 0644); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "write retry", err)
	}

	delay := q.backoffBase * time.Duration(1<<uint(job.Attempts))
	if delay > q.backoffMax {
		delay = q.backoffMax
	}
	future := time.Now().Add(delay)
	return os.Chtimes(pendingPath, future, future)
}

func (q *Queue) moveToDead(job Job, inflightPath string) error {
	if err := os.MkdirAll(filepath.Join(q.dir, deadDir), 0755); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "mkdir dead", err)
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "marshal dead", err)
	}
	deadPath := filepath.Join(q.dir, deadDir, job.JobID+".json")
	if err := os.WriteFile(deadPath, data, 0644); err != nil {
		return herr.Wrap(herr.ErrIntegrity, "queue", "write dead", err)
	}
	if err := os.Remove(inflightPath); err != nil && !os.IsNotExist(err) {
		return herr.Wrap(herr.ErrIntegrity, "queue", "remove inflight after dead", err)
	}
	return nil
}

// WouldDeadLetter reports whether calling Retry with job and processErr
// right now would dead-letter it (attempts exhausted or processErr
// judged fatal) rather than requeue it with backoff. Callers that need
// to know the outcome ahead of the state change — such as the Temporal
// workflow tallying a drain summary — call this before Retry.
func (q *Queue) WouldDeadLetter(job Job, processErr error) bool {
	return job.Attempts+1 >= q.maxAttempts || !q.isTransient(processErr)
}

func (q *Queue) isTransient(err error) bool {
	if err == nil {
		return false
	}
	if q.nonfatal == nil {
		return true
	}
	return q.nonfatal.MatchString(err.Error())
}

// DeadCount returns the number of permanently failed jobs, used for the
// one-line Stop-event advisory.
func (q *Queue) DeadCount() (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.dir, deadDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, herr.Wrap(herr.ErrIntegrity, "queue", "read dead dir", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n, nil
}

// SweepOrphans removes stray temp files older than age that never
// completed their write-then-rename, and any non-JSON pending file.
func (q *Queue) SweepOrphans(age time.Duration) error {
	if age <= 0 {
		age = nonJSONOrphanAge
	}
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return herr.Wrap(herr.ErrIntegrity, "queue", "read dir for sweep", err)
	}
	cutoff := time.Now().Add(-age)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(q.dir, name))
		}
	}
	return nil
}

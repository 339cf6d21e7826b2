// Package processor implements the Queue Processor (C10): draining
// internal/queue jobs into the Memory Provider, with idempotent
// retries, dead-lettering, and both an opportunistic (stop-hook-bound)
// and a periodic (daemon-ticker) drain cadence.
package processor

import (
	"context"
	"math/rand"
	"time"

	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/memory"
	"github.com/antigravity-dev/sentry/internal/queue"
)

// defaultBatchLimit bounds how many jobs a single ProcessOnce call
// claims, so an opportunistic drain at Stop can't run unbounded.
const defaultBatchLimit = 25

// Processor drains one project's ingest queue into its Memory
// Provider store.
type Processor struct {
	Queue      *queue.Queue
	Store      *memory.Store
	Client     embedclient.Client
	BatchLimit int
}

// New constructs a Processor. batchLimit <= 0 uses defaultBatchLimit.
func New(q *queue.Queue, store *memory.Store, client embedclient.Client, batchLimit int) *Processor {
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	return &Processor{Queue: q, Store: store, Client: client, BatchLimit: batchLimit}
}

// Result summarizes one drain pass.
type Result struct {
	Processed int
	Failed    int
	Dead      int
}

// ProcessOnce claims up to BatchLimit pending jobs, oldest first, and
// ingests each. Ingest's content-sha dedupe makes reprocessing a job
// that was claimed-but-not-completed on a prior run idempotent.
func (p *Processor) ProcessOnce(ctx context.Context) (Result, error) {
	var result Result

	pending, err := p.Queue.Pending()
	if err != nil {
		return result, err
	}
	if len(pending) > p.BatchLimit {
		pending = pending[:p.BatchLimit]
	}

	for _, filename := range pending {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		job, err := p.Queue.Claim(filename)
		if err != nil {
			if err == queue.ErrClaimLost {
				continue
			}
			return result, err
		}

		if procErr := p.processJob(ctx, job); procErr != nil {
			if err := p.Queue.Retry(job, procErr); err != nil {
				return result, err
			}
			result.Failed++
			continue
		}
		if err := p.Queue.Complete(job); err != nil {
			return result, err
		}
		result.Processed++
	}

	deadCount, err := p.Queue.DeadCount()
	if err == nil {
		result.Dead = deadCount
	}
	return result, nil
}

func (p *Processor) processJob(ctx context.Context, job queue.Job) error {
	return p.IngestOne(ctx, job)
}

// IngestOne runs one job's Memory Provider ingest, exported for the
// Temporal activity wrapper so the workflow reuses the same
// claim/embed/upsert logic as the opportunistic/periodic drains.
func (p *Processor) IngestOne(ctx context.Context, job queue.Job) error {
	opts := memory.IngestOptions{Meta: job.Meta}
	_, err := p.Store.Ingest(ctx, p.Client, job.ProjectRoot, job.PathInProject, job.Text, opts)
	return err
}

// DrainOpportunistic runs ProcessOnce bounded by budget, for use at the
// Stop-hook call site where the host imposes a soft time budget (per
// spec, typically well under the ~1s slice reserved for queue work
// within the overall Stop time budget).
func (p *Processor) DrainOpportunistic(ctx context.Context, budget time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	result, err := p.ProcessOnce(ctx)
	if err == context.DeadlineExceeded {
		return result, nil
	}
	return result, err
}

// RunPeriodic ticks every interval (jittered by up to 10%, matching the
// teacher's jittered-backoff shape) and calls ProcessOnce, until stop
// is closed or ctx is done. Intended for the daemon's long-lived
// background drain (spec default ~15 minutes).
func (p *Processor) RunPeriodic(ctx context.Context, interval time.Duration, stop <-chan struct{}, onResult func(Result, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(withJitter(interval)):
			result, err := p.ProcessOnce(ctx)
			if onResult != nil {
				onResult(result, err)
			}
		}
	}
}

// withJitter scales d by a uniform 1.0-1.1 factor, adapted from the
// teacher's dispatch-retry jitter so periodic drains across many
// concurrently-running project daemons don't all tick in lockstep.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	factor := 1.0 + rand.Float64()*0.1
	return time.Duration(float64(d) * factor)
}

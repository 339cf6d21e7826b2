package temporal

import (
	"context"

	"github.com/antigravity-dev/sentry/internal/processor"
	"github.com/antigravity-dev/sentry/internal/queue"
)

// Activities wraps a Queue Processor so each Temporal activity call is
// a thin, retryable step over the same on-disk queue the opportunistic
// and periodic drains use directly.
type Activities struct {
	Processor *processor.Processor
	Queue     *queue.Queue
}

// ListPendingActivity lists queued job files, oldest first.
func (a *Activities) ListPendingActivity(ctx context.Context) ([]JobRef, error) {
	names, err := a.Queue.Pending()
	if err != nil {
		return nil, err
	}
	refs := make([]JobRef, len(names))
	for i, n := range names {
		refs[i] = JobRef{Filename: n}
	}
	return refs, nil
}

// ClaimJobActivity attempts to move a pending job into inflight/. A
// lost claim (another processor already took it) is reported via
// Claimed=false, not an error, since it's an expected race outcome.
type ClaimResult struct {
	Job     queue.Job
	Claimed bool
}

func (a *Activities) ClaimJobActivity(ctx context.Context, ref JobRef) (ClaimResult, error) {
	job, err := a.Queue.Claim(ref.Filename)
	if err == queue.ErrClaimLost {
		return ClaimResult{Claimed: false}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Job: job, Claimed: true}, nil
}

// IngestJobActivity runs the claim/embed/upsert ingest for one job.
// Temporal's activity retry policy governs transient retries here;
// permanent failure still falls through to RetryJobActivity, which
// applies the queue's own dead-letter threshold.
func (a *Activities) IngestJobActivity(ctx context.Context, job queue.Job) error {
	return a.Processor.IngestOne(ctx, job)
}

// CompleteJobActivity removes a successfully ingested job's inflight file.
func (a *Activities) CompleteJobActivity(ctx context.Context, job queue.Job) error {
	return a.Queue.Complete(job)
}

// RetryResult reports whether RetryJobActivity requeued job with
// backoff or dead-lettered it, so the workflow can tally its
// DrainSummary accordingly.
type RetryResult struct {
	Dead bool
}

// RetryJobActivity requeues job with backoff, or dead-letters it, based
// on the recorded processing error and the queue's configured
// nonfatal-error pattern and max-attempts.
func (a *Activities) RetryJobActivity(ctx context.Context, job queue.Job, processErrMessage string) (RetryResult, error) {
	var processErr error
	if processErrMessage != "" {
		processErr = errString(processErrMessage)
	}
	result := RetryResult{Dead: a.Queue.WouldDeadLetter(job, processErr)}
	return result, a.Queue.Retry(job, processErr)
}

type errString string

func (e errString) Error() string { return string(e) }

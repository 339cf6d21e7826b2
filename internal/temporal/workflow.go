package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
	},
}

// IngestDrainWorkflow lists pending ingest-queue jobs and claims,
// ingests, and completes (or retries/dead-letters) each one. It runs
// both on the periodic Schedule (DrainScheduleID) and ad-hoc at Stop
// events (DrainWorkflowID), sharing the same logic either way.
func IngestDrainWorkflow(ctx workflow.Context) (DrainSummary, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	var acts *Activities

	var summary DrainSummary

	var refs []JobRef
	if err := workflow.ExecuteActivity(ctx, acts.ListPendingActivity).Get(ctx, &refs); err != nil {
		return summary, err
	}

	for _, ref := range refs {
		var claimed ClaimResult
		if err := workflow.ExecuteActivity(ctx, acts.ClaimJobActivity, ref).Get(ctx, &claimed); err != nil {
			return summary, err
		}
		if !claimed.Claimed {
			continue
		}
		job := claimed.Job

		ingestErr := workflow.ExecuteActivity(ctx, acts.IngestJobActivity, job).Get(ctx, nil)
		if ingestErr != nil {
			var retried RetryResult
			if err := workflow.ExecuteActivity(ctx, acts.RetryJobActivity, job, ingestErr.Error()).Get(ctx, &retried); err != nil {
				return summary, err
			}
			if retried.Dead {
				summary.Dead++
			} else {
				summary.Retried++
			}
			continue
		}

		if err := workflow.ExecuteActivity(ctx, acts.CompleteJobActivity, job).Get(ctx, nil); err != nil {
			return summary, err
		}
		summary.Processed++
	}

	return summary, nil
}

package temporal

import (
	"context"
	"errors"
	"log"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity-dev/sentry/internal/processor"
	"github.com/antigravity-dev/sentry/internal/queue"
)

// StartWorker connects to Temporal at hostPort and starts the ingest
// task-queue worker, registering IngestDrainWorkflow and its
// activities over proc/q.
func StartWorker(hostPort string, proc *processor.Processor, q *queue.Queue) (client.Client, worker.Worker, error) {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return nil, nil, err
	}

	w := worker.New(c, TaskQueue, worker.Options{})
	acts := &Activities{Processor: proc, Queue: q}

	w.RegisterWorkflow(IngestDrainWorkflow)
	w.RegisterActivity(acts.ListPendingActivity)
	w.RegisterActivity(acts.ClaimJobActivity)
	w.RegisterActivity(acts.IngestJobActivity)
	w.RegisterActivity(acts.CompleteJobActivity)
	w.RegisterActivity(acts.RetryJobActivity)

	if err := w.Start(); err != nil {
		c.Close()
		return nil, nil, err
	}

	log.Printf("temporal worker started on task queue %q", TaskQueue)
	return c, w, nil
}

// EnsureDrainSchedule creates (or leaves in place, if it already
// exists) the periodic Schedule that kicks IngestDrainWorkflow on
// cronSpec. cronSpec empty uses DefaultCronSpec.
func EnsureDrainSchedule(ctx context.Context, c client.Client, cronSpec string) error {
	if cronSpec == "" {
		cronSpec = DefaultCronSpec
	}
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:   DrainScheduleID,
		Spec: client.ScheduleSpec{CronExpressions: []string{cronSpec}},
		Action: &client.ScheduleWorkflowAction{
			ID:        DrainScheduleID + "-run",
			Workflow:  IngestDrainWorkflow,
			TaskQueue: TaskQueue,
		},
	})
	if err != nil {
		var alreadyExists *serviceerror.AlreadyExists
		if errors.As(err, &alreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

// TriggerDrainAdHoc starts an ad-hoc IngestDrainWorkflow execution, for
// the Stop-event call site that wants Temporal's durable retry
// semantics instead of the in-process opportunistic drain. The fixed
// DrainWorkflowID means a still-running drain is reused rather than
// duplicated; that race is expected and treated as success.
func TriggerDrainAdHoc(ctx context.Context, c client.Client) error {
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        DrainWorkflowID,
		TaskQueue: TaskQueue,
	}, IngestDrainWorkflow)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil
		}
		return err
	}
	return nil
}

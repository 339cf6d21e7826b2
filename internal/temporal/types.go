// Package temporal wires the Queue Processor (C10) into a durable
// Temporal workflow: IngestDrainWorkflow claims and ingests pending
// jobs with Temporal's own activity retry policies layered on top of
// (not replacing) the on-disk queue, which remains the crash-safe
// source of truth.
package temporal

const (
	// TaskQueue is the Temporal task queue this worker polls.
	TaskQueue = "sentry-ingest-queue"

	// DrainScheduleID names the recurring Schedule that kicks
	// IngestDrainWorkflow on the periodic cadence.
	DrainScheduleID = "sentry-ingest-drain"

	// DrainWorkflowID is the fixed ID ad-hoc (Stop-event) executions
	// reuse so a workflow already in flight is reused rather than
	// duplicated (Temporal dedupes on workflow ID while one is running).
	DrainWorkflowID = "sentry-ingest-drain-adhoc"

	// DefaultCronSpec is the periodic drain cadence per the ambient
	// queue-processor cadence (~15 minutes).
	DefaultCronSpec = "*/15 * * * *"
)

// JobRef is the minimal activity payload identifying one queued job
// file, since workflow.Context history should carry small values.
type JobRef struct {
	Filename string `json:"filename"`
}

// DrainSummary is returned by IngestDrainWorkflow: counts of jobs
// processed, retried (requeued with backoff), and dead-lettered.
type DrainSummary struct {
	Processed int `json:"processed"`
	Retried   int `json:"retried"`
	Dead      int `json:"dead"`
}

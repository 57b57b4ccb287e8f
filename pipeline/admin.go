package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/storage"
)

// JobView is the queryable read model of a job: progress, partition counts
// and a structured error summary. Available even while processing.
type JobView struct {
	Job     *core.Job
	Counts  storage.StatusCounts
	Summary core.ErrorSummary
	Recent  []core.ErrorRecord
}

// recentErrorCount bounds the most-recent-errors view.
const recentErrorCount = 10

// Admin is the administrative surface of jobs: status queries and reset.
// It needs only the repositories, so status tooling can run without an
// engine.
type Admin struct {
	jobs       storage.JobRepository
	partitions storage.PartitionRepository
	logger     *slog.Logger
}

// NewAdmin creates an Admin over the given repositories.
func NewAdmin(jobs storage.JobRepository, partitions storage.PartitionRepository) *Admin {
	return &Admin{
		jobs:       jobs,
		partitions: partitions,
		logger:     slog.Default().With("component", "pipeline-admin"),
	}
}

// Status returns the job's current view.
func (a *Admin) Status(ctx context.Context, jobID core.ID) (*JobView, error) {
	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	counts, err := a.partitions.CountByStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobView{
		Job:     job,
		Counts:  counts,
		Summary: job.Errors.Summary(),
		Recent:  job.Errors.MostRecent(recentErrorCount),
	}, nil
}

// RecomputeProgress re-derives a job's completion percentage and status
// from its current partition counts and persists the result. Called after
// out-of-band partition status changes, which bypass the engines'
// per-claim accounting.
func (a *Admin) RecomputeProgress(ctx context.Context, jobID core.ID) (*core.Job, error) {
	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	counts, err := a.partitions.CountByStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ApplyProgress(job, counts)
	return a.jobs.UpdateJob(ctx, job)
}

// Reset reverts a job for re-execution: every partition back to pending,
// completion zeroed, error state cleared, pipeline stages rewound.
// Partition payloads and chunk structure are preserved. Rejected while the
// job is processing, to avoid races with in-flight claims.
func (a *Admin) Reset(ctx context.Context, jobID core.ID) error {
	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == core.JobStatusProcessing {
		return fmt.Errorf("%w: job %d", core.ErrResetWhileProcessing, jobID)
	}

	if err := a.partitions.ResetAll(ctx, jobID); err != nil {
		return err
	}

	job.Status = core.JobStatusPending
	job.CompletionPercentage = 0
	job.ExecutionStart = time.Time{}
	job.ExecutionEnd = time.Time{}
	job.Errors.Clear()
	job.Pipeline = core.NewPipelineState()

	_, err = a.jobs.UpdateJob(ctx, job)
	if err == nil {
		a.logger.Info("job reset", "job_id", jobID)
	}
	return err
}

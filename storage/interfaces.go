package storage

import (
	"context"

	"github.com/poiesic/graphmill/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// StatusCounts aggregates partition counts by status for one job.
type StatusCounts struct {
	Pending    int
	Processing int
	Done       int
	Error      int
}

// Total returns the number of partitions across all statuses.
func (c StatusCounts) Total() int {
	return c.Pending + c.Processing + c.Done + c.Error
}

// Terminal returns the number of partitions in a terminal status.
func (c StatusCounts) Terminal() int {
	return c.Done + c.Error
}

// JobRepository provides operations for managing jobs.
type JobRepository interface {
	Repository

	// AddJob persists a new job. For jobs with ID=0, generates a new ID
	// from sequence and sets InsertedAt. Returns the job with generated
	// ID and timestamps populated.
	AddJob(ctx context.Context, job *core.Job) (*core.Job, error)

	// UpdateJob updates an existing job, refreshing UpdatedAt.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.Job) (*core.Job, error)

	// GetJob retrieves a single job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.Job, error)

	// ListJobs retrieves up to limit jobs, most recently inserted first.
	ListJobs(ctx context.Context, limit int) ([]*core.Job, error)
}

// PartitionRepository provides operations for managing partitions.
// Claim is the sole concurrency-safety mechanism for partition ownership:
// at most one worker ever transitions a given partition out of pending.
type PartitionRepository interface {
	Repository

	// AddPartitions persists new partitions. For partitions with ID=0,
	// generates new IDs from sequence and sets InsertedAt.
	AddPartitions(ctx context.Context, partitions ...*core.Partition) ([]*core.Partition, error)

	// GetPartition retrieves a single partition by ID.
	// Returns ErrNotFound if the partition doesn't exist.
	GetPartition(ctx context.Context, id core.ID) (*core.Partition, error)

	// ListByJob retrieves partitions belonging to a job, ordered by chunk
	// number, optionally filtered by status. offset/limit paginate the
	// filtered result; limit <= 0 means no limit.
	ListByJob(ctx context.Context, jobID core.ID, status *core.PartitionStatus, offset, limit int) ([]*core.Partition, error)

	// ListPending retrieves up to limit pending partitions of a job,
	// ordered by chunk number. Callers oversample and attempt Claim in
	// order to tolerate races with other workers.
	ListPending(ctx context.Context, jobID core.ID, limit int) ([]*core.Partition, error)

	// Claim atomically transitions a partition from pending to processing.
	// Returns true only if this caller performed the transition; false if
	// the partition was not pending or another worker claimed it first.
	Claim(ctx context.Context, id core.ID) (bool, error)

	// UpdateStatus sets a partition's status. Transitioning to done or
	// error sets ProcessedAt; error also records errorMessage; any other
	// status clears both. Returns the updated partition.
	UpdateStatus(ctx context.Context, id core.ID, status core.PartitionStatus, errorMessage string) (*core.Partition, error)

	// AttachOutput records the payload reference of a partition's output.
	AttachOutput(ctx context.Context, id core.ID, outputRef core.ID) error

	// CountByStatus returns partition counts by status for a job.
	CountByStatus(ctx context.Context, jobID core.ID) (StatusCounts, error)

	// ResetAll reverts every partition of a job to pending, clearing
	// error messages, output refs and processing timestamps. Payloads
	// are preserved.
	ResetAll(ctx context.Context, jobID core.ID) error
}

// PayloadStore persists partition payload documents, keyed by content hash
// so identical payloads share one stored document.
type PayloadStore interface {
	// PutPayload stores a payload document and returns its content-based key.
	PutPayload(ctx context.Context, doc *PayloadDocument) (core.ID, error)

	// GetPayload retrieves a payload document by key.
	// Returns ErrNotFound if no payload exists under the key.
	GetPayload(ctx context.Context, ref core.ID) (*PayloadDocument, error)
}

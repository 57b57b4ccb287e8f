package pipeline

import (
	"testing"

	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/storage"
	"github.com/stretchr/testify/assert"
)

func TestApplyProgressPercentage(t *testing.T) {
	job := &core.Job{Status: core.JobStatusProcessing}

	ApplyProgress(job, storage.StatusCounts{Pending: 2, Done: 1})
	assert.Equal(t, 33, job.CompletionPercentage)
	assert.Equal(t, core.JobStatusProcessing, job.Status)

	ApplyProgress(job, storage.StatusCounts{Pending: 1, Done: 1, Error: 1})
	assert.Equal(t, 66, job.CompletionPercentage)
}

func TestApplyProgressMonotonic(t *testing.T) {
	job := &core.Job{Status: core.JobStatusProcessing}

	previous := 0
	steps := []storage.StatusCounts{
		{Pending: 10},
		{Pending: 7, Processing: 2, Done: 1},
		{Pending: 4, Processing: 2, Done: 3, Error: 1},
		{Processing: 2, Done: 6, Error: 2},
		{Done: 8, Error: 2},
	}
	for _, counts := range steps {
		ApplyProgress(job, counts)
		assert.GreaterOrEqual(t, job.CompletionPercentage, previous)
		previous = job.CompletionPercentage
	}
	assert.Equal(t, 100, job.CompletionPercentage)
}

func TestApplyProgressStatusDerivation(t *testing.T) {
	t.Run("all done", func(t *testing.T) {
		job := &core.Job{Status: core.JobStatusProcessing}
		ApplyProgress(job, storage.StatusCounts{Done: 3})
		assert.Equal(t, core.JobStatusDone, job.Status)
		assert.False(t, job.ExecutionEnd.IsZero())
	})

	t.Run("all errored", func(t *testing.T) {
		job := &core.Job{Status: core.JobStatusProcessing}
		ApplyProgress(job, storage.StatusCounts{Error: 3})
		assert.Equal(t, core.JobStatusError, job.Status)
	})

	t.Run("partial success is done", func(t *testing.T) {
		job := &core.Job{Status: core.JobStatusProcessing}
		ApplyProgress(job, storage.StatusCounts{Done: 2, Error: 1})
		assert.Equal(t, core.JobStatusDone, job.Status)
	})

	t.Run("in flight stays processing", func(t *testing.T) {
		job := &core.Job{Status: core.JobStatusProcessing}
		ApplyProgress(job, storage.StatusCounts{Pending: 1, Processing: 1, Done: 1})
		assert.Equal(t, core.JobStatusProcessing, job.Status)
		assert.True(t, job.ExecutionEnd.IsZero())
	})

	t.Run("no partitions leaves status unchanged", func(t *testing.T) {
		job := &core.Job{Status: core.JobStatusPending}
		ApplyProgress(job, storage.StatusCounts{})
		assert.Equal(t, core.JobStatusPending, job.Status)
		assert.Equal(t, 0, job.CompletionPercentage)
	})
}

func TestApplyProgressExecutionEndSetOnce(t *testing.T) {
	job := &core.Job{Status: core.JobStatusProcessing}

	ApplyProgress(job, storage.StatusCounts{Done: 2})
	first := job.ExecutionEnd
	assert.False(t, first.IsZero())

	ApplyProgress(job, storage.StatusCounts{Done: 2})
	assert.Equal(t, first, job.ExecutionEnd)
}

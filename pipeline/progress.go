package pipeline

import (
	"time"

	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/storage"
)

// ApplyProgress recomputes a job's completion percentage and derives its
// status from partition counts. The execution end timestamp is set exactly
// once, on the first transition into a terminal status.
//
// Status derivation: done if all partitions terminal and none errored;
// error if all terminal and none succeeded; done (partial success) if all
// terminal with a mix; processing if some but not all are terminal;
// otherwise unchanged.
func ApplyProgress(job *core.Job, counts storage.StatusCounts) {
	job.CompletionPercentage = core.CompletionPercentage(counts.Done, counts.Error, counts.Total())

	total := counts.Total()
	if total == 0 {
		return
	}

	switch {
	case counts.Terminal() == total:
		if counts.Done == 0 {
			job.Status = core.JobStatusError
		} else {
			job.Status = core.JobStatusDone
		}
		if job.ExecutionEnd.IsZero() {
			job.ExecutionEnd = time.Now().UTC()
		}
	case counts.Terminal() > 0 || counts.Processing > 0:
		job.Status = core.JobStatusProcessing
	}
}

package server

import (
	"time"

	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/pipeline"
)

type errorResponse struct {
	Error string `json:"error"`
}

type countsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Error      int `json:"error"`
	Total      int `json:"total"`
}

type errorSummaryResponse struct {
	PipelineErrors    int `json:"pipeline_errors"`
	SchemaErrors      int `json:"schema_errors"`
	DestinationErrors int `json:"destination_errors"`
	ValidationErrors  int `json:"validation_errors"`
	FatalErrors       int `json:"fatal_errors"`
	Total             int `json:"total"`
}

type errorRecordResponse struct {
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Fatal      bool      `json:"fatal,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type jobResponse struct {
	ID                   uint64                `json:"id"`
	Kind                 string                `json:"kind"`
	Status               string                `json:"status"`
	CompletionPercentage int                   `json:"completion_percentage"`
	CurrentStage         string                `json:"current_stage,omitempty"`
	ExecutionStart       *time.Time            `json:"execution_start,omitempty"`
	ExecutionEnd         *time.Time            `json:"execution_end,omitempty"`
	Counts               countsResponse        `json:"partition_counts"`
	ErrorSummary         errorSummaryResponse  `json:"error_summary"`
	RecentErrors         []errorRecordResponse `json:"recent_errors,omitempty"`
}

func newJobResponse(view *pipeline.JobView) jobResponse {
	job := view.Job

	resp := jobResponse{
		ID:                   uint64(job.Id),
		Kind:                 job.Kind.String(),
		Status:               string(job.Status),
		CompletionPercentage: job.CompletionPercentage,
		Counts: countsResponse{
			Pending:    view.Counts.Pending,
			Processing: view.Counts.Processing,
			Done:       view.Counts.Done,
			Error:      view.Counts.Error,
			Total:      view.Counts.Total(),
		},
		ErrorSummary: errorSummaryResponse{
			PipelineErrors:    view.Summary.PipelineErrors,
			SchemaErrors:      view.Summary.SchemaErrors,
			DestinationErrors: view.Summary.DestinationErrors,
			ValidationErrors:  view.Summary.ValidationErrors,
			FatalErrors:       view.Summary.FatalErrors,
			Total:             view.Summary.Total,
		},
	}
	if stage := job.Pipeline.CurrentStage(); stage != nil {
		resp.CurrentStage = string(stage.Name)
	}
	if !job.ExecutionStart.IsZero() {
		start := job.ExecutionStart
		resp.ExecutionStart = &start
	}
	if !job.ExecutionEnd.IsZero() {
		end := job.ExecutionEnd
		resp.ExecutionEnd = &end
	}
	for _, record := range view.Recent {
		resp.RecentErrors = append(resp.RecentErrors, errorRecordResponse{
			Category:   record.Category,
			Message:    record.Message,
			Fatal:      record.Fatal,
			OccurredAt: record.OccurredAt,
		})
	}
	return resp
}

type partitionResponse struct {
	ID           uint64     `json:"id"`
	JobID        uint64     `json:"job_id"`
	Status       string     `json:"status"`
	ChunkNumber  int        `json:"chunk_number"`
	TotalChunks  int        `json:"total_chunks"`
	RecordCount  int        `json:"record_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

func newPartitionResponse(p *core.Partition) partitionResponse {
	resp := partitionResponse{
		ID:           uint64(p.Id),
		JobID:        uint64(p.JobId),
		Status:       string(p.Status),
		ChunkNumber:  p.ChunkNumber,
		TotalChunks:  p.TotalChunks,
		RecordCount:  p.RecordCount,
		ErrorMessage: p.ErrorMessage,
	}
	if !p.ProcessedAt.IsZero() {
		processed := p.ProcessedAt
		resp.ProcessedAt = &processed
	}
	return resp
}

type partitionListResponse struct {
	JobID      uint64              `json:"job_id"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	Partitions []partitionResponse `json:"partitions"`
}

type updatePartitionRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

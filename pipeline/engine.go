// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/graphmill/ai"
	"github.com/poiesic/graphmill/chunk"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/cypher"
	"github.com/poiesic/graphmill/graph"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	"github.com/poiesic/graphmill/tenant"
)

const (
	// defaultConcurrency bounds in-flight partitions per job.
	defaultConcurrency = 5

	// defaultClaimBatch oversamples the pending list so claim races with
	// other workers cost a skip, not a stall.
	defaultClaimBatch = 5
)

// StoreFactory opens an authenticated destination store session for a tenant.
type StoreFactory func(ctx context.Context, tc *tenant.Context) (graph.Store, error)

// Engine runs ingestion jobs end to end: chunking, schema resolution,
// partition processing against the destination store, and progress
// aggregation. One engine serves many jobs; per-job state lives on the
// job and partition records.
type Engine struct {
	*Admin

	jobs       storage.JobRepository
	partitions storage.PartitionRepository
	payloads   storage.PayloadStore
	prompts    prompts.Provider
	provider   ai.AIProvider
	stores     StoreFactory
	resolver   *SchemaResolver
	chunker    *chunk.Chunker
	pool       *ants.Pool
	claimBatch int
	logger     *slog.Logger

	// mu guards mutations of an in-flight job's error ledgers, which
	// concurrent partition workers append to.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine) error

// WithConcurrency sets the maximum number of in-flight partitions.
// Default is 5, with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithClaimBatch sets how many pending partitions each claim round fetches.
func WithClaimBatch(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		e.claimBatch = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates an ingestion engine.
func NewEngine(
	jobs storage.JobRepository,
	partitions storage.PartitionRepository,
	payloads storage.PayloadStore,
	promptProvider prompts.Provider,
	provider ai.AIProvider,
	stores StoreFactory,
	opts ...Option,
) (*Engine, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if partitions == nil {
		return nil, ErrPartitionRepositoryRequired
	}
	if payloads == nil {
		return nil, ErrPayloadStoreRequired
	}
	if promptProvider == nil {
		return nil, ErrPromptProviderRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if stores == nil {
		return nil, ErrStoreFactoryRequired
	}

	pool, err := ants.NewPool(defaultConcurrency)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Admin:      NewAdmin(jobs, partitions),
		jobs:       jobs,
		partitions: partitions,
		payloads:   payloads,
		prompts:    promptProvider,
		provider:   provider,
		stores:     stores,
		resolver:   NewSchemaResolver(promptProvider, provider.Generator()),
		chunker:    chunk.NewChunker(payloads, partitions),
		pool:       pool,
		claimBatch: defaultClaimBatch,
		logger:     slog.Default().With("component", "pipeline-engine"),
	}

	for _, opt := range opts {
		if optErr := opt(e); optErr != nil {
			e.Release()
			return nil, optErr
		}
	}
	return e, nil
}

// Release releases the worker pool.
// The engine should not be used after calling Release.
func (e *Engine) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// SubmitIngestion creates a pending ingestion job.
func (e *Engine) SubmitIngestion(ctx context.Context, tc *tenant.Context, source, destination, promptName, schemaPrompt string, chunkSize, chunkOverlap int) (*core.Job, error) {
	job := &core.Job{
		Kind:         core.JobKindIngestion,
		TenantID:     tc.ID,
		Source:       source,
		Destination:  destination,
		PromptName:   promptName,
		SchemaPrompt: schemaPrompt,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Status:       core.JobStatusPending,
		Pipeline:     core.NewPipelineState(),
	}
	return e.jobs.AddJob(ctx, job)
}

// RunIngestion executes an ingestion job to completion. Per-partition
// failures are recorded and tolerated; schema-resolution failures and
// connection-level destination failures are job-fatal.
func (e *Engine) RunIngestion(ctx context.Context, tc *tenant.Context, jobID core.ID) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Kind != core.JobKindIngestion {
		return fmt.Errorf("%w: job %d is %s", ErrWrongJobKind, job.Id, job.Kind)
	}

	job.Status = core.JobStatusProcessing
	if job.ExecutionStart.IsZero() {
		job.ExecutionStart = time.Now().UTC()
	}
	if err := e.runStage(ctx, job, core.StageInitialization, func() error { return nil }); err != nil {
		return err
	}

	// Chunking is skipped when partitions already exist (resumed jobs,
	// chained enrichment output).
	counts, err := e.partitions.CountByStatus(ctx, job.Id)
	if err != nil {
		return err
	}
	if err := e.runStage(ctx, job, core.StageChunking, func() error {
		if counts.Total() > 0 {
			return nil
		}
		_, chunkErr := e.chunker.CreatePartitions(ctx, job)
		return chunkErr
	}); err != nil {
		return err
	}

	store, err := e.stores(ctx, tc)
	if err != nil {
		e.failJob(ctx, job, core.StageSchemaGeneration, err)
		return err
	}
	defer store.Close(ctx)

	var schema *core.Schema
	if err := e.runStage(ctx, job, core.StageSchemaGeneration, func() error {
		sample, sampleErr := e.samplePayload(ctx, job.Id)
		if sampleErr != nil {
			return sampleErr
		}
		var resolveErr error
		schema, resolveErr = e.resolver.Resolve(ctx, job, store, sample)
		if resolveErr != nil {
			job.Errors.RecordSchemaError(core.SchemaErrorGeneration, resolveErr.Error())
		}
		return resolveErr
	}); err != nil {
		return err
	}

	if err := e.runStage(ctx, job, core.StageProcessing, func() error {
		return e.processPartitions(ctx, job, store, schema)
	}); err != nil {
		return err
	}

	// Destination writes happen per partition; the final stage verifies
	// terminal state and locks in the derived job status.
	return e.runStage(ctx, job, core.StageGraphCreation, func() error {
		final, countErr := e.partitions.CountByStatus(ctx, job.Id)
		if countErr != nil {
			return countErr
		}
		ApplyProgress(job, final)
		e.logger.Info("ingestion finished",
			"job_id", job.Id,
			"status", job.Status,
			"done", final.Done,
			"errors", final.Error)
		return nil
	})
}

// runStage brackets fn with pipeline stage transitions and persists the
// job after each transition. A failing fn marks the stage failed, records
// a fatal pipeline error and moves the job to error.
func (e *Engine) runStage(ctx context.Context, job *core.Job, stage core.StageName, fn func() error) error {
	if err := job.Pipeline.StartStage(stage); err != nil {
		return err
	}
	if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}

	if err := fn(); err != nil {
		e.failJob(ctx, job, stage, err)
		return err
	}

	if err := job.Pipeline.CompleteStage(stage); err != nil {
		return err
	}
	_, err := e.jobs.UpdateJob(ctx, job)
	return err
}

// failJob records a fatal pipeline error, fails the stage and moves the
// job to error.
func (e *Engine) failJob(ctx context.Context, job *core.Job, stage core.StageName, cause error) {
	e.mu.Lock()
	job.Errors.RecordPipelineError(stage, cause.Error(), true)
	if errors.Is(cause, graph.ErrConnection) {
		job.Errors.RecordDestinationError(core.DestinationErrorConnection, cause.Error(), "")
	}
	job.Pipeline.FailStage(stage)
	job.Status = core.JobStatusError
	if job.ExecutionEnd.IsZero() {
		job.ExecutionEnd = time.Now().UTC()
	}
	e.mu.Unlock()

	if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
		e.logger.Error("failed to persist job failure", "job_id", job.Id, "err", err)
	}
	e.logger.Error("job failed", "job_id", job.Id, "stage", stage, "err", cause)
}

// samplePayload loads the first partition's payload for schema generation.
func (e *Engine) samplePayload(ctx context.Context, jobID core.ID) (*storage.PayloadDocument, error) {
	partitions, err := e.partitions.ListByJob(ctx, jobID, nil, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("job %d has no partitions", jobID)
	}
	return e.payloads.GetPayload(ctx, partitions[0].InputRef)
}

// processPartitions drains the job's pending partitions through the claim
// protocol. Each round fetches an oversampled candidate batch, attempts to
// claim each in order, and processes claimed partitions on the pool.
// Connection-level failures abort the loop; everything else is recorded on
// the failing partition.
func (e *Engine) processPartitions(ctx context.Context, job *core.Job, store graph.Store, schema *core.Schema) error {
	for {
		pending, err := e.partitions.ListPending(ctx, job.Id, e.claimBatch)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		var (
			wg       sync.WaitGroup
			fatalMu  sync.Mutex
			fatalErr error
			claimed  int
		)

		for _, p := range pending {
			ok, claimErr := e.partitions.Claim(ctx, p.Id)
			if claimErr != nil {
				return claimErr
			}
			if !ok {
				// Another worker took it; skip without stalling
				continue
			}
			claimed++

			partition := p
			wg.Add(1)
			submitErr := e.pool.Submit(func() {
				defer wg.Done()
				if procErr := e.processPartition(ctx, job, store, schema, partition); procErr != nil && errors.Is(procErr, graph.ErrConnection) {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = procErr
					}
					fatalMu.Unlock()
				}
			})
			if submitErr != nil {
				wg.Done()
				return submitErr
			}
		}
		wg.Wait()

		if fatalErr != nil {
			return fatalErr
		}

		counts, err := e.partitions.CountByStatus(ctx, job.Id)
		if err != nil {
			return err
		}
		e.mu.Lock()
		ApplyProgress(job, counts)
		e.mu.Unlock()
		if _, err := e.jobs.UpdateJob(ctx, job); err != nil {
			return err
		}

		if claimed == 0 {
			// Every candidate was taken by another worker; let them finish
			return nil
		}
	}
}

// processPartition runs one claimed partition: load payload, render prompt,
// invoke the LLM, normalize and execute the generated statements, persist
// output and transition partition status.
func (e *Engine) processPartition(ctx context.Context, job *core.Job, store graph.Store, schema *core.Schema, partition *core.Partition) error {
	payload, err := e.payloads.GetPayload(ctx, partition.InputRef)
	if err != nil {
		return e.partitionFailed(ctx, job, partition, fmt.Errorf("loading payload: %w", err))
	}

	prompt, err := e.prompts.GetPrompt(job.PromptName)
	if err != nil {
		return e.partitionFailed(ctx, job, partition, err)
	}

	userPrompt, err := payloadPromptContext(payload)
	if err != nil {
		return e.partitionFailed(ctx, job, partition, err)
	}

	response, err := e.provider.Generator().GenerateText(ctx, ai.GenerationRequest{
		Model:        prompt.Model,
		SystemPrompt: prompt.Render(map[string]string{"schema": schema.PromptText()}),
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return e.partitionFailed(ctx, job, partition, fmt.Errorf("llm call: %w", err))
	}

	statements := cypher.Normalize(response)
	if len(statements) == 0 {
		return e.partitionFailed(ctx, job, partition, fmt.Errorf("model produced no statements"))
	}

	results, err := store.ExecuteStatements(ctx, statements)
	if err != nil {
		e.partitionFailed(ctx, job, partition, err)
		return err
	}

	succeeded := 0
	for _, result := range results {
		if result.Err != nil {
			e.mu.Lock()
			job.Errors.RecordDestinationError(core.DestinationErrorQuery, result.Err.Error(), result.Statement)
			e.mu.Unlock()
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return e.partitionFailed(ctx, job, partition, fmt.Errorf("all %d statements failed", len(results)))
	}

	if err := e.attachOutput(ctx, partition, statements, results); err != nil {
		e.logger.Warn("failed to persist partition output", "partition_id", partition.Id, "err", err)
	}

	if _, err := e.partitions.UpdateStatus(ctx, partition.Id, core.PartitionStatusDone, ""); err != nil {
		return err
	}
	return nil
}

// partitionFailed marks a partition errored with the captured message.
// The job keeps processing its remaining partitions.
func (e *Engine) partitionFailed(ctx context.Context, job *core.Job, partition *core.Partition, cause error) error {
	e.mu.Lock()
	job.Errors.RecordPipelineError(core.StageProcessing, fmt.Sprintf("partition %d: %v", partition.Id, cause), false)
	e.mu.Unlock()

	if _, err := e.partitions.UpdateStatus(ctx, partition.Id, core.PartitionStatusError, cause.Error()); err != nil {
		e.logger.Error("failed to mark partition errored", "partition_id", partition.Id, "err", err)
	}
	e.logger.Warn("partition failed", "job_id", job.Id, "partition_id", partition.Id, "err", cause)
	return nil
}

// attachOutput persists the executed statements and counters as the
// partition's output payload.
func (e *Engine) attachOutput(ctx context.Context, partition *core.Partition, statements []string, results []graph.StatementResult) error {
	nodes, relationships, failed := 0, 0, 0
	for _, r := range results {
		nodes += r.NodesCreated
		relationships += r.RelationshipsCreated
		if r.Err != nil {
			failed++
		}
	}

	data := make([]json.RawMessage, 0, len(statements))
	for _, stmt := range statements {
		encoded, err := json.Marshal(stmt)
		if err != nil {
			return err
		}
		data = append(data, encoded)
	}

	doc := storage.NewRecordPayload(data, map[string]any{
		"nodes_created":         nodes,
		"relationships_created": relationships,
		"failed_statements":     failed,
	})

	ref, err := e.payloads.PutPayload(ctx, doc)
	if err != nil {
		return err
	}
	return e.partitions.AttachOutput(ctx, partition.Id, ref)
}

// payloadPromptContext renders a payload document for the user prompt:
// the raw text for text chunks, pretty JSON for record chunks.
func payloadPromptContext(payload *storage.PayloadDocument) (string, error) {
	if text := payload.Text(); text != "" {
		return text, nil
	}
	encoded, err := json.MarshalIndent(payload.Data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

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


// Package enrich runs enrichment jobs: a tabular source is split into
// record batches, each batch is transformed by one LLM call, and the
// outputs can be combined into a single file or chained into a new
// ingestion job.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/graphmill/ai"
	"github.com/poiesic/graphmill/chunk"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/jsonrepair"
	"github.com/poiesic/graphmill/pipeline"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	"github.com/poiesic/graphmill/tenant"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// defaultParallelism bounds in-flight partitions per job.
	defaultParallelism = 5

	defaultClaimBatch = 5

	// metaArrayField records the object field a JSON source's records were
	// read from, so combined output can restore the original shape.
	metaArrayField = "array_field"

	// metaChainedFrom links a chained ingestion job back to the enrichment
	// job that produced its partitions.
	metaChainedFrom = "chained_from"
)

// ErrNotTabular is returned when an enrichment source is not a record
// format (json, csv, tsv, xlsx).
var ErrNotTabular = errors.New("enrich: source is not tabular")

// ErrJobNotFinished is returned when combining or chaining is requested
// before the enrichment job reached a terminal status.
var ErrJobNotFinished = errors.New("enrich: job has not finished")

// Orchestrator runs enrichment jobs end to end. One orchestrator serves
// many jobs; per-job state lives on the job and partition records.
type Orchestrator struct {
	jobs       storage.JobRepository
	partitions storage.PartitionRepository
	payloads   storage.PayloadStore
	prompts    prompts.Provider
	provider   ai.AIProvider
	chunker    *chunk.Chunker
	pool       *ants.Pool
	claimBatch int
	schema     *jsonschema.Schema
	logger     *slog.Logger

	// mu guards mutations of an in-flight job's error ledgers, which
	// concurrent partition workers append to.
	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithParallelism sets the maximum number of in-flight partitions.
// Default is 5, with a minimum of 1.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			n = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithClaimBatch sets how many pending partitions each claim round fetches.
func WithClaimBatch(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			n = 1
		}
		o.claimBatch = n
		return nil
	}
}

// WithRecordSchema sets a JSON schema every output record is validated
// against. Mismatches are recorded as validation errors; they do not fail
// the partition.
func WithRecordSchema(raw string) Option {
	return func(o *Orchestrator) error {
		schema, err := jsonschema.CompileString("record.schema.json", raw)
		if err != nil {
			return err
		}
		o.schema = schema
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an enrichment orchestrator.
func NewOrchestrator(
	jobs storage.JobRepository,
	partitions storage.PartitionRepository,
	payloads storage.PayloadStore,
	promptProvider prompts.Provider,
	provider ai.AIProvider,
	opts ...Option,
) (*Orchestrator, error) {
	if jobs == nil {
		return nil, pipeline.ErrJobRepositoryRequired
	}
	if partitions == nil {
		return nil, pipeline.ErrPartitionRepositoryRequired
	}
	if payloads == nil {
		return nil, pipeline.ErrPayloadStoreRequired
	}
	if promptProvider == nil {
		return nil, pipeline.ErrPromptProviderRequired
	}
	if provider == nil {
		return nil, pipeline.ErrAIProviderRequired
	}

	pool, err := ants.NewPool(defaultParallelism)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		jobs:       jobs,
		partitions: partitions,
		payloads:   payloads,
		prompts:    promptProvider,
		provider:   provider,
		chunker:    chunk.NewChunker(payloads, partitions),
		pool:       pool,
		claimBatch: defaultClaimBatch,
		logger:     slog.Default().With("component", "enrich-orchestrator"),
	}

	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}
	return o, nil
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// SubmitEnrichment creates a pending enrichment job. batchSize is the
// number of records sent to the LLM per call.
func (o *Orchestrator) SubmitEnrichment(ctx context.Context, tc *tenant.Context, source, promptName string, batchSize int) (*core.Job, error) {
	job := &core.Job{
		Kind:       core.JobKindEnrichment,
		TenantID:   tc.ID,
		Source:     source,
		PromptName: promptName,
		ChunkSize:  batchSize,
		Status:     core.JobStatusPending,
		Pipeline:   core.NewPipelineState(),
	}
	return o.jobs.AddJob(ctx, job)
}

// Run executes an enrichment job to completion. Per-partition failures are
// recorded and tolerated; a partition's records fail locally, the job keeps
// going.
func (o *Orchestrator) Run(ctx context.Context, tc *tenant.Context, jobID core.ID) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Kind != core.JobKindEnrichment {
		return fmt.Errorf("%w: job %d is %s", pipeline.ErrWrongJobKind, job.Id, job.Kind)
	}

	job.Status = core.JobStatusProcessing
	if job.ExecutionStart.IsZero() {
		job.ExecutionStart = time.Now().UTC()
	}
	if err := o.runStage(ctx, job, core.StageInitialization, func() error { return nil }); err != nil {
		return err
	}

	counts, err := o.partitions.CountByStatus(ctx, job.Id)
	if err != nil {
		return err
	}
	if err := o.runStage(ctx, job, core.StageChunking, func() error {
		if counts.Total() > 0 {
			return nil
		}
		return o.createBatches(ctx, job)
	}); err != nil {
		return err
	}

	// Enrichment has no destination schema to resolve.
	if err := o.runStage(ctx, job, core.StageSchemaGeneration, func() error { return nil }); err != nil {
		return err
	}

	if err := o.runStage(ctx, job, core.StageProcessing, func() error {
		return o.processPartitions(ctx, job)
	}); err != nil {
		return err
	}

	return o.runStage(ctx, job, core.StageGraphCreation, func() error {
		final, countErr := o.partitions.CountByStatus(ctx, job.Id)
		if countErr != nil {
			return countErr
		}
		pipeline.ApplyProgress(job, final)
		o.logger.Info("enrichment finished",
			"job_id", job.Id,
			"status", job.Status,
			"done", final.Done,
			"errors", final.Error)
		return nil
	})
}

// createBatches chunks the tabular source into batch-sized partitions and
// remembers the source's JSON shape for combined output.
func (o *Orchestrator) createBatches(ctx context.Context, job *core.Job) error {
	format := chunk.DetectFormat(job.Source)
	switch format {
	case chunk.FormatJSON, chunk.FormatCSV, chunk.FormatTSV, chunk.FormatXLSX:
	default:
		return fmt.Errorf("%w: %s", ErrNotTabular, job.Source)
	}

	if format == chunk.FormatJSON {
		data, err := os.ReadFile(job.Source)
		if err != nil {
			return err
		}
		if field, ok := chunk.ArrayField(data); ok {
			if job.Metadata == nil {
				job.Metadata = map[string]string{}
			}
			job.Metadata[metaArrayField] = field
		}
	}

	_, err := o.chunker.CreatePartitions(ctx, job)
	return err
}

// runStage brackets fn with pipeline stage transitions and persists the
// job after each transition.
func (o *Orchestrator) runStage(ctx context.Context, job *core.Job, stage core.StageName, fn func() error) error {
	if err := job.Pipeline.StartStage(stage); err != nil {
		return err
	}
	if _, err := o.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}

	if err := fn(); err != nil {
		o.failJob(ctx, job, stage, err)
		return err
	}

	if err := job.Pipeline.CompleteStage(stage); err != nil {
		return err
	}
	_, err := o.jobs.UpdateJob(ctx, job)
	return err
}

func (o *Orchestrator) failJob(ctx context.Context, job *core.Job, stage core.StageName, cause error) {
	o.mu.Lock()
	job.Errors.RecordPipelineError(stage, cause.Error(), true)
	job.Pipeline.FailStage(stage)
	job.Status = core.JobStatusError
	if job.ExecutionEnd.IsZero() {
		job.ExecutionEnd = time.Now().UTC()
	}
	o.mu.Unlock()

	if _, err := o.jobs.UpdateJob(ctx, job); err != nil {
		o.logger.Error("failed to persist job failure", "job_id", job.Id, "err", err)
	}
	o.logger.Error("job failed", "job_id", job.Id, "stage", stage, "err", cause)
}

// processPartitions drains the job's pending partitions through the claim
// protocol, one LLM call per claimed partition.
func (o *Orchestrator) processPartitions(ctx context.Context, job *core.Job) error {
	for {
		pending, err := o.partitions.ListPending(ctx, job.Id, o.claimBatch)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		var (
			wg      sync.WaitGroup
			claimed int
		)
		for _, p := range pending {
			ok, claimErr := o.partitions.Claim(ctx, p.Id)
			if claimErr != nil {
				return claimErr
			}
			if !ok {
				continue
			}
			claimed++

			partition := p
			wg.Add(1)
			submitErr := o.pool.Submit(func() {
				defer wg.Done()
				o.processPartition(ctx, job, partition)
			})
			if submitErr != nil {
				wg.Done()
				return submitErr
			}
		}
		wg.Wait()

		counts, err := o.partitions.CountByStatus(ctx, job.Id)
		if err != nil {
			return err
		}
		o.mu.Lock()
		pipeline.ApplyProgress(job, counts)
		o.mu.Unlock()
		if _, err := o.jobs.UpdateJob(ctx, job); err != nil {
			return err
		}

		if claimed == 0 {
			return nil
		}
	}
}

// processPartition runs one claimed batch: serialize its records, invoke
// the LLM once, repair and reconcile the returned records, validate them,
// and persist the output.
func (o *Orchestrator) processPartition(ctx context.Context, job *core.Job, partition *core.Partition) {
	payload, err := o.payloads.GetPayload(ctx, partition.InputRef)
	if err != nil {
		o.partitionFailed(ctx, job, partition, fmt.Errorf("loading payload: %w", err))
		return
	}

	prompt, err := o.prompts.GetPrompt(job.PromptName)
	if err != nil {
		o.partitionFailed(ctx, job, partition, err)
		return
	}

	batch, err := json.MarshalIndent(payload.Data, "", "  ")
	if err != nil {
		o.partitionFailed(ctx, job, partition, err)
		return
	}

	response, err := o.provider.Generator().GenerateText(ctx, ai.GenerationRequest{
		Model:        prompt.Model,
		SystemPrompt: prompt.SystemPrompt,
		UserPrompt:   string(batch),
		JSONMode:     true,
	})
	if err != nil {
		o.partitionFailed(ctx, job, partition, fmt.Errorf("llm call: %w", err))
		return
	}

	records, err := jsonrepair.ParseArray(response)
	if err != nil {
		o.mu.Lock()
		job.Errors.RecordValidationError(core.ValidationErrorFormat, "response", "json array", "unparsable", err.Error())
		o.mu.Unlock()
		o.partitionFailed(ctx, job, partition, err)
		return
	}

	if len(records) != partition.RecordCount {
		o.mu.Lock()
		job.Errors.RecordValidationError(core.ValidationErrorConstraint,
			"record_count",
			strconv.Itoa(partition.RecordCount),
			strconv.Itoa(len(records)),
			fmt.Sprintf("partition %d returned %d of %d records", partition.Id, len(records), partition.RecordCount))
		o.mu.Unlock()
	}
	records = jsonrepair.ConformCount(records, partition.RecordCount)

	succeeded := o.validateRecords(job, partition, records)

	doc := storage.NewRecordPayload(records, map[string]any{
		"chunk_number":                partition.ChunkNumber,
		"total_chunks":                partition.TotalChunks,
		storage.MetaTotalRecords:      partition.RecordCount,
		storage.MetaSuccessfulRecords: succeeded,
		storage.MetaFailedRecords:     partition.RecordCount - succeeded,
	})
	ref, err := o.payloads.PutPayload(ctx, doc)
	if err != nil {
		o.partitionFailed(ctx, job, partition, err)
		return
	}
	if err := o.partitions.AttachOutput(ctx, partition.Id, ref); err != nil {
		o.partitionFailed(ctx, job, partition, err)
		return
	}

	if _, err := o.partitions.UpdateStatus(ctx, partition.Id, core.PartitionStatusDone, ""); err != nil {
		o.logger.Error("failed to mark partition done", "partition_id", partition.Id, "err", err)
	}
}

// validateRecords counts usable output records. Placeholders count as
// failed; with a configured record schema, mismatching records are
// recorded as validation errors and count as failed too.
func (o *Orchestrator) validateRecords(job *core.Job, partition *core.Partition, records []json.RawMessage) int {
	succeeded := 0
	for i, record := range records {
		if string(record) == jsonrepair.PlaceholderRecord {
			continue
		}
		if o.schema != nil {
			var value any
			if err := json.Unmarshal(record, &value); err != nil {
				continue
			}
			if err := o.schema.Validate(value); err != nil {
				o.mu.Lock()
				job.Errors.RecordValidationError(core.ValidationErrorFormat,
					fmt.Sprintf("partition %d record %d", partition.Id, i),
					"record schema", "mismatch", err.Error())
				o.mu.Unlock()
				continue
			}
		}
		succeeded++
	}
	return succeeded
}

func (o *Orchestrator) partitionFailed(ctx context.Context, job *core.Job, partition *core.Partition, cause error) {
	o.mu.Lock()
	job.Errors.RecordPipelineError(core.StageProcessing, fmt.Sprintf("partition %d: %v", partition.Id, cause), false)
	o.mu.Unlock()

	if _, err := o.partitions.UpdateStatus(ctx, partition.Id, core.PartitionStatusError, cause.Error()); err != nil {
		o.logger.Error("failed to mark partition errored", "partition_id", partition.Id, "err", err)
	}
	o.logger.Warn("partition failed", "job_id", job.Id, "partition_id", partition.Id, "err", cause)
}

// CombineOutputs gathers every partition's output records in chunk order.
// Errored partitions contribute placeholder records so the combined count
// always matches the input count.
func (o *Orchestrator) CombineOutputs(ctx context.Context, jobID core.ID) (*storage.PayloadDocument, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job %d is %s", ErrJobNotFinished, jobID, job.Status)
	}

	partitions, err := o.partitions.ListByJob(ctx, jobID, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	var combined []json.RawMessage
	total, succeeded, failed := 0, 0, 0
	for _, p := range partitions {
		total += p.RecordCount
		if p.OutputRef == 0 {
			for range p.RecordCount {
				combined = append(combined, json.RawMessage(jsonrepair.PlaceholderRecord))
			}
			failed += p.RecordCount
			continue
		}

		doc, getErr := o.payloads.GetPayload(ctx, p.OutputRef)
		if getErr != nil {
			return nil, getErr
		}
		combined = append(combined, doc.Data...)
		succeeded += metaInt(doc.Metadata, storage.MetaSuccessfulRecords)
		failed += metaInt(doc.Metadata, storage.MetaFailedRecords)
	}

	return storage.NewRecordPayload(combined, map[string]any{
		storage.MetaTotalRecords:      total,
		storage.MetaSuccessfulRecords: succeeded,
		storage.MetaFailedRecords:     failed,
	}), nil
}

// WriteCombined writes the combined output to a file. JSON sources whose
// records lived under an object field keep that field name; everything
// else gets the payload document shape.
func (o *Orchestrator) WriteCombined(ctx context.Context, jobID core.ID, path string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	doc, err := o.CombineOutputs(ctx, jobID)
	if err != nil {
		return err
	}

	var out any = doc
	if field := job.Metadata[metaArrayField]; field != "" {
		out = map[string]any{
			field:      doc.Data,
			"metadata": doc.Metadata,
		}
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0644)
}

// ChainIngestion materializes a new ingestion job whose partitions are this
// enrichment job's output records. The returned job is ready for the
// ingestion engine; its chunking stage is skipped because partitions
// already exist.
func (o *Orchestrator) ChainIngestion(ctx context.Context, tc *tenant.Context, jobID core.ID, destination, promptName, schemaPrompt string, chunkSize int) (*core.Job, error) {
	source, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if source.Kind != core.JobKindEnrichment {
		return nil, fmt.Errorf("%w: job %d is %s", pipeline.ErrWrongJobKind, jobID, source.Kind)
	}

	doc, err := o.CombineOutputs(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job, err := o.jobs.AddJob(ctx, &core.Job{
		Kind:         core.JobKindIngestion,
		TenantID:     tc.ID,
		Source:       source.Source,
		Destination:  destination,
		PromptName:   promptName,
		SchemaPrompt: schemaPrompt,
		ChunkSize:    chunkSize,
		Status:       core.JobStatusPending,
		Pipeline:     core.NewPipelineState(),
		Metadata:     map[string]string{metaChainedFrom: strconv.FormatUint(uint64(jobID), 10)},
	})
	if err != nil {
		return nil, err
	}

	if _, err := o.chunker.CreatePartitionsFromRecords(ctx, job, doc.Data); err != nil {
		return nil, err
	}

	o.logger.Info("chained ingestion job",
		"enrichment_job_id", jobID,
		"ingestion_job_id", job.Id,
		"records", len(doc.Data))
	return job, nil
}

// metaInt reads an int metadata value that may have round-tripped through
// JSON as a float64.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

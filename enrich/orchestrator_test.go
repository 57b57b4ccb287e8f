package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/graphmill/ai"
	aimock "github.com/poiesic/graphmill/ai/mock"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/jsonrepair"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	badgerstore "github.com/poiesic/graphmill/storage/badger"
	"github.com/poiesic/graphmill/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	orch      *Orchestrator
	jobs      storage.JobRepository
	parts     storage.PartitionRepository
	payloads  storage.PayloadStore
	generator *aimock.MockGenerator
	tc        *tenant.Context
}

func setupOrchestrator(t *testing.T, opts ...Option) *orchestratorFixture {
	t.Helper()

	jobs, parts, payloads, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { parts.Close(); jobs.Close(); backend.Close() })

	generator := aimock.NewMockGenerator()
	provider := aimock.NewMockProviderWithServices(generator, aimock.NewMockEmbedder())

	orch, err := NewOrchestrator(jobs, parts, payloads, prompts.NewProvider(), provider, opts...)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	return &orchestratorFixture{
		orch:      orch,
		jobs:      jobs,
		parts:     parts,
		payloads:  payloads,
		generator: generator,
		tc:        &tenant.Context{ID: "acme"},
	}
}

// echoEnricher parses the batch from the user prompt and returns it with an
// enriched marker added, one output record per input record in input order.
func echoEnricher(ctx context.Context, req ai.GenerationRequest) (string, error) {
	var records []map[string]any
	if err := json.Unmarshal([]byte(req.UserPrompt), &records); err != nil {
		return "", err
	}
	for _, r := range records {
		r["enriched"] = true
	}
	out, err := json.Marshal(records)
	return string(out), err
}

func writeArraySource(t *testing.T, records int) string {
	t.Helper()

	items := make([]map[string]any, records)
	for i := range items {
		items[i] = map[string]any{"name": fmt.Sprintf("item-%d", i), "index": i}
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeObjectSource(t *testing.T, field string, records int) string {
	t.Helper()

	items := make([]map[string]any, records)
	for i := range items {
		items[i] = map[string]any{"index": i}
	}
	data, err := json.Marshal(map[string]any{"version": 2, field: items})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRunEnrichmentBatchScenario(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	f.generator.GenerateTextFunc = echoEnricher

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeArraySource(t, 25), prompts.EnricherPrompt, 10)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusDone, final.Status)
	assert.Equal(t, 100, final.CompletionPercentage)
	assert.True(t, final.Pipeline.Completed())

	// 25 records at batch size 10 make exactly 3 partitions, one LLM call each
	counts, err := f.parts.CountByStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Done)
	assert.Equal(t, 3, f.generator.CallCount())

	// Combined output holds all 25 records in input order
	doc, err := f.orch.CombineOutputs(ctx, job.Id)
	require.NoError(t, err)
	require.Len(t, doc.Data, 25)
	for i, raw := range doc.Data {
		var record map[string]any
		require.NoError(t, json.Unmarshal(raw, &record))
		assert.Equal(t, float64(i), record["index"])
		assert.Equal(t, true, record["enriched"])
	}
	assert.Equal(t, 25, metaInt(doc.Metadata, storage.MetaTotalRecords))
	assert.Equal(t, 25, metaInt(doc.Metadata, storage.MetaSuccessfulRecords))
	assert.Equal(t, 0, metaInt(doc.Metadata, storage.MetaFailedRecords))
}

func TestRunEnrichmentShortResponsePads(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	// Drop the last record of every batch
	f.generator.GenerateTextFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
		var records []map[string]any
		if err := json.Unmarshal([]byte(req.UserPrompt), &records); err != nil {
			return "", err
		}
		out, err := json.Marshal(records[:len(records)-1])
		return string(out), err
	}

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeArraySource(t, 5), prompts.EnricherPrompt, 5)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusDone, final.Status)
	assert.Equal(t, 1, final.Errors.ValidationCount)
	assert.Equal(t, core.ValidationErrorConstraint, final.Errors.Validation[0].Kind)

	doc, err := f.orch.CombineOutputs(ctx, job.Id)
	require.NoError(t, err)
	require.Len(t, doc.Data, 5)
	assert.Equal(t, jsonrepair.PlaceholderRecord, string(doc.Data[4]))
	assert.Equal(t, 4, metaInt(doc.Metadata, storage.MetaSuccessfulRecords))
	assert.Equal(t, 1, metaInt(doc.Metadata, storage.MetaFailedRecords))
}

func TestRunEnrichmentUnparsableResponse(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	f.generator.GenerateTextFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
		return "certainly! here are your enriched records", nil
	}

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeArraySource(t, 3), prompts.EnricherPrompt, 3)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)

	// The only partition failed, so the job terminates in error, non-fatally
	assert.Equal(t, core.JobStatusError, final.Status)
	assert.False(t, final.Errors.HasFatalError())
	assert.Equal(t, 1, final.Errors.ValidationCount)
	assert.Equal(t, 1, final.Errors.PipelineCount)

	counts, err := f.parts.CountByStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Error)
}

func TestRunEnrichmentRejectsTextSource(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("free text"), 0644))

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, path, prompts.EnricherPrompt, 5)
	require.NoError(t, err)

	err = f.orch.Run(ctx, f.tc, job.Id)
	require.ErrorIs(t, err, ErrNotTabular)

	final, getErr := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.JobStatusError, final.Status)
	assert.Equal(t, core.StageFailed, final.Pipeline.Stage(core.StageChunking).Status)
}

func TestRecordSchemaValidation(t *testing.T) {
	schema := `{"type": "object", "required": ["sku"]}`
	f := setupOrchestrator(t, WithRecordSchema(schema))
	ctx := context.Background()

	f.generator.GenerateTextFunc = echoEnricher

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeArraySource(t, 3), prompts.EnricherPrompt, 3)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)

	// Records lack the required field: partition still completes, every
	// mismatch lands in the validation ledger
	assert.Equal(t, core.JobStatusDone, final.Status)
	assert.Equal(t, 3, final.Errors.ValidationCount)

	doc, err := f.orch.CombineOutputs(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, metaInt(doc.Metadata, storage.MetaSuccessfulRecords))
	assert.Equal(t, 3, metaInt(doc.Metadata, storage.MetaFailedRecords))
}

func TestCombineRejectedBeforeTerminal(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeArraySource(t, 3), prompts.EnricherPrompt, 3)
	require.NoError(t, err)

	_, err = f.orch.CombineOutputs(ctx, job.Id)
	require.ErrorIs(t, err, ErrJobNotFinished)
}

func TestWriteCombinedPreservesObjectShape(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	f.generator.GenerateTextFunc = echoEnricher

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeObjectSource(t, "products", 4), prompts.EnricherPrompt, 2)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, f.tc, job.Id))

	out := filepath.Join(t.TempDir(), "combined.json")
	require.NoError(t, f.orch.WriteCombined(ctx, job.Id, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var combined map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &combined))
	require.Contains(t, combined, "products")

	var records []map[string]any
	require.NoError(t, json.Unmarshal(combined["products"], &records))
	assert.Len(t, records, 4)
}

func TestChainIngestion(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	f.generator.GenerateTextFunc = echoEnricher

	job, err := f.orch.SubmitEnrichment(ctx, f.tc, writeArraySource(t, 10), prompts.EnricherPrompt, 5)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, f.tc, job.Id))

	chained, err := f.orch.ChainIngestion(ctx, f.tc, job.Id, "graph", "graph_writer", "", 4)
	require.NoError(t, err)
	assert.Equal(t, core.JobKindIngestion, chained.Kind)
	assert.Equal(t, core.JobStatusPending, chained.Status)
	assert.Equal(t, fmt.Sprintf("%d", job.Id), chained.Metadata[metaChainedFrom])

	// 10 output records at chunk size 4 re-chunk into 3 partitions
	counts, err := f.parts.CountByStatus(ctx, chained.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Pending)
}

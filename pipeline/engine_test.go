package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/graphmill/ai"
	aimock "github.com/poiesic/graphmill/ai/mock"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/graph"
	graphmock "github.com/poiesic/graphmill/graph/mock"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	badgerstore "github.com/poiesic/graphmill/storage/badger"
	"github.com/poiesic/graphmill/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine    *Engine
	jobs      storage.JobRepository
	parts     storage.PartitionRepository
	payloads  storage.PayloadStore
	generator *aimock.MockGenerator
	store     *graphmock.MockStore
	tc        *tenant.Context
}

func setupEngine(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()

	jobs, parts, payloads, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { parts.Close(); jobs.Close(); backend.Close() })

	generator := aimock.NewMockGenerator()
	provider := aimock.NewMockProviderWithServices(generator, aimock.NewMockEmbedder())
	store := graphmock.NewMockStore()

	factory := func(ctx context.Context, tc *tenant.Context) (graph.Store, error) {
		return store, nil
	}

	engine, err := NewEngine(jobs, parts, payloads, prompts.NewProvider(), provider, factory, opts...)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	return &engineFixture{
		engine:    engine,
		jobs:      jobs,
		parts:     parts,
		payloads:  payloads,
		generator: generator,
		store:     store,
		tc:        &tenant.Context{ID: "acme"},
	}
}

func writeSourceFile(t *testing.T, records int) string {
	t.Helper()

	items := make([]map[string]any, records)
	for i := range items {
		items[i] = map[string]any{"name": "item", "index": i}
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRunIngestionHappyPath(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// Destination already has a schema, so no generation call is needed
	f.store.Schema = &core.Schema{
		Labels: []core.NodeLabel{{Name: "Item"}},
		Origin: core.SchemaOriginIntrospected,
	}
	f.generator.Responses = []string{
		"CREATE (a:Item {index: 0});",
		"CREATE (a:Item {index: 10});",
		"CREATE (a:Item {index: 20});",
	}

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 25), "graph", "graph_writer", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, job.Status)

	require.NoError(t, f.engine.RunIngestion(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusDone, final.Status)
	assert.Equal(t, 100, final.CompletionPercentage)
	assert.True(t, final.Pipeline.Completed())
	assert.False(t, final.ExecutionStart.IsZero())
	assert.False(t, final.ExecutionEnd.IsZero())

	counts, err := f.parts.CountByStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Done)
	assert.Equal(t, 3, f.generator.CallCount())
	assert.Len(t, f.store.Executed(), 3)

	// Each done partition carries its output payload
	partitions, err := f.parts.ListByJob(ctx, job.Id, nil, 0, 0)
	require.NoError(t, err)
	for _, p := range partitions {
		assert.NotZero(t, p.OutputRef)
		doc, err := f.payloads.GetPayload(ctx, p.OutputRef)
		require.NoError(t, err)
		assert.NotEmpty(t, doc.Data)
	}
}

func TestRunIngestionPartialFailure(t *testing.T) {
	f := setupEngine(t, WithConcurrency(1))
	ctx := context.Background()

	f.store.Schema = &core.Schema{Labels: []core.NodeLabel{{Name: "Item"}}}
	f.store.FailStatementsContaining = "BAD"
	f.generator.Responses = []string{
		"CREATE (a:Item);",
		"BAD STATEMENT;",
		"CREATE (c:Item);",
	}

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 3), "graph", "graph_writer", "", 1, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.RunIngestion(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)

	// Partial success still terminates as done
	assert.Equal(t, core.JobStatusDone, final.Status)
	assert.Equal(t, 100, final.CompletionPercentage)
	assert.False(t, final.Errors.HasFatalError())
	assert.Equal(t, 1, final.Errors.DestinationCount)
	assert.Equal(t, core.DestinationErrorQuery, final.Errors.Destination[0].Kind)

	counts, err := f.parts.CountByStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Done)
	assert.Equal(t, 1, counts.Error)

	errStatus := core.PartitionStatusError
	errored, err := f.parts.ListByJob(ctx, job.Id, &errStatus, 0, 0)
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.NotEmpty(t, errored[0].ErrorMessage)
}

func TestRunIngestionLLMFailureErrorsPartitionsNotJob(t *testing.T) {
	f := setupEngine(t, WithConcurrency(1))
	ctx := context.Background()

	f.store.Schema = &core.Schema{Labels: []core.NodeLabel{{Name: "Item"}}}
	f.generator.GenerateTextFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
		return "", errors.New("model timeout")
	}

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 2), "graph", "graph_writer", "", 1, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.RunIngestion(ctx, f.tc, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)

	// Every partition failed and none succeeded, so the job ends in error,
	// but no fatal pipeline error is recorded.
	assert.Equal(t, core.JobStatusError, final.Status)
	assert.False(t, final.Errors.HasFatalError())
	assert.Equal(t, 2, final.Errors.PipelineCount)

	counts, err := f.parts.CountByStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Error)
	assert.Empty(t, f.store.Executed())
}

func TestRunIngestionConnectionFailureIsFatal(t *testing.T) {
	f := setupEngine(t, WithConcurrency(1))
	ctx := context.Background()

	f.store.Schema = &core.Schema{Labels: []core.NodeLabel{{Name: "Item"}}}
	f.store.ExecuteFunc = func(ctx context.Context, statements []string) ([]graph.StatementResult, error) {
		return nil, fmt.Errorf("bolt handshake: %w", graph.ErrConnection)
	}
	f.generator.Responses = []string{"CREATE (a:Item);", "CREATE (b:Item);"}

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 2), "graph", "graph_writer", "", 1, 0)
	require.NoError(t, err)

	err = f.engine.RunIngestion(ctx, f.tc, job.Id)
	require.ErrorIs(t, err, graph.ErrConnection)

	final, getErr := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.JobStatusError, final.Status)
	assert.True(t, final.Errors.HasFatalError())
	assert.NotZero(t, final.Errors.DestinationCount)
	assert.False(t, final.ExecutionEnd.IsZero())
}

func TestRunIngestionSchemaGenerationFailureIsFatal(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// Defined-schema prompt that does not exist
	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 3), "graph", "graph_writer", "ghost", 1, 0)
	require.NoError(t, err)

	err = f.engine.RunIngestion(ctx, f.tc, job.Id)
	require.Error(t, err)

	final, getErr := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.JobStatusError, final.Status)
	assert.True(t, final.Errors.HasFatalError())
	assert.Equal(t, 1, final.Errors.SchemaCount)
	assert.Equal(t, core.StageFailed, final.Pipeline.Stage(core.StageSchemaGeneration).Status)
}

func TestRunIngestionWrongKind(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	job, err := f.jobs.AddJob(ctx, &core.Job{
		Kind:      core.JobKindEnrichment,
		TenantID:  "acme",
		Source:    "x.json",
		ChunkSize: 1,
		Status:    core.JobStatusPending,
		Pipeline:  core.NewPipelineState(),
	})
	require.NoError(t, err)

	err = f.engine.RunIngestion(ctx, f.tc, job.Id)
	require.ErrorIs(t, err, ErrWrongJobKind)
}

func TestResetRejectedWhileProcessing(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 2), "graph", "graph_writer", "", 1, 0)
	require.NoError(t, err)

	job.Status = core.JobStatusProcessing
	_, err = f.jobs.UpdateJob(ctx, job)
	require.NoError(t, err)

	err = f.engine.Reset(ctx, job.Id)
	require.ErrorIs(t, err, core.ErrResetWhileProcessing)
}

func TestResetRevertsPartitions(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.store.Schema = &core.Schema{Labels: []core.NodeLabel{{Name: "Item"}}}
	f.generator.Responses = []string{"CREATE (a:Item);", "CREATE (b:Item);"}

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 2), "graph", "graph_writer", "", 1, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.RunIngestion(ctx, f.tc, job.Id))

	require.NoError(t, f.engine.Reset(ctx, job.Id))

	final, err := f.jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, final.Status)
	assert.Equal(t, 0, final.CompletionPercentage)
	assert.True(t, final.ExecutionEnd.IsZero())
	assert.Zero(t, final.Errors.TotalErrors())

	counts, err := f.parts.CountByStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Pending)

	// Payloads survive the reset
	partitions, err := f.parts.ListByJob(ctx, job.Id, nil, 0, 0)
	require.NoError(t, err)
	for _, p := range partitions {
		require.NotZero(t, p.InputRef)
		_, err := f.payloads.GetPayload(ctx, p.InputRef)
		require.NoError(t, err)
	}
}

func TestStatusView(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.store.Schema = &core.Schema{Labels: []core.NodeLabel{{Name: "Item"}}}
	f.generator.Responses = []string{"CREATE (a:Item);"}

	job, err := f.engine.SubmitIngestion(ctx, f.tc, writeSourceFile(t, 1), "graph", "graph_writer", "", 1, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.RunIngestion(ctx, f.tc, job.Id))

	view, err := f.engine.Status(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusDone, view.Job.Status)
	assert.Equal(t, 1, view.Counts.Done)
	assert.Zero(t, view.Summary.Total)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	aimock "github.com/poiesic/graphmill/ai/mock"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/graph"
	graphmock "github.com/poiesic/graphmill/graph/mock"
	"github.com/poiesic/graphmill/pipeline"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	badgerstore "github.com/poiesic/graphmill/storage/badger"
	"github.com/poiesic/graphmill/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverFixture struct {
	server   *Server
	jobs     storage.JobRepository
	parts    storage.PartitionRepository
	payloads storage.PayloadStore
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	jobs, parts, payloads, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { parts.Close(); jobs.Close(); backend.Close() })

	provider := aimock.NewMockProviderWithServices(aimock.NewMockGenerator(), aimock.NewMockEmbedder())
	factory := func(ctx context.Context, tc *tenant.Context) (graph.Store, error) {
		return graphmock.NewMockStore(), nil
	}
	engine, err := pipeline.NewEngine(jobs, parts, payloads, prompts.NewProvider(), provider, factory)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	return &serverFixture{
		server:   New(engine, parts),
		jobs:     jobs,
		parts:    parts,
		payloads: payloads,
	}
}

func (f *serverFixture) seedJob(t *testing.T, status core.JobStatus, partitions int) *core.Job {
	t.Helper()
	ctx := context.Background()

	job, err := f.jobs.AddJob(ctx, &core.Job{
		Kind:      core.JobKindIngestion,
		TenantID:  "acme",
		Source:    "records.json",
		ChunkSize: 10,
		Status:    status,
		Pipeline:  core.NewPipelineState(),
	})
	require.NoError(t, err)

	for i := 0; i < partitions; i++ {
		doc, err := storage.NewTextPayload(fmt.Sprintf("chunk %d", i), map[string]any{"chunk_number": float64(i)})
		require.NoError(t, err)
		ref, err := f.payloads.PutPayload(ctx, doc)
		require.NoError(t, err)

		_, err = f.parts.AddPartitions(ctx, &core.Partition{
			JobId:       job.Id,
			InputRef:    ref,
			ChunkNumber: i,
			TotalChunks: partitions,
			RecordCount: 10,
		})
		require.NoError(t, err)
	}
	return job
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestGetJobStatus(t *testing.T) {
	f := setupServer(t)
	job := f.seedJob(t, core.JobStatusProcessing, 3)

	partitions, err := f.parts.ListByJob(context.Background(), job.Id, nil, 0, 0)
	require.NoError(t, err)
	_, err = f.parts.UpdateStatus(context.Background(), partitions[0].Id, core.PartitionStatusDone, "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d", job.Id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(job.Id), resp.ID)
	assert.Equal(t, "ingestion", resp.Kind)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "initialization", resp.CurrentStage)
	assert.Equal(t, 3, resp.Counts.Total)
	assert.Equal(t, 1, resp.Counts.Done)
	assert.Equal(t, 2, resp.Counts.Pending)
}

func TestGetJobNotFound(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/jobs/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPartitionsPagination(t *testing.T) {
	f := setupServer(t)
	job := f.seedJob(t, core.JobStatusProcessing, 5)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d/partitions?page=2&per_page=2", job.Id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp partitionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Partitions, 2)
	assert.Equal(t, 2, resp.Partitions[0].ChunkNumber)
	assert.Equal(t, 3, resp.Partitions[1].ChunkNumber)
}

func TestListPartitionsStatusFilter(t *testing.T) {
	f := setupServer(t)
	job := f.seedJob(t, core.JobStatusProcessing, 3)

	partitions, err := f.parts.ListByJob(context.Background(), job.Id, nil, 0, 0)
	require.NoError(t, err)
	_, err = f.parts.UpdateStatus(context.Background(), partitions[1].Id, core.PartitionStatusError, "boom")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d/partitions?status=error", job.Id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp partitionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Partitions, 1)
	assert.Equal(t, "error", resp.Partitions[0].Status)
	assert.Equal(t, "boom", resp.Partitions[0].ErrorMessage)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d/partitions?status=bogus", job.Id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePartition(t *testing.T) {
	f := setupServer(t)
	job := f.seedJob(t, core.JobStatusProcessing, 1)

	partitions, err := f.parts.ListByJob(context.Background(), job.Id, nil, 0, 0)
	require.NoError(t, err)
	id := partitions[0].Id

	rec := f.do(t, http.MethodPatch, fmt.Sprintf("/partitions/%d", id),
		updatePartitionRequest{Status: "error", ErrorMessage: "manual failure"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp partitionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "manual failure", resp.ErrorMessage)
	assert.NotNil(t, resp.ProcessedAt)

	// Moving back to pending clears the error and processed timestamp
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/partitions/%d", id),
		updatePartitionRequest{Status: "pending"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = partitionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Empty(t, resp.ErrorMessage)
	assert.Nil(t, resp.ProcessedAt)
}

func TestUpdatePartitionRecomputesJobProgress(t *testing.T) {
	f := setupServer(t)
	job := f.seedJob(t, core.JobStatusProcessing, 2)

	partitions, err := f.parts.ListByJob(context.Background(), job.Id, nil, 0, 0)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPatch, fmt.Sprintf("/partitions/%d", partitions[0].Id),
		updatePartitionRequest{Status: "done"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d", job.Id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 50, resp.CompletionPercentage)

	// Patching the last open partition finishes the job
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/partitions/%d", partitions[1].Id),
		updatePartitionRequest{Status: "error", ErrorMessage: "gave up"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d", job.Id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "done", resp.Status)
	assert.Equal(t, 100, resp.CompletionPercentage)
	assert.NotNil(t, resp.ExecutionEnd)
}

func TestUpdatePartitionInvalidStatus(t *testing.T) {
	f := setupServer(t)
	job := f.seedJob(t, core.JobStatusProcessing, 1)

	partitions, err := f.parts.ListByJob(context.Background(), job.Id, nil, 0, 0)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPatch, fmt.Sprintf("/partitions/%d", partitions[0].Id),
		updatePartitionRequest{Status: "finished"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetJob(t *testing.T) {
	f := setupServer(t)

	processing := f.seedJob(t, core.JobStatusProcessing, 2)
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/jobs/%d/reset", processing.Id), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	done := f.seedJob(t, core.JobStatusDone, 2)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/jobs/%d/reset", done.Id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	job, err := f.jobs.GetJob(context.Background(), done.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, job.Status)
}

package storage

import (
	"testing"
	"time"

	"github.com/poiesic/graphmill/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := &core.Job{
		Id:                   42,
		Kind:                 core.JobKindIngestion,
		TenantID:             "acme",
		Source:               "/data/products.json",
		Destination:          "neo4j",
		PromptName:           "graph_writer",
		ChunkSize:            100,
		ChunkOverlap:         20,
		Status:               core.JobStatusProcessing,
		CompletionPercentage: 40,
		ExecutionStart:       now,
		Pipeline:             core.NewPipelineState(),
		Metadata:             map[string]string{"origin": "upload"},
		InsertedAt:           now,
		UpdatedAt:            now,
	}
	require.NoError(t, job.Pipeline.StartStage(core.StageInitialization))
	require.NoError(t, job.Pipeline.CompleteStage(core.StageInitialization))
	job.Pipeline.Schema = &core.Schema{
		Labels: []core.NodeLabel{
			{Name: "Product", Properties: []core.PropertySpec{{Name: "name", Type: "string"}}},
		},
		Relationships: []core.RelationshipSpec{{Type: "MADE_BY", From: "Product", To: "Vendor"}},
		Origin:        core.SchemaOriginIntrospected,
	}
	job.Errors.RecordPipelineError(core.StageProcessing, "llm timeout", false)
	job.Errors.RecordDestinationError(core.DestinationErrorQuery, "syntax error", "MATCH (n)")

	decoded, err := UnmarshalJob(MarshalJob(job))
	require.NoError(t, err)

	assert.Equal(t, job.Id, decoded.Id)
	assert.Equal(t, job.Kind, decoded.Kind)
	assert.Equal(t, job.TenantID, decoded.TenantID)
	assert.Equal(t, job.Status, decoded.Status)
	assert.Equal(t, job.CompletionPercentage, decoded.CompletionPercentage)
	assert.True(t, job.ExecutionStart.Equal(decoded.ExecutionStart))
	assert.True(t, decoded.ExecutionEnd.IsZero())
	assert.Equal(t, job.Metadata, decoded.Metadata)

	// Pipeline state survives, including the cached schema
	require.Len(t, decoded.Pipeline.Stages, len(core.StageOrder))
	assert.Equal(t, core.StageCompleted, decoded.Pipeline.Stage(core.StageInitialization).Status)
	require.NotNil(t, decoded.Pipeline.Schema)
	assert.Equal(t, "Product", decoded.Pipeline.Schema.Labels[0].Name)
	assert.Equal(t, core.SchemaOriginIntrospected, decoded.Pipeline.Schema.Origin)

	// Error ledgers survive with counters matching lengths
	assert.Equal(t, 1, decoded.Errors.PipelineCount)
	assert.Equal(t, 1, decoded.Errors.DestinationCount)
	assert.Equal(t, "MATCH (n)", decoded.Errors.Destination[0].Statement)
}

func TestPartitionRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	partition := &core.Partition{
		Id:           7,
		JobId:        42,
		InputRef:     core.IDFromContent([]byte("chunk")),
		Status:       core.PartitionStatusError,
		ErrorMessage: "llm call failed",
		ChunkNumber:  2,
		TotalChunks:  5,
		RecordCount:  100,
		ProcessedAt:  now,
		InsertedAt:   now,
		UpdatedAt:    now,
	}

	decoded, err := UnmarshalPartition(MarshalPartition(partition))
	require.NoError(t, err)

	assert.Equal(t, partition.Id, decoded.Id)
	assert.Equal(t, partition.JobId, decoded.JobId)
	assert.Equal(t, partition.InputRef, decoded.InputRef)
	assert.Equal(t, core.ID(0), decoded.OutputRef)
	assert.Equal(t, partition.Status, decoded.Status)
	assert.Equal(t, partition.ErrorMessage, decoded.ErrorMessage)
	assert.Equal(t, partition.ChunkNumber, decoded.ChunkNumber)
	assert.True(t, partition.ProcessedAt.Equal(decoded.ProcessedAt))
}

func TestIDRoundTrip(t *testing.T) {
	id := core.ID(123456789)
	decoded, err := UnmarshalID(MarshalID(id))
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestUnmarshalJob_Truncated(t *testing.T) {
	job := &core.Job{Id: 1, Kind: core.JobKindEnrichment, TenantID: "acme", Status: core.JobStatusPending}
	data := MarshalJob(job)

	_, err := UnmarshalJob(data[:len(data)/2])
	require.Error(t, err)
}

func TestPayloadDocument(t *testing.T) {
	doc, err := NewTextPayload("some chunk text", map[string]any{"chunk_number": 1})
	require.NoError(t, err)

	data, err := MarshalPayload(doc)
	require.NoError(t, err)

	decoded, err := UnmarshalPayload(data)
	require.NoError(t, err)
	assert.Equal(t, "some chunk text", decoded.Text())
	assert.Equal(t, float64(1), decoded.Metadata["chunk_number"])
}

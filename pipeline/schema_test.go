package pipeline

import (
	"context"
	"testing"

	"github.com/poiesic/graphmill/ai/mock"
	"github.com/poiesic/graphmill/core"
	graphmock "github.com/poiesic/graphmill/graph/mock"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload(t *testing.T) *storage.PayloadDocument {
	t.Helper()
	doc, err := storage.NewTextPayload(`{"name": "Widget", "vendor": "Acme"}`, nil)
	require.NoError(t, err)
	return doc
}

func TestResolveDefinedSchema(t *testing.T) {
	gen := mock.NewMockGenerator()
	resolver := NewSchemaResolver(prompts.NewProvider(), gen)
	store := graphmock.NewMockStore()

	job := &core.Job{
		Id:           1,
		SchemaPrompt: "graph_writer",
		Pipeline:     core.NewPipelineState(),
	}

	schema, err := resolver.Resolve(context.Background(), job, store, samplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, core.SchemaOriginDefined, schema.Origin)
	assert.NotEmpty(t, schema.Raw)
	assert.Zero(t, gen.CallCount())
}

func TestResolveMissingDefinedPrompt(t *testing.T) {
	resolver := NewSchemaResolver(prompts.NewProvider(), mock.NewMockGenerator())

	job := &core.Job{Id: 1, SchemaPrompt: "ghost", Pipeline: core.NewPipelineState()}

	_, err := resolver.Resolve(context.Background(), job, graphmock.NewMockStore(), samplePayload(t))
	require.ErrorIs(t, err, prompts.ErrPromptNotFound)
}

func TestResolveIntrospection(t *testing.T) {
	gen := mock.NewMockGenerator()
	resolver := NewSchemaResolver(prompts.NewProvider(), gen)

	store := graphmock.NewMockStore()
	store.Schema = &core.Schema{
		Labels: []core.NodeLabel{{Name: "Product"}},
		Origin: core.SchemaOriginIntrospected,
	}

	job := &core.Job{Id: 1, Pipeline: core.NewPipelineState()}

	schema, err := resolver.Resolve(context.Background(), job, store, samplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, core.SchemaOriginIntrospected, schema.Origin)
	assert.Zero(t, gen.CallCount())
}

func TestResolveFallsThroughToGenerationOnce(t *testing.T) {
	response := `{"labels": [{"name": "Product", "properties": [{"name": "name", "type": "string"}]}],` +
		` "relationships": [{"type": "MADE_BY", "from": "Product", "to": "Vendor"}]}`
	gen := mock.NewMockGenerator(response)
	resolver := NewSchemaResolver(prompts.NewProvider(), gen)

	// Empty introspection result forces LLM generation
	store := graphmock.NewMockStore()
	job := &core.Job{Id: 1, Pipeline: core.NewPipelineState()}

	schema, err := resolver.Resolve(context.Background(), job, store, samplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, core.SchemaOriginGenerated, schema.Origin)
	require.Len(t, schema.Labels, 1)
	assert.Equal(t, "Product", schema.Labels[0].Name)
	assert.Equal(t, 1, gen.CallCount())

	// Cached on the job's pipeline state; no second LLM call
	again, err := resolver.Resolve(context.Background(), job, store, samplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, schema, again)
	assert.Equal(t, 1, gen.CallCount())
}

func TestParseGeneratedSchemaFenced(t *testing.T) {
	response := "```json\n{\"labels\": [{\"name\": \"Vendor\"}]}\n```"

	schema := parseGeneratedSchema(response)
	require.Len(t, schema.Labels, 1)
	assert.Equal(t, "Vendor", schema.Labels[0].Name)
}

func TestParseGeneratedSchemaUnparsableKeepsRaw(t *testing.T) {
	schema := parseGeneratedSchema("labels: Product, Vendor")
	assert.Empty(t, schema.Labels)
	assert.Equal(t, "labels: Product, Vendor", schema.Raw)
	assert.False(t, schema.IsEmpty())
}

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
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/graphmill/ai"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/graph"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
)

// SchemaResolver obtains a job's target schema: from a defined-schema
// prompt, by introspecting the destination graph, or by one LLM call
// seeded with a sample partition. The result is cached on the job's
// pipeline state; subsequent partitions reuse it without re-resolution.
type SchemaResolver struct {
	prompts   prompts.Provider
	generator ai.Generator
	logger    *slog.Logger
}

// NewSchemaResolver creates a schema resolver.
func NewSchemaResolver(promptProvider prompts.Provider, generator ai.Generator) *SchemaResolver {
	return &SchemaResolver{
		prompts:   promptProvider,
		generator: generator,
		logger:    slog.Default().With("component", "schema-resolver"),
	}
}

// Resolve returns the job's schema, resolving and caching it on first call.
// Resolution errors are job-fatal; the caller records them on the schema
// error ledger.
func (r *SchemaResolver) Resolve(ctx context.Context, job *core.Job, store graph.Store, sample *storage.PayloadDocument) (*core.Schema, error) {
	if cached := job.Pipeline.Schema; !cached.IsEmpty() {
		return cached, nil
	}

	schema, err := r.resolve(ctx, job, store, sample)
	if err != nil {
		return nil, err
	}

	job.Pipeline.Schema = schema
	r.logger.Info("schema resolved", "job_id", job.Id, "origin", schema.Origin)
	return schema, nil
}

func (r *SchemaResolver) resolve(ctx context.Context, job *core.Job, store graph.Store, sample *storage.PayloadDocument) (*core.Schema, error) {
	if job.SchemaPrompt != "" {
		prompt, err := r.prompts.GetPrompt(job.SchemaPrompt)
		if err != nil {
			return nil, fmt.Errorf("defined schema prompt %q: %w", job.SchemaPrompt, err)
		}
		return &core.Schema{Raw: prompt.SystemPrompt, Origin: core.SchemaOriginDefined}, nil
	}

	introspected, err := store.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting destination: %w", err)
	}
	if !introspected.IsEmpty() {
		return introspected, nil
	}

	return r.generate(ctx, job, sample)
}

// generate synthesizes a schema by sending one sample partition to the LLM.
func (r *SchemaResolver) generate(ctx context.Context, job *core.Job, sample *storage.PayloadDocument) (*core.Schema, error) {
	prompt, err := r.prompts.GetPrompt(prompts.SchemaGeneratorPrompt)
	if err != nil {
		return nil, err
	}

	sampleJSON, err := json.Marshal(sample.Data)
	if err != nil {
		return nil, err
	}

	response, err := r.generator.GenerateText(ctx, ai.GenerationRequest{
		Model:        prompt.Model,
		SystemPrompt: prompt.SystemPrompt,
		UserPrompt:   string(sampleJSON),
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("generating schema: %w", err)
	}

	schema := parseGeneratedSchema(response)
	if schema.IsEmpty() {
		return nil, fmt.Errorf("model produced no usable schema")
	}
	return schema, nil
}

type generatedSchema struct {
	Labels []struct {
		Name       string `json:"name"`
		Properties []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"properties"`
	} `json:"labels"`
	Relationships []struct {
		Type string `json:"type"`
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"relationships"`
}

// parseGeneratedSchema parses the LLM's schema JSON into the structured
// form. Unparsable responses are kept verbatim in Raw so the prompt can
// still carry them.
func parseGeneratedSchema(response string) *core.Schema {
	cleaned := stripFences(response)

	var doc generatedSchema
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil || len(doc.Labels) == 0 {
		return &core.Schema{Raw: strings.TrimSpace(cleaned), Origin: core.SchemaOriginGenerated}
	}

	schema := &core.Schema{Origin: core.SchemaOriginGenerated}
	for _, label := range doc.Labels {
		node := core.NodeLabel{Name: label.Name}
		for _, p := range label.Properties {
			node.Properties = append(node.Properties, core.PropertySpec{Name: p.Name, Type: p.Type})
		}
		schema.Labels = append(schema.Labels, node)
	}
	for _, rel := range doc.Relationships {
		schema.Relationships = append(schema.Relationships, core.RelationshipSpec{
			Type: rel.Type,
			From: rel.From,
			To:   rel.To,
		})
	}
	return schema
}

func stripFences(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

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


// Package prompts supplies named prompt templates to the pipeline engines.
// Templates live in a YAML file and are loaded once at startup; a few
// built-in templates (schema generation) ship with the binary and can be
// overridden by a file entry of the same name.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrPromptNotFound is returned when no template exists under a name.
var ErrPromptNotFound = errors.New("prompts: prompt not found")

// Prompt is a named template resolved for one LLM call.
type Prompt struct {
	// LLM names the backing service, e.g. "openai" or "ollama".
	LLM string `yaml:"llm"`

	// Model pins a model for this prompt; empty means provider default.
	Model string `yaml:"model"`

	// SystemPrompt frames the task. Placeholders of the form {name} are
	// substituted by Render.
	SystemPrompt string `yaml:"system_prompt"`
}

// Provider resolves prompt templates by name.
type Provider interface {
	// GetPrompt returns the template registered under name.
	// Returns ErrPromptNotFound when no such template exists.
	GetPrompt(name string) (*Prompt, error)

	// GetAllPromptNames returns the sorted names of every known template.
	GetAllPromptNames() []string
}

// SchemaGeneratorPrompt is the name of the built-in template used when a
// job's schema must be synthesized from a sample partition.
const SchemaGeneratorPrompt = "schema_generator"

// EnricherPrompt is the name of the built-in template used by enrichment
// jobs that do not name a custom prompt.
const EnricherPrompt = "enricher"

var builtins = map[string]Prompt{
	SchemaGeneratorPrompt: {
		LLM: "openai",
		SystemPrompt: "You design graph database schemas. Given a sample of " +
			"records, propose node labels with typed properties and the " +
			"relationships between them. Respond with JSON of the form " +
			`{"labels": [{"name": ..., "properties": [{"name": ..., "type": ...}]}], ` +
			`"relationships": [{"type": ..., "from": ..., "to": ...}]}. ` +
			"Respond with JSON only, no explanation.",
	},
	EnricherPrompt: {
		LLM: "openai",
		SystemPrompt: "You enrich tabular records. Given a JSON array of " +
			"records, return the same array with additional derived fields. " +
			"Return exactly one output record per input record, in input " +
			"order. Respond with JSON only, no explanation.",
	},
	"graph_writer": {
		LLM: "openai",
		SystemPrompt: "You translate records into Cypher statements that " +
			"conform to the provided schema:\n\n{schema}\n\nEmit MERGE " +
			"statements separated by semicolons. Respond with Cypher only.",
	},
}

// fileProvider loads templates from a YAML document of the form
//
//	prompts:
//	  graph_writer:
//	    llm: openai
//	    model: gpt-4o-mini
//	    system_prompt: |
//	      ...
type fileProvider struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
}

type promptFile struct {
	Prompts map[string]Prompt `yaml:"prompts"`
}

// NewProvider creates a provider holding only the built-in templates.
func NewProvider() Provider {
	return &fileProvider{prompts: clone(builtins)}
}

// NewFileProvider loads templates from a YAML file, layered over the
// built-ins. File entries override built-ins of the same name.
func NewFileProvider(path string) (Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc promptFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("prompts: parsing %s: %w", path, err)
	}

	merged := clone(builtins)
	for name, p := range doc.Prompts {
		merged[name] = p
	}
	return &fileProvider{prompts: merged}, nil
}

func clone(src map[string]Prompt) map[string]Prompt {
	dst := make(map[string]Prompt, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// GetPrompt returns the template registered under name.
func (p *fileProvider) GetPrompt(name string) (*Prompt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prompt, ok := p.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	return &prompt, nil
}

// GetAllPromptNames returns the sorted names of every known template.
func (p *fileProvider) GetAllPromptNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.prompts))
	for name := range p.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes {key} placeholders in the system prompt.
// Unmatched placeholders are left in place.
func (pr *Prompt) Render(vars map[string]string) string {
	rendered := pr.SystemPrompt
	for key, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	return rendered
}

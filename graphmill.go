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


package graphmill

import (
	"log/slog"

	"github.com/poiesic/graphmill/ai"
	"github.com/poiesic/graphmill/ai/openai"
	"github.com/poiesic/graphmill/embed"
	"github.com/poiesic/graphmill/enrich"
	"github.com/poiesic/graphmill/pipeline"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/storage"
	"github.com/poiesic/graphmill/storage/badger"
)

// Database is the library entry point: it owns the job store and AI
// provider and hands out configured engines.
type Database struct {
	backend    *badger.Backend
	jobs       storage.JobRepository
	partitions storage.PartitionRepository
	payloads   storage.PayloadStore
	prompts    prompts.Provider
	provider   ai.AIProvider
	logger     *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	prompts  prompts.Provider
}

// WithAIConfig sets the AI service configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithPromptProvider sets the prompt template provider.
// Default is the built-in prompt set.
func WithPromptProvider(provider prompts.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		if provider != nil {
			o.prompts = provider
		}
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		prompts:  prompts.NewProvider(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}

	jobs, err := badger.NewJobRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	partitions, err := badger.NewPartitionRepository(backend)
	if err != nil {
		jobs.Close()
		backend.Close()
		return nil, err
	}

	payloads := badger.NewPayloadStore(backend)

	provider, err := openai.NewProvider(options.aiConfig)
	if err != nil {
		partitions.Close()
		jobs.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:    backend,
		jobs:       jobs,
		partitions: partitions,
		payloads:   payloads,
		prompts:    options.prompts,
		provider:   provider,
		logger:     slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.partitions.Close(); err != nil {
		db.logger.Error("error closing partition repository", "err", err)
		return err
	}
	if err := db.jobs.Close(); err != nil {
		db.logger.Error("error closing job repository", "err", err)
		return err
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) JobRepository() storage.JobRepository {
	return db.jobs
}

func (db *Database) PartitionRepository() storage.PartitionRepository {
	return db.partitions
}

func (db *Database) PayloadStore() storage.PayloadStore {
	return db.payloads
}

// NewPipelineEngine builds an ingestion engine writing to destination
// stores opened by the given factory.
func (db *Database) NewPipelineEngine(stores pipeline.StoreFactory, opts ...pipeline.Option) (*pipeline.Engine, error) {
	return pipeline.NewEngine(db.jobs, db.partitions, db.payloads, db.prompts, db.provider, stores, opts...)
}

// NewEnrichmentOrchestrator builds a batch enrichment orchestrator.
func (db *Database) NewEnrichmentOrchestrator(opts ...enrich.Option) (*enrich.Orchestrator, error) {
	return enrich.NewOrchestrator(db.jobs, db.partitions, db.payloads, db.prompts, db.provider, opts...)
}

// NewEmbeddingEngine builds an embedding engine over the provider's
// embedding service.
func (db *Database) NewEmbeddingEngine(opts ...embed.Option) (*embed.Engine, error) {
	return embed.NewEngine(db.provider.Embedder(), opts...)
}

// Admin returns the administrative surface over the job store.
func (db *Database) Admin() *pipeline.Admin {
	return pipeline.NewAdmin(db.jobs, db.partitions)
}

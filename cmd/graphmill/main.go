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


package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/graphmill/ai"
	"github.com/poiesic/graphmill/ai/openai"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/embed"
	"github.com/poiesic/graphmill/enrich"
	"github.com/poiesic/graphmill/graph"
	"github.com/poiesic/graphmill/graph/neo4j"
	"github.com/poiesic/graphmill/pipeline"
	"github.com/poiesic/graphmill/prompts"
	"github.com/poiesic/graphmill/server"
	"github.com/poiesic/graphmill/storage/badger"
	"github.com/poiesic/graphmill/tenant"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "graphmill",
		Usage: "Partitioned LLM pipeline for knowledge graph construction",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Mirror logs to this file as JSON (stderr stays text)",
			},
		},
		Before: setupLogger,
		After:  teardownLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Run a document through the LLM into the knowledge graph",
				Action: ingestCommand,
				Flags: joinFlags(
					[]cli.Flag{
						dbFlag(),
						&cli.StringFlag{
							Name:     "source",
							Aliases:  []string{"s"},
							Usage:    "Path to the source document",
							Required: true,
						},
						&cli.StringFlag{
							Name:  "destination",
							Usage: "Destination database name",
							Value: "neo4j",
						},
						&cli.StringFlag{
							Name:  "prompt",
							Usage: "Prompt template for Cypher generation",
							Value: "graph_writer",
						},
						&cli.StringFlag{
							Name:  "schema-prompt",
							Usage: "Prompt template for schema generation (default: introspect, then generate)",
						},
						&cli.IntFlag{
							Name:  "chunk-size",
							Usage: "Records or text segments per partition",
							Value: 25,
						},
						&cli.IntFlag{
							Name:  "chunk-overlap",
							Usage: "Overlapping characters between text chunks",
						},
						&cli.IntFlag{
							Name:  "concurrency",
							Usage: "Maximum number of in-flight partitions",
							Value: 5,
						},
						promptsFileFlag(),
					},
					tenantFlags(),
					aiFlags(),
				),
			},
			{
				Name:   "enrich",
				Usage:  "Enrich tabular records with one LLM call per batch",
				Action: enrichCommand,
				Flags: joinFlags(
					[]cli.Flag{
						dbFlag(),
						&cli.StringFlag{
							Name:     "source",
							Aliases:  []string{"s"},
							Usage:    "Path to the tabular source (JSON, CSV, TSV or XLSX)",
							Required: true,
						},
						&cli.StringFlag{
							Name:  "prompt",
							Usage: "Prompt template for record enrichment",
							Value: "enricher",
						},
						&cli.IntFlag{
							Name:  "batch-size",
							Usage: "Records per LLM call",
							Value: 10,
						},
						&cli.IntFlag{
							Name:  "parallel",
							Usage: "Maximum number of in-flight batches",
							Value: 5,
						},
						&cli.StringFlag{
							Name:  "record-schema",
							Usage: "Path to a JSON schema enriched records must satisfy",
						},
						&cli.StringFlag{
							Name:    "output",
							Aliases: []string{"o"},
							Usage:   "Write the combined enriched document to this path",
						},
						&cli.BoolFlag{
							Name:  "chain",
							Usage: "Feed the enriched records into a new ingestion job",
						},
						&cli.StringFlag{
							Name:  "chain-prompt",
							Usage: "Prompt template for the chained ingestion",
							Value: "graph_writer",
						},
						&cli.StringFlag{
							Name:  "chain-schema-prompt",
							Usage: "Schema prompt for the chained ingestion",
						},
						&cli.IntFlag{
							Name:  "chain-chunk-size",
							Usage: "Records per partition in the chained ingestion",
							Value: 25,
						},
						&cli.StringFlag{
							Name:  "destination",
							Usage: "Destination database name for the chained ingestion",
							Value: "neo4j",
						},
						promptsFileFlag(),
					},
					tenantFlags(),
					aiFlags(),
				),
			},
			{
				Name:   "embed",
				Usage:  "Generate embeddings for knowledge graph nodes",
				Action: embedCommand,
				Flags: joinFlags(
					[]cli.Flag{
						&cli.StringSliceFlag{
							Name:  "label",
							Usage: "Restrict to this node label (repeatable; default: all labels)",
						},
						&cli.StringSliceFlag{
							Name:  "group",
							Usage: "Property group as name:prop1,prop2 (repeatable; default: whole node)",
						},
						&cli.IntFlag{
							Name:  "batch-size",
							Usage: "Nodes embedded per batch",
							Value: 50,
						},
						&cli.IntFlag{
							Name:  "label-workers",
							Usage: "Labels processed in parallel",
							Value: 3,
						},
						&cli.IntFlag{
							Name:  "batch-workers",
							Usage: "Batches processed in parallel",
							Value: 3,
						},
						&cli.StringFlag{
							Name:  "vector-property",
							Usage: "Node property to write vectors to",
							Value: "embedding",
						},
						&cli.StringFlag{
							Name:  "validity-flag",
							Usage: "Boolean property marking already-embedded nodes",
							Value: "embedding_valid",
						},
						&cli.IntFlag{
							Name:  "max-retries",
							Usage: "Maximum retry attempts for embedding calls",
							Value: 3,
						},
						&cli.DurationFlag{
							Name:  "retry-delay",
							Usage: "Base delay for exponential backoff",
							Value: 1 * time.Second,
						},
					},
					tenantFlags(),
					aiFlags(),
				),
			},
			{
				Name:      "status",
				Usage:     "Show a job's progress, partition counts and errors",
				ArgsUsage: "<job-id>",
				Action:    statusCommand,
				Flags:     []cli.Flag{dbFlag()},
			},
			{
				Name:      "reset",
				Usage:     "Revert a job and its partitions for re-execution",
				ArgsUsage: "<job-id>",
				Action:    resetCommand,
				Flags:     []cli.Flag{dbFlag()},
			},
			{
				Name:   "serve",
				Usage:  "Serve the job status API over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
						Value: ":8080",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	backend, jobs, partitions, payloads, err := openRepositories(c)
	if err != nil {
		return err
	}
	defer closeRepositories(backend, jobs, partitions)

	promptProvider, err := loadPrompts(c)
	if err != nil {
		return err
	}

	provider, err := openai.NewProvider(aiConfigFromFlags(c))
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}

	tc, err := acquireTenant(c)
	if err != nil {
		return err
	}

	engine, err := pipeline.NewEngine(jobs, partitions, payloads, promptProvider, provider, neo4jFactory,
		pipeline.WithConcurrency(c.Int("concurrency")))
	if err != nil {
		return fmt.Errorf("failed to create pipeline engine: %w", err)
	}
	defer engine.Release()

	job, err := engine.SubmitIngestion(ctx, tc,
		c.String("source"), c.String("destination"),
		c.String("prompt"), c.String("schema-prompt"),
		c.Int("chunk-size"), c.Int("chunk-overlap"))
	if err != nil {
		return fmt.Errorf("failed to submit ingestion: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Source: %s\n", c.String("source"))
	fmt.Fprintf(os.Stderr, "Destination: %s (%s)\n", tc.Credentials.URI, c.String("destination"))
	fmt.Fprintf(os.Stderr, "Job: %d\n", job.Id)
	fmt.Fprintln(os.Stderr)

	runErr := engine.RunIngestion(ctx, tc, job.Id)
	printJobView(ctx, engine.Admin, job.Id)
	if runErr != nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}
	return nil
}

func enrichCommand(c *cli.Context) error {
	ctx := context.Background()

	backend, jobs, partitions, payloads, err := openRepositories(c)
	if err != nil {
		return err
	}
	defer closeRepositories(backend, jobs, partitions)

	promptProvider, err := loadPrompts(c)
	if err != nil {
		return err
	}

	provider, err := openai.NewProvider(aiConfigFromFlags(c))
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}

	tc, err := acquireTenant(c)
	if err != nil {
		return err
	}

	opts := []enrich.Option{enrich.WithParallelism(c.Int("parallel"))}
	if schemaPath := c.String("record-schema"); schemaPath != "" {
		raw, readErr := os.ReadFile(schemaPath)
		if readErr != nil {
			return fmt.Errorf("failed to read record schema: %w", readErr)
		}
		opts = append(opts, enrich.WithRecordSchema(string(raw)))
	}

	orchestrator, err := enrich.NewOrchestrator(jobs, partitions, payloads, promptProvider, provider, opts...)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orchestrator.Release()

	job, err := orchestrator.SubmitEnrichment(ctx, tc, c.String("source"), c.String("prompt"), c.Int("batch-size"))
	if err != nil {
		return fmt.Errorf("failed to submit enrichment: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Source: %s\n", c.String("source"))
	fmt.Fprintf(os.Stderr, "Job: %d\n", job.Id)
	fmt.Fprintln(os.Stderr)

	runErr := orchestrator.Run(ctx, tc, job.Id)
	printJobView(ctx, pipeline.NewAdmin(jobs, partitions), job.Id)
	if runErr != nil {
		return fmt.Errorf("enrichment failed: %w", runErr)
	}

	if output := c.String("output"); output != "" {
		if err := orchestrator.WriteCombined(ctx, job.Id, output); err != nil {
			return fmt.Errorf("failed to write combined output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Combined output written to %s\n", output)
	}

	if !c.Bool("chain") {
		return nil
	}

	chained, err := orchestrator.ChainIngestion(ctx, tc, job.Id,
		c.String("destination"), c.String("chain-prompt"), c.String("chain-schema-prompt"),
		c.Int("chain-chunk-size"))
	if err != nil {
		return fmt.Errorf("failed to chain ingestion: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Chained ingestion job: %d\n", chained.Id)

	engine, err := pipeline.NewEngine(jobs, partitions, payloads, promptProvider, provider, neo4jFactory)
	if err != nil {
		return fmt.Errorf("failed to create pipeline engine: %w", err)
	}
	defer engine.Release()

	runErr = engine.RunIngestion(ctx, tc, chained.Id)
	printJobView(ctx, engine.Admin, chained.Id)
	if runErr != nil {
		return fmt.Errorf("chained ingestion failed: %w", runErr)
	}
	return nil
}

func embedCommand(c *cli.Context) error {
	ctx := context.Background()

	aiConfig := aiConfigFromFlags(c)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	tc, err := acquireTenant(c)
	if err != nil {
		return err
	}

	store, err := neo4j.NewStore(ctx, tc.Credentials)
	if err != nil {
		return fmt.Errorf("failed to connect to destination: %w", err)
	}
	defer store.Close(ctx)

	groups, err := parseGroups(c.StringSlice("group"))
	if err != nil {
		return err
	}

	opts := []embed.Option{
		embed.WithBatchSize(c.Int("batch-size")),
		embed.WithLabelWorkers(c.Int("label-workers")),
		embed.WithBatchWorkers(c.Int("batch-workers")),
		embed.WithVectorProperty(c.String("vector-property")),
		embed.WithValidityFlag(c.String("validity-flag")),
		embed.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
	}
	if labels := c.StringSlice("label"); len(labels) > 0 {
		opts = append(opts, embed.WithLabels(labels...))
	}
	if len(groups) > 0 {
		opts = append(opts, embed.WithGroups(groups...))
	}

	engine, err := embed.NewEngine(embedder, opts...)
	if err != nil {
		return fmt.Errorf("failed to create embedding engine: %w", err)
	}
	defer engine.Release()

	fmt.Fprintf(os.Stderr, "Destination: %s\n", tc.Credentials.URI)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", aiConfig.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	stats, err := engine.Run(ctx, store)
	if stats != nil {
		printEmbedStats(stats)
	}
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	jobID, err := jobIDArg(c)
	if err != nil {
		return err
	}

	backend, jobs, partitions, _, err := openRepositories(c)
	if err != nil {
		return err
	}
	defer closeRepositories(backend, jobs, partitions)

	printJobView(ctx, pipeline.NewAdmin(jobs, partitions), jobID)
	return nil
}

func resetCommand(c *cli.Context) error {
	ctx := context.Background()

	jobID, err := jobIDArg(c)
	if err != nil {
		return err
	}

	backend, jobs, partitions, _, err := openRepositories(c)
	if err != nil {
		return err
	}
	defer closeRepositories(backend, jobs, partitions)

	if err := pipeline.NewAdmin(jobs, partitions).Reset(ctx, jobID); err != nil {
		return fmt.Errorf("failed to reset job %d: %w", jobID, err)
	}
	fmt.Fprintf(os.Stderr, "Job %d reset\n", jobID)
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, jobs, partitions, _, err := openRepositories(c)
	if err != nil {
		return err
	}
	defer closeRepositories(backend, jobs, partitions)

	srv := server.New(pipeline.NewAdmin(jobs, partitions), partitions)
	return srv.ListenAndServe(ctx, c.String("addr"))
}

// neo4jFactory opens a destination store session from tenant credentials.
func neo4jFactory(ctx context.Context, tc *tenant.Context) (graph.Store, error) {
	return neo4j.NewStore(ctx, tc.Credentials)
}

func openRepositories(c *cli.Context) (*badger.Backend, *badger.JobRepository, *badger.PartitionRepository, *badger.PayloadStore, error) {
	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	jobs, err := badger.NewJobRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to create job repository: %w", err)
	}

	partitions, err := badger.NewPartitionRepository(backend)
	if err != nil {
		jobs.Close()
		backend.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to create partition repository: %w", err)
	}

	return backend, jobs, partitions, badger.NewPayloadStore(backend), nil
}

func closeRepositories(backend *badger.Backend, jobs *badger.JobRepository, partitions *badger.PartitionRepository) {
	partitions.Close()
	jobs.Close()
	backend.Close()
}

func loadPrompts(c *cli.Context) (prompts.Provider, error) {
	path := c.String("prompts-file")
	if path == "" {
		return prompts.NewProvider(), nil
	}
	provider, err := prompts.NewFileProvider(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts from %s: %w", path, err)
	}
	return provider, nil
}

func aiConfigFromFlags(c *cli.Context) *ai.Config {
	return ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithGenerationModel(c.String("generation-model")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithToken(c.String("ai-token")),
	)
}

func acquireTenant(c *cli.Context) (*tenant.Context, error) {
	tenantID := c.String("tenant")
	resolver := tenant.StaticResolver{
		tenantID: tenant.Credentials{
			URI:      c.String("neo4j-uri"),
			Username: c.String("neo4j-user"),
			Password: c.String("neo4j-password"),
			Database: c.String("neo4j-database"),
		},
	}
	cache := tenant.NewCache(resolver, tenant.DefaultTTL)
	return cache.Acquire(tenantID)
}

// parseGroups turns "name:prop1,prop2" specs into embedding groups.
func parseGroups(specs []string) ([]embed.Group, error) {
	groups := make([]embed.Group, 0, len(specs))
	for _, spec := range specs {
		name, propList, ok := strings.Cut(spec, ":")
		if !ok || name == "" || propList == "" {
			return nil, fmt.Errorf("invalid group %q: expected name:prop1,prop2", spec)
		}
		var props []string
		for _, p := range strings.Split(propList, ",") {
			if p = strings.TrimSpace(p); p != "" {
				props = append(props, p)
			}
		}
		if len(props) == 0 {
			return nil, fmt.Errorf("invalid group %q: no properties", spec)
		}
		groups = append(groups, embed.Group{Name: name, Properties: props})
	}
	return groups, nil
}

func jobIDArg(c *cli.Context) (core.ID, error) {
	raw := c.Args().First()
	if raw == "" {
		return 0, fmt.Errorf("job id argument is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return core.ID(id), nil
}

func printJobView(ctx context.Context, admin *pipeline.Admin, jobID core.ID) {
	view, err := admin.Status(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read job %d: %v\n", jobID, err)
		return
	}

	job := view.Job
	fmt.Fprintf(os.Stderr, "Job %d (%s): %s, %d%% complete\n",
		job.Id, job.Kind, job.Status, job.CompletionPercentage)
	fmt.Fprintf(os.Stderr, "Partitions: %d done, %d error, %d pending, %d processing (total %d)\n",
		view.Counts.Done, view.Counts.Error, view.Counts.Pending, view.Counts.Processing, view.Counts.Total())

	if view.Summary.Total > 0 {
		fmt.Fprintf(os.Stderr, "Errors: %d pipeline, %d schema, %d destination, %d validation (%d fatal)\n",
			view.Summary.PipelineErrors, view.Summary.SchemaErrors,
			view.Summary.DestinationErrors, view.Summary.ValidationErrors,
			view.Summary.FatalErrors)
		for _, record := range view.Recent {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", record.Category, record.Message)
		}
	}
}

func printEmbedStats(stats *embed.Stats) {
	fmt.Fprintf(os.Stderr, "Embedded %d nodes, skipped %d, in %s\n",
		stats.TotalEmbedded(), stats.TotalSkipped(), stats.Duration.Round(time.Millisecond))
	for name, label := range stats.Labels {
		fmt.Fprintf(os.Stderr, "  %s: %d nodes, %d embedded, %d skipped, %d batches (%s)\n",
			name, label.Nodes, label.Embedded, label.Skipped, label.Batches,
			label.Duration.Round(time.Millisecond))
	}
}

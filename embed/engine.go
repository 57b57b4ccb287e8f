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


// Package embed generates vector embeddings for destination graph nodes.
//
// The engine runs directly against the destination store, independent of
// jobs and partitions: it enumerates nodes label by label, batches them,
// embeds the configured property groups (or the whole node) and writes the
// vectors back with a validity flag. Nodes whose flag is already true are
// skipped, so re-runs are incremental.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/graphmill/ai"
	"github.com/poiesic/graphmill/graph"
)

const (
	// defaultLabelWorkers bounds labels processed in parallel.
	defaultLabelWorkers = 3

	// defaultBatchWorkers bounds node batches in flight across all labels.
	defaultBatchWorkers = 3

	defaultBatchSize = 50

	defaultVectorProperty = "embedding"
	defaultValidityFlag   = "embedding_valid"

	defaultMaxRetries = 3
	defaultRetryDelay = time.Second

	// wholeNodeGroup is the stats key used when no groups are configured.
	wholeNodeGroup = "all"
)

// ErrEmbedderRequired is returned when the engine is built without an embedder.
var ErrEmbedderRequired = errors.New("embed: embedder is required")

// Group names a subset of node properties embedded together. A group's
// vector is written under "<vector property>_<group name>".
type Group struct {
	Name       string
	Properties []string
}

// Engine embeds destination nodes with two levels of bounded parallelism:
// a worker pool over labels and a shared pool over node batches.
type Engine struct {
	embedder     ai.Embedder
	labels       []string
	groups       []Group
	batchSize    int
	property     string
	validityFlag string
	maxRetries   int
	retryDelay   time.Duration
	labelPool    *ants.Pool
	batchPool    *ants.Pool
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLabels restricts the run to the given labels.
// Default is every label the store reports.
func WithLabels(labels ...string) Option {
	return func(e *Engine) error {
		e.labels = labels
		return nil
	}
}

// WithGroups configures named property subsets to embed separately.
// Default is whole-node mode: one vector over all property values.
func WithGroups(groups ...Group) Option {
	return func(e *Engine) error {
		for _, g := range groups {
			if g.Name == "" || len(g.Properties) == 0 {
				return fmt.Errorf("embed: group needs a name and at least one property")
			}
		}
		e.groups = groups
		return nil
	}
}

// WithBatchSize sets how many nodes are embedded per batch.
// Default is 50, with a minimum of 1.
func WithBatchSize(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		e.batchSize = n
		return nil
	}
}

// WithLabelWorkers sets the label-level pool size.
// Default is 3, with a minimum of 1.
func WithLabelWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		if e.labelPool != nil {
			e.labelPool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.labelPool = pool
		return nil
	}
}

// WithBatchWorkers sets the batch-level pool size.
// Default is 3, with a minimum of 1.
func WithBatchWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		if e.batchPool != nil {
			e.batchPool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.batchPool = pool
		return nil
	}
}

// WithVectorProperty sets the node property vectors are written to.
// Default is "embedding".
func WithVectorProperty(name string) Option {
	return func(e *Engine) error {
		if name != "" {
			e.property = name
		}
		return nil
	}
}

// WithValidityFlag sets the boolean property marking embedded nodes.
// Default is "embedding_valid".
func WithValidityFlag(name string) Option {
	return func(e *Engine) error {
		if name != "" {
			e.validityFlag = name
		}
		return nil
	}
}

// WithRetry sets the retry policy for embedding calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Engine) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		e.maxRetries = maxAttempts
		e.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates an embedding engine.
func NewEngine(embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	labelPool, err := ants.NewPool(defaultLabelWorkers)
	if err != nil {
		return nil, err
	}
	batchPool, err := ants.NewPool(defaultBatchWorkers)
	if err != nil {
		labelPool.Release()
		return nil, err
	}

	e := &Engine{
		embedder:     embedder,
		batchSize:    defaultBatchSize,
		property:     defaultVectorProperty,
		validityFlag: defaultValidityFlag,
		maxRetries:   defaultMaxRetries,
		retryDelay:   defaultRetryDelay,
		labelPool:    labelPool,
		batchPool:    batchPool,
		logger:       slog.Default().With("component", "embed-engine"),
	}

	for _, opt := range opts {
		if optErr := opt(e); optErr != nil {
			e.Release()
			return nil, optErr
		}
	}
	return e, nil
}

// Release releases both worker pools.
// The engine should not be used after calling Release.
func (e *Engine) Release() {
	if e.labelPool != nil {
		e.labelPool.Release()
	}
	if e.batchPool != nil {
		e.batchPool.Release()
	}
}

// Run embeds every eligible node of every configured label and returns the
// run's timing stats. Per-label failures are joined into the returned
// error; labels fail independently.
func (e *Engine) Run(ctx context.Context, store graph.Store) (*Stats, error) {
	start := time.Now()

	labels := e.labels
	if len(labels) == 0 {
		discovered, err := store.ListLabels(ctx)
		if err != nil {
			return nil, err
		}
		labels = discovered
	}

	stats := newStats()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, label := range labels {
		label := label
		wg.Add(1)
		submitErr := e.labelPool.Submit(func() {
			defer wg.Done()
			if err := e.processLabel(ctx, store, label, stats); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("label %s: %w", label, err))
				errMu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return stats, submitErr
		}
	}
	wg.Wait()

	stats.Duration = time.Since(start)
	e.logger.Info("embedding run finished",
		"labels", len(labels),
		"embedded", stats.TotalEmbedded(),
		"skipped", stats.TotalSkipped(),
		"duration", stats.Duration)
	return stats, errors.Join(errs...)
}

// processLabel fetches a label's nodes, filters already-embedded ones and
// fans the rest out over the batch pool.
func (e *Engine) processLabel(ctx context.Context, store graph.Store, label string, stats *Stats) error {
	start := time.Now()

	nodes, err := store.FetchNodesByLabel(ctx, label)
	if err != nil {
		return err
	}

	eligible := make([]graph.Node, 0, len(nodes))
	skipped := 0
	for _, node := range nodes {
		if valid, ok := node.Properties[e.validityFlag].(bool); ok && valid {
			skipped++
			continue
		}
		eligible = append(eligible, node)
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for begin := 0; begin < len(eligible); begin += e.batchSize {
		end := begin + e.batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[begin:end]

		wg.Add(1)
		submitErr := e.batchPool.Submit(func() {
			defer wg.Done()
			if err := e.processBatch(ctx, store, label, batch, stats); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return submitErr
		}
	}
	wg.Wait()

	stats.recordLabel(label, len(nodes), skipped, time.Since(start))
	return errors.Join(errs...)
}

// processBatch embeds one node batch, one vector write per group.
func (e *Engine) processBatch(ctx context.Context, store graph.Store, label string, nodes []graph.Node, stats *Stats) error {
	groups := e.groups
	if len(groups) == 0 {
		groups = []Group{{Name: wholeNodeGroup}}
	}

	embedded := make(map[string]bool, len(nodes))
	for _, group := range groups {
		start := time.Now()

		texts := make([]string, 0, len(nodes))
		ids := make([]string, 0, len(nodes))
		for _, node := range nodes {
			text := e.groupText(node, group)
			if text == "" {
				continue
			}
			texts = append(texts, text)
			ids = append(ids, node.ElementID)
		}
		if len(texts) == 0 {
			continue
		}

		var vectors [][]float32
		err := RetryWithBackoff(ctx, func() error {
			var embedErr error
			vectors, embedErr = e.embedder.EmbedTexts(ctx, texts)
			return embedErr
		}, e.maxRetries, e.retryDelay)
		if err != nil {
			return fmt.Errorf("embedding %d nodes after %d attempts: %w", len(texts), e.maxRetries, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
		}

		rows := make([]graph.NodeEmbedding, len(ids))
		for i, id := range ids {
			rows[i] = graph.NodeEmbedding{ElementID: id, Vector: NormalizeVector(vectors[i])}
			embedded[id] = true
		}

		if err := store.WriteEmbeddings(ctx, e.groupProperty(group), e.validityFlag, rows); err != nil {
			return fmt.Errorf("writing %s vectors: %w", group.Name, err)
		}
		stats.recordGroup(label, group.Name, time.Since(start))
	}

	stats.recordBatch(label, len(embedded))
	return nil
}

// groupProperty maps a group to its vector property name.
func (e *Engine) groupProperty(group Group) string {
	if len(group.Properties) == 0 {
		return e.property
	}
	return e.property + "_" + group.Name
}

// groupText concatenates a node's property values for a group. Whole-node
// mode walks every property in sorted order, leaving out the vector and
// flag properties.
func (e *Engine) groupText(node graph.Node, group Group) string {
	properties := group.Properties
	if len(properties) == 0 {
		properties = make([]string, 0, len(node.Properties))
		for name := range node.Properties {
			if name == e.validityFlag || strings.HasPrefix(name, e.property) {
				continue
			}
			properties = append(properties, name)
		}
		sort.Strings(properties)
	}

	var b strings.Builder
	for _, name := range properties {
		value, ok := node.Properties[name]
		if !ok || value == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %v", name, value)
	}
	return b.String()
}

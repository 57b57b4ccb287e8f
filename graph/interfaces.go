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


// Package graph abstracts the Cypher-speaking destination store. The
// pipeline engines depend on the Store interface; graph/neo4j provides the
// production implementation and graph/mock an in-memory double.
package graph

import (
	"context"
	"errors"

	"github.com/poiesic/graphmill/core"
)

// ErrConnection marks connection-level store failures. Callers escalate
// these to job-fatal, unlike per-statement write failures.
var ErrConnection = errors.New("graph: connection failure")

// StatementResult reports the outcome of one executed statement.
type StatementResult struct {
	// Statement is the Cypher text that was executed.
	Statement string

	// Err is nil on success.
	Err error

	// Mutation counters from the server.
	NodesCreated         int
	RelationshipsCreated int
}

// Node is a destination graph node fetched for embedding.
type Node struct {
	// ElementID is the store's opaque node identifier.
	ElementID string

	// Labels attached to the node.
	Labels []string

	// Properties holds the node's property values.
	Properties map[string]any
}

// NodeEmbedding pairs a node with a generated vector for write-back.
type NodeEmbedding struct {
	ElementID string
	Vector    []float32
}

// Store is an authenticated session against a Cypher destination store.
// Implementations must be safe for concurrent use; partitions and embedding
// batches write concurrently with no cross-partition isolation.
type Store interface {
	// ExecuteStatements runs statements in order, continuing past
	// per-statement failures; each failure is captured in its result.
	// Returns a non-nil error only for connection-level failures, wrapped
	// with ErrConnection.
	ExecuteStatements(ctx context.Context, statements []string) ([]StatementResult, error)

	// Introspect reads labels, property keys and relationship types from
	// the live graph. Returns a schema with Origin set to
	// core.SchemaOriginIntrospected; the schema is empty when the graph is.
	Introspect(ctx context.Context) (*core.Schema, error)

	// ListLabels returns all node labels present in the graph.
	ListLabels(ctx context.Context) ([]string, error)

	// FetchNodesByLabel returns every node carrying the label.
	FetchNodesByLabel(ctx context.Context, label string) ([]Node, error)

	// WriteEmbeddings writes vectors onto nodes under the property name
	// and sets the validity flag property to true on each.
	WriteEmbeddings(ctx context.Context, property, validityFlag string, batch []NodeEmbedding) error

	// Close releases the underlying driver or session resources.
	Close(ctx context.Context) error
}

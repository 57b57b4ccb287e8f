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


// Package neo4j implements graph.Store against a Neo4j server.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/graph"
	"github.com/poiesic/graphmill/tenant"
)

// Store implements graph.Store using the official Neo4j driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// NewStore opens a driver for the tenant's destination store and verifies
// connectivity once.
//
// Returns graph.Store interface to enforce abstraction.
func NewStore(ctx context.Context, creds tenant.Credentials) (graph.Store, error) {
	driver, err := neo4j.NewDriverWithContext(creds.URI, neo4j.BasicAuth(creds.Username, creds.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrConnection, err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", graph.ErrConnection, err)
	}

	return &Store{
		driver:   driver,
		database: creds.Database,
		logger:   slog.Default().With("component", "neo4j-store"),
	}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// wrapErr tags connectivity failures with graph.ErrConnection so callers
// can escalate them; other errors pass through unchanged.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", graph.ErrConnection, err)
	}
	return err
}

// ExecuteStatements runs statements in order, continuing past per-statement
// failures.
func (s *Store) ExecuteStatements(ctx context.Context, statements []string) ([]graph.StatementResult, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	results := make([]graph.StatementResult, 0, len(statements))
	for _, stmt := range statements {
		sr := graph.StatementResult{Statement: stmt}

		run, err := session.Run(ctx, stmt, nil)
		if err == nil {
			var summary neo4j.ResultSummary
			summary, err = run.Consume(ctx)
			if err == nil {
				counters := summary.Counters()
				sr.NodesCreated = counters.NodesCreated()
				sr.RelationshipsCreated = counters.RelationshipsCreated()
			}
		}

		if err != nil {
			if neo4j.IsConnectivityError(err) {
				return results, wrapErr(err)
			}
			s.logger.Warn("statement failed", "err", err)
			sr.Err = err
		}
		results = append(results, sr)
	}
	return results, nil
}

// Introspect reads labels, sampled property keys and relationship types
// from the live graph.
func (s *Store) Introspect(ctx context.Context) (*core.Schema, error) {
	labels, err := s.ListLabels(ctx)
	if err != nil {
		return nil, err
	}

	schema := &core.Schema{Origin: core.SchemaOriginIntrospected}

	session := s.session(ctx)
	defer session.Close(ctx)

	for _, label := range labels {
		query := fmt.Sprintf("MATCH (n:%s) WITH n LIMIT 100 UNWIND keys(n) AS key RETURN DISTINCT key", quoteIdent(label))
		run, err := session.Run(ctx, query, nil)
		if err != nil {
			return nil, wrapErr(err)
		}

		node := core.NodeLabel{Name: label}
		for run.Next(ctx) {
			if key, ok := run.Record().Values[0].(string); ok {
				node.Properties = append(node.Properties, core.PropertySpec{Name: key, Type: "string"})
			}
		}
		if err := run.Err(); err != nil {
			return nil, wrapErr(err)
		}
		schema.Labels = append(schema.Labels, node)
	}

	run, err := session.Run(ctx,
		"MATCH (a)-[r]->(b) RETURN DISTINCT type(r), labels(a)[0], labels(b)[0] LIMIT 200", nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	for run.Next(ctx) {
		values := run.Record().Values
		rel := core.RelationshipSpec{}
		if t, ok := values[0].(string); ok {
			rel.Type = t
		}
		if from, ok := values[1].(string); ok {
			rel.From = from
		}
		if to, ok := values[2].(string); ok {
			rel.To = to
		}
		schema.Relationships = append(schema.Relationships, rel)
	}
	if err := run.Err(); err != nil {
		return nil, wrapErr(err)
	}

	return schema, nil
}

// ListLabels returns all node labels present in the graph.
func (s *Store) ListLabels(ctx context.Context) ([]string, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	run, err := session.Run(ctx, "CALL db.labels()", nil)
	if err != nil {
		return nil, wrapErr(err)
	}

	var labels []string
	for run.Next(ctx) {
		if label, ok := run.Record().Values[0].(string); ok {
			labels = append(labels, label)
		}
	}
	if err := run.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return labels, nil
}

// FetchNodesByLabel returns every node carrying the label.
func (s *Store) FetchNodesByLabel(ctx context.Context, label string) ([]graph.Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s) RETURN elementId(n), labels(n), properties(n)", quoteIdent(label))
	run, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, wrapErr(err)
	}

	var nodes []graph.Node
	for run.Next(ctx) {
		values := run.Record().Values
		node := graph.Node{}
		if id, ok := values[0].(string); ok {
			node.ElementID = id
		}
		if rawLabels, ok := values[1].([]any); ok {
			for _, l := range rawLabels {
				if s, ok := l.(string); ok {
					node.Labels = append(node.Labels, s)
				}
			}
		}
		if props, ok := values[2].(map[string]any); ok {
			node.Properties = props
		}
		nodes = append(nodes, node)
	}
	if err := run.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return nodes, nil
}

// WriteEmbeddings writes vectors onto nodes and flips the validity flag.
func (s *Store) WriteEmbeddings(ctx context.Context, property, validityFlag string, batch []graph.NodeEmbedding) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(batch))
	for _, e := range batch {
		vector := make([]float64, len(e.Vector))
		for i, v := range e.Vector {
			vector[i] = float64(v)
		}
		rows = append(rows, map[string]any{"id": e.ElementID, "vector": vector})
	}

	// Property names cannot be parameterized in Cypher
	query := fmt.Sprintf(
		"UNWIND $rows AS row MATCH (n) WHERE elementId(n) = row.id SET n.%s = row.vector, n.%s = true",
		quoteIdent(property), quoteIdent(validityFlag))

	session := s.session(ctx)
	defer session.Close(ctx)

	run, err := session.Run(ctx, query, map[string]any{"rows": rows})
	if err != nil {
		return wrapErr(err)
	}
	if _, err := run.Consume(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

// quoteIdent backtick-quotes an identifier for safe interpolation.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

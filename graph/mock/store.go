// Package mock provides an in-memory test double for graph.Store.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/graph"
)

// MockStore is a test double for graph.Store.
// It records executed statements and allows behavior injection via
// function fields.
type MockStore struct {
	// ExecuteFunc is called by ExecuteStatements if set.
	ExecuteFunc func(ctx context.Context, statements []string) ([]graph.StatementResult, error)

	// IntrospectFunc is called by Introspect if set.
	// If nil, Introspect returns Schema (which may be nil/empty).
	IntrospectFunc func(ctx context.Context) (*core.Schema, error)

	// Schema is returned by the default Introspect behavior.
	Schema *core.Schema

	// Nodes holds per-label node sets for FetchNodesByLabel.
	Nodes map[string][]graph.Node

	// FailStatementsContaining marks statements as failed when they
	// contain this substring. Empty means every statement succeeds.
	FailStatementsContaining string

	mu         sync.Mutex
	executed   []string
	embeddings []WrittenEmbedding
	closed     bool
}

// WrittenEmbedding records one WriteEmbeddings row for assertions.
type WrittenEmbedding struct {
	Property     string
	ValidityFlag string
	ElementID    string
	Vector       []float32
}

var _ graph.Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store.
// Note: Returns concrete type to allow test assertions.
func NewMockStore() *MockStore {
	return &MockStore{Nodes: make(map[string][]graph.Node)}
}

type mockStatementError struct{ stmt string }

func (e *mockStatementError) Error() string { return "mock: statement rejected: " + e.stmt }

// ExecuteStatements records statements and reports per-statement results.
func (m *MockStore) ExecuteStatements(ctx context.Context, statements []string) ([]graph.StatementResult, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, statements)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]graph.StatementResult, 0, len(statements))
	for _, stmt := range statements {
		m.executed = append(m.executed, stmt)
		sr := graph.StatementResult{Statement: stmt}
		if m.FailStatementsContaining != "" && strings.Contains(stmt, m.FailStatementsContaining) {
			sr.Err = &mockStatementError{stmt: stmt}
		} else {
			sr.NodesCreated = 1
		}
		results = append(results, sr)
	}
	return results, nil
}

// Introspect returns the configured schema, or an empty introspected one.
func (m *MockStore) Introspect(ctx context.Context) (*core.Schema, error) {
	if m.IntrospectFunc != nil {
		return m.IntrospectFunc(ctx)
	}
	if m.Schema != nil {
		return m.Schema, nil
	}
	return &core.Schema{Origin: core.SchemaOriginIntrospected}, nil
}

// ListLabels returns the keys of the configured node sets.
func (m *MockStore) ListLabels(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	labels := make([]string, 0, len(m.Nodes))
	for label := range m.Nodes {
		labels = append(labels, label)
	}
	return labels, nil
}

// FetchNodesByLabel returns the configured nodes for the label.
func (m *MockStore) FetchNodesByLabel(ctx context.Context, label string) ([]graph.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Nodes[label], nil
}

// WriteEmbeddings records the written vectors for assertions.
func (m *MockStore) WriteEmbeddings(ctx context.Context, property, validityFlag string, batch []graph.NodeEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range batch {
		m.embeddings = append(m.embeddings, WrittenEmbedding{
			Property:     property,
			ValidityFlag: validityFlag,
			ElementID:    e.ElementID,
			Vector:       e.Vector,
		})
	}
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Executed returns a copy of all executed statements.
func (m *MockStore) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

// Embeddings returns a copy of all recorded embedding writes.
func (m *MockStore) Embeddings() []WrittenEmbedding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WrittenEmbedding, len(m.embeddings))
	copy(out, m.embeddings)
	return out
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Generator, ai.Embedder,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run
// without external AI service dependencies and enable controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Queue canned LLM responses, consumed in order
//	gen := mock.NewMockGenerator("CREATE (p:Product);", `[{"a":1}]`)
//
//	// Custom behavior injection
//	gen.GenerateTextFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
//	    return "", errors.New("model unavailable")
//	}
//
//	// Check call counts and recorded requests
//	count := gen.CallCount()
//	reqs := gen.Requests()
//
// # Default Behavior
//
//   - MockGenerator: drains the queued responses, then returns "RETURN 1"
//   - MockEmbedder: returns deterministic vectors based on text hash
//   - MockProvider: aggregates mock generator and embedder
package mock

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


// Package ai provides abstractions for the AI services used in Graphmill.
//
// This package defines interfaces for text generation and embeddings. The
// pipeline engines depend on these abstractions rather than on a concrete
// LLM client, so providers can be swapped and tests run without a model.
//
// The package is designed around three key interfaces:
//
//   - Generator: produces text from an LLM given a prompt pair
//   - Embedder: generates vector embeddings from text
//   - AIProvider: aggregates AI services for convenient initialization
//
// Two implementation sub-packages are included:
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewGenerator, etc.) return
// INTERFACE types to enforce abstraction and prevent accidental coupling to
// concrete implementations. Mock constructors return CONCRETE types so tests
// can inject behavior and assert on call counts.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockGen := mock.NewMockGenerator()           // returns *mock.MockGenerator
package ai

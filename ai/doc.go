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

// Package ai provides abstractions for the model services used by mailkb.
//
// Three interfaces cover the model-facing side of the pipeline:
//
//   - Embedder: generates vector embeddings from text
//   - EmailClassifier: grades an email's sensitivity, department and privacy
//   - AIProvider: aggregates both for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/mock: test doubles that never touch the network
//
// Public constructors in ai/openai return interfaces. The mock constructors
// return concrete types so tests can inject behavior and count calls:
//
//	embedder := mock.NewMockEmbedder(8)
//	embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("upstream down")
//	})
//
// # Failure Semantics
//
// Implementations here report errors. Turning errors into the pipeline's
// fail-closed analysis and zero-vector fallbacks is the job of the analysis
// package, which wraps these interfaces.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	analysis, err := provider.Classifier().ClassifyEmail(ctx, text)
package ai

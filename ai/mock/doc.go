// Package mock provides test doubles for the ai package interfaces.
//
// The mocks never touch the network, are safe for concurrent use, and
// record their calls so tests can assert on them.
//
// # Usage
//
//	provider := mock.NewMockProvider(8)
//	classifier := provider.(*mock.MockProvider).GetMockClassifier()
//	classifier.WithClassifyFunc(func(ctx context.Context, text string) (*core.EmailAnalysis, error) {
//	    return nil, errors.New("model unavailable")
//	})
//
//	// Check call counts
//	count := classifier.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns deterministic unit vectors derived from a text hash
//   - MockClassifier: returns a keyword-based analysis (see KeywordAnalysis)
//   - MockProvider: aggregates a mock embedder and classifier
package mock

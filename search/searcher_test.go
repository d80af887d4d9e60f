package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/poiesic/mailkb/ai/mock"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
	"github.com/poiesic/mailkb/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 32

func setupSearcher(t *testing.T) (*Searcher, *badger.Repositories, *mock.MockProvider) {
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	provider := mock.NewMockProvider(testDim).(*mock.MockProvider)
	searcher, err := NewSearcher(repos.Vectors, provider)
	require.NoError(t, err)
	return searcher, repos, provider
}

// index stores content under emailID with the vector the mock embedder
// would produce for it.
func index(t *testing.T, repos *badger.Repositories, emailID, content string, dept core.Department, sens core.Sensitivity) {
	_, err := repos.Vectors.Upsert(context.Background(), &core.VectorRecord{
		ID:      core.VectorIDFor(emailID),
		EmailID: emailID,
		Content: content,
		Metadata: map[string]string{
			core.MetaDepartment:  string(dept),
			core.MetaSensitivity: string(sens),
		},
		Vector: mock.GenerateDeterministicVector(content, testDim),
	})
	require.NoError(t, err)
}

func TestNewSearcher(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	defer repos.Close()
	provider := mock.NewMockProvider(testDim)

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(repos.Vectors, provider)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(repos.Vectors, provider, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with custom logger", func(t *testing.T) {
		searcher, err := NewSearcher(repos.Vectors, provider, WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil vector repository", func(t *testing.T) {
		_, err := NewSearcher(nil, provider)
		assert.Equal(t, ErrVectorRepositoryRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewSearcher(repos.Vectors, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})
}

func TestSearch_EmptyIndex(t *testing.T) {
	searcher, _, _ := setupSearcher(t)

	results, err := searcher.Search(context.Background(), "quarterly budget", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RanksExactContentFirst(t *testing.T) {
	searcher, repos, _ := setupSearcher(t)

	index(t, repos, "m1", "Deploy checklist for the payments service", core.DepartmentEngineering, core.SensitivityLow)
	index(t, repos, "m2", "Quarterly budget review", core.DepartmentFinance, core.SensitivityMedium)
	index(t, repos, "m3", "Team offsite agenda", core.DepartmentGeneral, core.SensitivityLow)

	results, err := searcher.Search(context.Background(), "Quarterly budget review", Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "m2", results[0].Record.EmailID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, []string{"quarterly", "budget", "review"}, results[0].MatchedTerms)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_FiltersApplyBeforeLimit(t *testing.T) {
	searcher, repos, _ := setupSearcher(t)

	for i := range 5 {
		index(t, repos, fmt.Sprintf("eng%d", i), fmt.Sprintf("engineering note %d", i), core.DepartmentEngineering, core.SensitivityLow)
	}
	index(t, repos, "fin1", "finance note", core.DepartmentFinance, core.SensitivityHigh)
	index(t, repos, "fin2", "finance memo", core.DepartmentFinance, core.SensitivityLow)

	results, err := searcher.Search(context.Background(), "engineering note 1", Options{Limit: 2, Department: core.DepartmentFinance})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "finance", r.Record.Metadata[core.MetaDepartment])
	}

	results, err = searcher.Search(context.Background(), "note", Options{Department: core.DepartmentFinance, Sensitivity: core.SensitivityHigh})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fin1", results[0].Record.EmailID)
}

func TestSearch_Limit(t *testing.T) {
	searcher, repos, _ := setupSearcher(t)
	for i := range 15 {
		index(t, repos, fmt.Sprintf("m%d", i), fmt.Sprintf("message number %d", i), core.DepartmentGeneral, core.SensitivityLow)
	}

	results, err := searcher.Search(context.Background(), "message", Options{})
	require.NoError(t, err)
	assert.Len(t, results, core.DefaultSearchLimit)

	results, err = searcher.Search(context.Background(), "message", Options{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_InvalidOptions(t *testing.T) {
	searcher, _, provider := setupSearcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"negative limit", Options{Limit: -1}, storage.ErrInvalidQuery},
		{"limit too large", Options{Limit: core.MaxSearchLimit + 1}, storage.ErrInvalidQuery},
		{"unknown department", Options{Department: "facilities"}, ErrInvalidFilter},
		{"unknown sensitivity", Options{Sensitivity: "secret"}, ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := searcher.Search(ctx, "anything", tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := searcher.Search(ctx, "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	assert.Equal(t, 0, provider.GetMockEmbedder().CallCount(), "invalid searches must not reach the embedder")
}

func TestSearch_EmbedderFailureReturnsEmpty(t *testing.T) {
	searcher, repos, provider := setupSearcher(t)
	index(t, repos, "m1", "hello world", core.DepartmentGeneral, core.SensitivityLow)

	provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})

	results, err := searcher.Search(context.Background(), "hello world", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	searcher, _, provider := setupSearcher(t)
	provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	})

	_, err := searcher.Search(context.Background(), "hello", Options{})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

type recordingMonitor struct {
	stages  []string
	query   string
	zero    bool
	matches int
	results int
}

func (m *recordingMonitor) Start(query string, _ Options) {
	m.stages = append(m.stages, "start")
	m.query = query
}

func (m *recordingMonitor) AfterEmbedding(_ int, zero bool) {
	m.stages = append(m.stages, "embedding")
	m.zero = zero
}

func (m *recordingMonitor) AfterVectorSearch(matches []*core.SearchResult) {
	m.stages = append(m.stages, "vector")
	m.matches = len(matches)
}

func (m *recordingMonitor) Finish(results []*Result) {
	m.stages = append(m.stages, "finish")
	m.results = len(results)
}

func TestSearchWithMonitor(t *testing.T) {
	searcher, repos, provider := setupSearcher(t)
	index(t, repos, "m1", "release notes", core.DepartmentProduct, core.SensitivityLow)
	index(t, repos, "m2", "release plan", core.DepartmentProduct, core.SensitivityLow)

	monitor := &recordingMonitor{}
	_, err := searcher.SearchWithMonitor(context.Background(), "  release  ", Options{}, monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embedding", "vector", "finish"}, monitor.stages)
	assert.Equal(t, "release", monitor.query)
	assert.False(t, monitor.zero)
	assert.Equal(t, 2, monitor.matches)
	assert.Equal(t, 2, monitor.results)

	provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("down")
	})
	monitor = &recordingMonitor{}
	_, err = searcher.SearchWithMonitor(context.Background(), "release", Options{}, monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embedding", "finish"}, monitor.stages)
	assert.True(t, monitor.zero)
}

func TestMatchedTerms(t *testing.T) {
	tests := []struct {
		name     string
		document string
		query    string
		want     []string
	}{
		{"all words", "The Q3 budget is final.", "budget q3", []string{"budget", "q3"}},
		{"partial", "Budget approved", "budget forecast", []string{"budget"}},
		{"stop words only", "the and of", "the of", []string{}},
		{"punctuation", "(deploy) tonight!", "deploy, tonight?", []string{"deploy", "tonight"}},
		{"duplicates in query", "budget", "budget Budget", []string{"budget"}},
		{"none", "hello", "goodbye", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchedTerms(tt.document, tt.query))
		})
	}
}

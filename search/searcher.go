package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/analysis"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// Options narrows a search.
type Options struct {
	// Limit is the maximum number of results, 1..core.MaxSearchLimit.
	// Zero selects core.DefaultSearchLimit.
	Limit       int
	Department  core.Department
	Sensitivity core.Sensitivity
}

// Result is a ranked search hit.
type Result struct {
	Record *core.VectorRecord
	Score  float32
	// MatchedTerms are the query words found verbatim in the email.
	MatchedTerms []string
}

// Searcher answers natural-language queries against the vector index.
type Searcher struct {
	vectors        storage.VectorRepository
	embedder       *analysis.SafeEmbedder
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRequestTimeout bounds each query embedding call.
// Default is analysis.DefaultTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		s.requestTimeout = d
		return nil
	}
}

// NewSearcher creates a new searcher. Queries are embedded with the
// provider's embedder at the vector repository's dimension.
func NewSearcher(vectors storage.VectorRepository, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		vectors:        vectors,
		requestTimeout: analysis.DefaultTimeout,
		logger:         slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	embedder, err := analysis.NewSafeEmbedder(provider.Embedder(), vectors.Dimension(),
		analysis.WithTimeout(s.requestTimeout), analysis.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.embedder = embedder

	return s, nil
}

// Search returns emails similar to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, query, opts, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
//
// An empty query returns ErrEmptyQuery and an out-of-range limit returns
// storage.ErrInvalidQuery, both before the embedder is called. If the query
// embeds to a zero vector (the embedder failed) no ranking is possible and
// the result is empty.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, opts Options, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	vq, err := buildQuery(opts)
	if err != nil {
		return nil, err
	}

	monitor.Start(query, opts)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	zero := core.IsZeroVector(vector)
	monitor.AfterEmbedding(len(vector), zero)
	if zero {
		s.logger.Warn("query embedded to a zero vector, returning no results", "query", query)
		results := []*Result{}
		monitor.Finish(results)
		return results, nil
	}

	matches, err := s.vectors.Search(ctx, vector, vq)
	if err != nil {
		s.logger.Error("error querying vector index", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(matches)

	results := make([]*Result, len(matches))
	for i, match := range matches {
		results[i] = &Result{
			Record:       match.Record,
			Score:        match.Score,
			MatchedTerms: matchedTerms(match.Record.Content, query),
		}
	}
	monitor.Finish(results)

	s.logger.Debug("search complete", "results", len(results), "limit", vq.Limit)
	return results, nil
}

func buildQuery(opts Options) (core.VectorQuery, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = core.DefaultSearchLimit
	}
	if limit < 1 || limit > core.MaxSearchLimit {
		return core.VectorQuery{}, fmt.Errorf("%w: limit %d outside 1..%d",
			storage.ErrInvalidQuery, opts.Limit, core.MaxSearchLimit)
	}

	filter := map[string]string{}
	if opts.Department != "" {
		if !opts.Department.Valid() {
			return core.VectorQuery{}, fmt.Errorf("%w: %w: %q", ErrInvalidFilter, core.ErrInvalidDepartment, opts.Department)
		}
		filter[core.MetaDepartment] = string(opts.Department)
	}
	if opts.Sensitivity != "" {
		if !opts.Sensitivity.Valid() {
			return core.VectorQuery{}, fmt.Errorf("%w: %w: %q", ErrInvalidFilter, core.ErrInvalidSensitivity, opts.Sensitivity)
		}
		filter[core.MetaSensitivity] = string(opts.Sensitivity)
	}
	return core.VectorQuery{Limit: limit, Filter: filter}, nil
}

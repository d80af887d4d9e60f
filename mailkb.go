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


// Package mailkb wires storage, the AI provider, the review pipeline and
// semantic search into one Database.
package mailkb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/ai/openai"
	"github.com/poiesic/mailkb/config"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/ingestion"
	"github.com/poiesic/mailkb/queue"
	"github.com/poiesic/mailkb/reembed"
	"github.com/poiesic/mailkb/search"
	"github.com/poiesic/mailkb/storage"
	"github.com/poiesic/mailkb/storage/badger"
	"github.com/redis/go-redis/v9"
)

type Database struct {
	repos    *badger.Repositories
	provider ai.AIProvider
	pipeline *ingestion.Pipeline
	searcher *search.Searcher

	retryQueue       *queue.RetryQueue
	rdb              *redis.Client
	retryMaxAttempts int

	logger *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	inMemory   bool
	aiConfig   *ai.Config
	provider   ai.AIProvider
	logger     *slog.Logger
	retryQueue ingestion.RetryQueue
	poolSize   int
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithAIConfig sets the provider configuration. Its EmbeddingDimension
// fixes the vector index dimension.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithAIProvider uses provider instead of building an OpenAI-compatible
// one. The Database takes ownership and closes it.
func WithAIProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithRetryQueue sends emails whose indexing failed to q.
func WithRetryQueue(q ingestion.RetryQueue) DatabaseOption {
	return func(o *databaseOptions) {
		o.retryQueue = q
	}
}

// WithPoolSize sets the ingestion worker pool size.
func WithPoolSize(size int) DatabaseOption {
	return func(o *databaseOptions) {
		o.poolSize = size
	}
}

// NewDatabase opens or creates a database at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	repos, err := badger.OpenRepositories(filePath, options.inMemory, options.aiConfig.EmbeddingDimension)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			repos.Close()
			return nil, err
		}
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(options.logger),
		ingestion.WithRequestTimeout(options.aiConfig.RequestTimeout),
	}
	if options.poolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(options.poolSize))
	}
	if options.retryQueue != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithRetryQueue(options.retryQueue))
	}
	pipeline, err := ingestion.NewPipeline(repos.Reviews, repos.Vectors, repos.Audit, provider, pipelineOpts...)
	if err != nil {
		provider.Close()
		repos.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(repos.Vectors, provider,
		search.WithLogger(options.logger),
		search.WithRequestTimeout(options.aiConfig.RequestTimeout))
	if err != nil {
		pipeline.Release()
		provider.Close()
		repos.Close()
		return nil, err
	}

	return &Database{
		repos:    repos,
		provider: provider,
		pipeline: pipeline,
		searcher: searcher,
		logger:   options.logger,
	}, nil
}

// Open builds a Database from loaded configuration. When cfg.RedisURL is
// set, a Redis retry queue is connected and owned by the Database.
func Open(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	base := []DatabaseOption{
		WithAIConfig(cfg.AIConfig()),
		WithPoolSize(cfg.PoolSize),
	}
	if cfg.InMemory {
		base = append(base, WithInMemory())
	}

	var (
		retryQueue *queue.RetryQueue
		rdb        *redis.Client
	)
	if cfg.RedisURL != "" {
		var err error
		retryQueue, rdb, err = queue.Connect(ctx, cfg.RedisURL, cfg.RetryQueue)
		if err != nil {
			return nil, err
		}
		base = append(base, WithRetryQueue(retryQueue))
	}

	db, err := NewDatabase(cfg.DBPath, append(base, opts...)...)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	db.retryQueue = retryQueue
	db.rdb = rdb
	db.retryMaxAttempts = cfg.RetryMaxAttempts
	return db, nil
}

func (db *Database) Close() error {
	db.pipeline.Release()

	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if db.rdb != nil {
		if err := db.rdb.Close(); err != nil {
			db.logger.Error("error closing redis client", "err", err)
			errs = append(errs, err)
		}
	}
	if err := db.repos.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Pipeline() *ingestion.Pipeline {
	return db.pipeline
}

func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

// RetryQueue returns the Redis retry queue, or nil when none was configured.
func (db *Database) RetryQueue() *queue.RetryQueue {
	return db.retryQueue
}

func (db *Database) ReviewRepository() storage.ReviewRepository {
	return db.repos.Reviews
}

func (db *Database) VectorRepository() storage.VectorRepository {
	return db.repos.Vectors
}

func (db *Database) AuditRepository() storage.AuditRepository {
	return db.repos.Audit
}

// AuditLog returns matching audit entries, newest first.
func (db *Database) AuditLog(ctx context.Context, filter core.AuditFilter) ([]*core.AuditEntry, error) {
	return db.repos.Audit.Query(ctx, filter)
}

// NewRetryWorker creates a worker that drains the retry queue into the
// pipeline. The configured attempt limit applies unless opts override it.
// Returns queue.ErrQueueRequired without a Redis queue.
func (db *Database) NewRetryWorker(opts ...queue.WorkerOption) (*queue.Worker, error) {
	if db.retryQueue == nil {
		return nil, queue.ErrQueueRequired
	}
	base := []queue.WorkerOption{queue.WithWorkerLogger(db.logger)}
	if db.retryMaxAttempts > 0 {
		base = append(base, queue.WithMaxAttempts(db.retryMaxAttempts))
	}
	return queue.NewWorker(db.retryQueue, db.pipeline, append(base, opts...)...)
}

// Reembed recomputes every vector with the current embedder and records
// the run in the audit log.
func (db *Database) Reembed(ctx context.Context, actor core.Actor, cfg *reembed.Config, progress io.Writer) (int, error) {
	r := reembed.NewReembedder(db.repos.Vectors, db.provider.Embedder(), cfg, progress)
	processed, err := r.Run(ctx)

	details := map[string]string{"records": strconv.Itoa(processed)}
	if err != nil {
		details["error"] = err.Error()
	}
	if processed > 0 || err != nil {
		if _, auditErr := db.repos.Audit.Append(ctx, &core.AuditEntry{
			ActionType: core.ActionReembedIndex,
			UserID:     actor.ID,
			ResourceID: "index",
			Details:    details,
		}); auditErr != nil {
			db.logger.Error("failed to write audit entry", "action", core.ActionReembedIndex, "err", auditErr)
		}
	}
	return processed, err
}

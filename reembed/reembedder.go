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


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of every record in a vector index.
type Reembedder struct {
	vectors   storage.VectorRepository
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(vectors storage.VectorRepository, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		vectors:   vectors,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(vectors, embedder, config.MaxRetries, config.RetryDelay),
	}
}

// Run re-embeds every record in the index and returns how many were
// updated. The embedder's dimension is checked first, so a mismatched
// model fails before any record changes. A failing batch stops the run;
// records from earlier batches keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.vectors.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records found in index (0 records)\n")
		return 0, nil
	}

	if err := r.checkDimension(ctx); err != nil {
		return 0, err
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.vectors.ForEach(ctx, r.config.BatchSize, func(records []*core.VectorRecord) error {
		if err := r.processor.Process(ctx, records); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Add(len(records))
		return nil
	})
	tracker.Finish()
	processed := tracker.Done()
	if err != nil {
		return processed, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/elapsed.Seconds())

	return processed, nil
}

func (r *Reembedder) checkDimension(ctx context.Context) error {
	var probe []float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		probe, err = r.embedder.EmbedText(ctx, "dimension probe")
		return err
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to probe embedder: %w", err)
	}
	if len(probe) != r.vectors.Dimension() {
		return fmt.Errorf("%w: embedder produces %d, index holds %d",
			core.ErrDimensionMismatch, len(probe), r.vectors.Dimension())
	}
	return nil
}

package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// BatchProcessor re-embeds batches of vector records.
type BatchProcessor struct {
	vectors        storage.VectorRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding API call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(vectors storage.VectorRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		vectors:        vectors,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the stored content of each record and writes the records
// back with their new vectors. A batch whose vectors have the wrong
// dimension is not retried.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Content
	}

	dimension := bp.vectors.Dimension()
	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(records) {
			return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(records), len(embeddings))
		}
		for _, e := range embeddings {
			if len(e) != dimension {
				return Permanent(fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(e), dimension))
			}
		}
		return nil
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	for i, record := range records {
		record.Vector = embeddings[i]
		record.ContentHash = core.ContentHash(record.Content)
		if _, err := bp.vectors.Upsert(ctx, record); err != nil {
			return fmt.Errorf("failed to update vector %s: %w", record.ID, err)
		}
	}

	return nil
}

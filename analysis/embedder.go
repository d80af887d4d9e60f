package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/mailkb/ai"
)

// SafeEmbedder produces vectors of a fixed dimension, absorbing upstream
// failures as zero vectors.
type SafeEmbedder struct {
	embedder  ai.Embedder
	dimension int
	opts      options
}

// NewSafeEmbedder wraps embedder, expecting vectors of length dimension.
func NewSafeEmbedder(embedder ai.Embedder, dimension int, opts ...Option) (*SafeEmbedder, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}
	return &SafeEmbedder{
		embedder:  embedder,
		dimension: dimension,
		opts:      buildOptions("embedder", opts),
	}, nil
}

// Dimension returns the vector length Embed produces.
func (e *SafeEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding of text. Upstream errors and timeouts are
// logged and yield a zero vector with a nil error. A response of the wrong
// length returns ErrDimensionMismatch.
func (e *SafeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.opts.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	vector, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		e.opts.logger.Error("embedding failed, using zero vector",
			"chars", len(text), "elapsed", time.Since(start), "err", err)
		return make([]float32, e.dimension), nil
	}
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("%w: embedding service returned %d, configured %d",
			ErrDimensionMismatch, len(vector), e.dimension)
	}
	return vector, nil
}

// Probe embeds a short text and checks the result's dimension, so a
// misconfigured model is caught at startup instead of on first approval.
// Unlike Embed it reports upstream errors.
func (e *SafeEmbedder) Probe(ctx context.Context) error {
	ctx, cancel := e.opts.withTimeout(ctx)
	defer cancel()

	vector, err := e.embedder.EmbedText(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probing embedder: %w", err)
	}
	if len(vector) != e.dimension {
		return fmt.Errorf("%w: embedding service returned %d, configured %d",
			ErrDimensionMismatch, len(vector), e.dimension)
	}
	return nil
}

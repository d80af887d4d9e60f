package analysis

import (
	"errors"

	"github.com/poiesic/mailkb/core"
)

var (
	// ErrDimensionMismatch is returned when the embedding service answers
	// with vectors of a different length than configured.
	ErrDimensionMismatch = core.ErrDimensionMismatch

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidDimension is returned for a non-positive dimension.
	ErrInvalidDimension = errors.New("dimension must be positive")
)

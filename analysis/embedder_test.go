package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/mailkb/ai/mock"
	"github.com/poiesic/mailkb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func TestNewSafeEmbedder_Validation(t *testing.T) {
	_, err := NewSafeEmbedder(nil, testDim)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewSafeEmbedder(mock.NewMockEmbedder(testDim), 0)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestSafeEmbedder_Embed(t *testing.T) {
	e, err := NewSafeEmbedder(mock.NewMockEmbedder(testDim), testDim)
	require.NoError(t, err)
	assert.Equal(t, testDim, e.Dimension())

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, testDim)
	assert.False(t, core.IsZeroVector(v))

	again, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestSafeEmbedder_UpstreamFailureYieldsZeroVector(t *testing.T) {
	m := mock.NewMockEmbedder(testDim).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection reset")
	})
	e, err := NewSafeEmbedder(m, testDim)
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, testDim)
	assert.True(t, core.IsZeroVector(v))
}

func TestSafeEmbedder_TimeoutYieldsZeroVector(t *testing.T) {
	m := mock.NewMockEmbedder(testDim).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e, err := NewSafeEmbedder(m, testDim, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, core.IsZeroVector(v))
}

func TestSafeEmbedder_DimensionMismatch(t *testing.T) {
	e, err := NewSafeEmbedder(mock.NewMockEmbedder(testDim+1), testDim)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	assert.ErrorIs(t, e.Probe(context.Background()), ErrDimensionMismatch)
}

func TestSafeEmbedder_Probe(t *testing.T) {
	e, err := NewSafeEmbedder(mock.NewMockEmbedder(testDim), testDim)
	require.NoError(t, err)
	assert.NoError(t, e.Probe(context.Background()))

	failing := mock.NewMockEmbedder(testDim).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("unauthorized")
	})
	e, err = NewSafeEmbedder(failing, testDim)
	require.NoError(t, err)
	assert.ErrorContains(t, e.Probe(context.Background()), "unauthorized")
}

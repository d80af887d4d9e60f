package mailkb

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/ai/mock"
	"github.com/poiesic/mailkb/config"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/queue"
	"github.com/poiesic/mailkb/reembed"
	"github.com/poiesic/mailkb/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

var reviewer = core.Actor{ID: "u-1", Name: "Reviewer"}

func newTestDatabase(t *testing.T, opts ...DatabaseOption) *Database {
	t.Helper()
	base := []DatabaseOption{
		WithAIConfig(ai.NewConfig(ai.WithEmbeddingDimension(testDim))),
		WithAIProvider(mock.NewMockProvider(testDim)),
	}
	db, err := NewDatabase(filepath.Join(t.TempDir(), "kb"), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func email(id, subject, body string) *core.EmailContent {
	return &core.EmailContent{
		ID:            id,
		Subject:       subject,
		SenderName:    "Dana",
		SenderAddress: "dana@example.com",
		ReceivedAt:    time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC),
		Body:          body,
	}
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		db := newTestDatabase(t)

		assert.NotNil(t, db.Pipeline())
		assert.NotNil(t, db.Searcher())
		assert.NotNil(t, db.ReviewRepository())
		assert.Equal(t, testDim, db.VectorRepository().Dimension())
		assert.NotNil(t, db.AuditRepository())
		assert.Nil(t, db.RetryQueue())
	})

	t.Run("in memory", func(t *testing.T) {
		db := newTestDatabase(t, WithInMemory())
		assert.NotNil(t, db.Pipeline())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		db, err := NewDatabase(tmpFile, WithAIProvider(mock.NewMockProvider(testDim)))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid ai config", func(t *testing.T) {
		db, err := NewDatabase(t.TempDir(), WithAIConfig(&ai.Config{}))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	db, err := NewDatabase(t.TempDir(), WithAIProvider(mock.NewMockProvider(1536)))
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestDatabase_ReviewAndSearch(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	p := db.Pipeline()

	_, err := p.IngestAndClassify(ctx, reviewer, email("m1", "Deploy window", "We deploy the billing service on Friday."))
	require.NoError(t, err)
	_, err = p.IngestAndClassify(ctx, reviewer, email("m2", "Salary bands", "New salary bands attached."))
	require.NoError(t, err)

	pending, err := p.Pending(ctx, core.ReviewFilter{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	d, err := p.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, core.IndexIndexed, d.Index)
	_, err = p.ApproveAndIndex(ctx, reviewer, "m2", core.Approval{Approved: false, Notes: "private"})
	require.NoError(t, err)

	results, err := db.Searcher().Search(ctx, "deploy billing", search.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Record.EmailID)

	results, err = db.Searcher().Search(ctx, "deploy", search.Options{Department: core.DepartmentHR})
	require.NoError(t, err)
	assert.Empty(t, results)

	entries, err := db.AuditLog(ctx, core.AuditFilter{ResourceID: "m1"})
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.ActionType)
	}
	assert.Equal(t, []string{core.ActionIndexEmail, core.ActionApproveEmail, core.ActionIngestEmail}, actions)
}

func TestDatabase_Reembed(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	var out bytes.Buffer
	n, err := db.Reembed(ctx, reviewer, nil, &out)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, out.String(), "No records found")

	_, err = db.Pipeline().IngestAndClassify(ctx, reviewer, email("m1", "Invoice 42", "Invoice attached."))
	require.NoError(t, err)
	_, err = db.Pipeline().ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)

	cfg := reembed.DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	n, err = db.Reembed(ctx, reviewer, cfg, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := db.AuditLog(ctx, core.AuditFilter{ActionType: core.ActionReembedIndex})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].Details["records"])
	assert.Equal(t, reviewer.ID, entries[0].UserID)
}

func TestDatabase_RetryWorkerNeedsQueue(t *testing.T) {
	db := newTestDatabase(t)
	_, err := db.NewRetryWorker()
	assert.ErrorIs(t, err, queue.ErrQueueRequired)
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{
		DBPath:             filepath.Join(t.TempDir(), "kb"),
		EmbeddingHost:      "http://localhost:11434/v1",
		ClassifierHost:     "http://localhost:11434/v1",
		EmbeddingModel:     "nomic-embed-text",
		EmbeddingDimension: testDim,
		ClassifierModel:    "qwen2.5:7b",
		RequestTimeout:     time.Second,
		PoolSize:           2,
	}

	db, err := Open(context.Background(), cfg, WithAIProvider(mock.NewMockProvider(testDim)))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, testDim, db.VectorRepository().Dimension())
	assert.Nil(t, db.RetryQueue())
}

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/ai/mock"
	"github.com/poiesic/mailkb/analysis"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
	"github.com/poiesic/mailkb/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

var reviewer = core.Actor{ID: "u-reviewer", Name: "Rae Viewer", Email: "rae@example.com"}

// failingAudit rejects every append.
type failingAudit struct {
	storage.AuditRepository
}

func (failingAudit) Append(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error) {
	return nil, errors.New("audit disk full")
}

// flakyVectors fails upserts while failing is set.
type flakyVectors struct {
	storage.VectorRepository
	mu      sync.Mutex
	failing bool
}

func (f *flakyVectors) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *flakyVectors) UpsertApproved(ctx context.Context, record *core.VectorRecord) (*core.VectorRecord, error) {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return nil, errors.New("index unavailable")
	}
	return f.VectorRepository.UpsertApproved(ctx, record)
}

// recordingQueue implements RetryQueue.
type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) Enqueue(ctx context.Context, emailID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, emailID)
	return nil
}

func (q *recordingQueue) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type fixture struct {
	repos    *badger.Repositories
	provider *mock.MockProvider
	pipeline *Pipeline
}

func setupPipeline(t *testing.T, opts ...Option) *fixture {
	return setupPipelineWith(t, nil, nil, opts...)
}

func setupPipelineWith(t *testing.T, vectors storage.VectorRepository, audit storage.AuditRepository, opts ...Option) *fixture {
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	if vectors == nil {
		vectors = repos.Vectors
	}
	if audit == nil {
		audit = repos.Audit
	}

	provider := mock.NewMockProvider(testDim).(*mock.MockProvider)
	p, err := NewPipeline(repos.Reviews, vectors, audit, provider, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &fixture{repos: repos, provider: provider, pipeline: p}
}

func email(id, subject, body string) *core.EmailContent {
	return &core.EmailContent{
		ID:            id,
		Subject:       subject,
		SenderName:    "Sam Sender",
		SenderAddress: "sam@example.com",
		ReceivedAt:    time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		Body:          body,
	}
}

func auditActions(t *testing.T, f *fixture, resourceID string) []string {
	entries, err := f.repos.Audit.Query(context.Background(), core.AuditFilter{ResourceID: resourceID})
	require.NoError(t, err)
	actions := make([]string, len(entries))
	// Query is newest first; report in chronological order.
	for i, e := range entries {
		actions[len(entries)-1-i] = e.ActionType
	}
	return actions
}

func TestNewPipeline_RequiredDependencies(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	defer repos.Close()
	provider := mock.NewMockProvider(testDim)

	tests := []struct {
		name     string
		reviews  storage.ReviewRepository
		vectors  storage.VectorRepository
		audit    storage.AuditRepository
		provider ai.AIProvider
		want     error
	}{
		{"reviews", nil, repos.Vectors, repos.Audit, provider, ErrReviewRepositoryRequired},
		{"vectors", repos.Reviews, nil, repos.Audit, provider, ErrVectorRepositoryRequired},
		{"audit", repos.Reviews, repos.Vectors, nil, provider, ErrAuditRepositoryRequired},
		{"provider", repos.Reviews, repos.Vectors, repos.Audit, nil, ErrAIProviderRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(tt.reviews, tt.vectors, tt.audit, tt.provider)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIngestAndClassify(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	review, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Invoice 42", "Please pay the invoice."))
	require.NoError(t, err)

	assert.Equal(t, core.StatusPending, review.Status)
	assert.Equal(t, core.DepartmentFinance, review.Analysis.Department)
	assert.Equal(t, core.DefaultImportance, review.Content.Importance)
	assert.Nil(t, review.ReviewedAt)

	stored, err := f.pipeline.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, review.Analysis, stored.Analysis)

	assert.Equal(t, []string{core.ActionIngestEmail}, auditActions(t, f, "m1"))
	entries, err := f.repos.Audit.Query(ctx, core.AuditFilter{ResourceID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, reviewer.ID, entries[0].UserID)
	assert.Equal(t, "finance", entries[0].Details["department"])
}

func TestIngestAndClassify_DuplicateSkipsModel(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	classifier := f.provider.GetMockClassifier()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Hello", "First"))
	require.NoError(t, err)
	require.Equal(t, 1, classifier.CallCount())

	_, err = f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Hello again", "Second"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Equal(t, 1, classifier.CallCount())

	stored, err := f.pipeline.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "First", stored.Content.Body)
}

func TestIngestAndClassify_InvalidEmail(t *testing.T) {
	f := setupPipeline(t)

	_, err := f.pipeline.IngestAndClassify(context.Background(), reviewer, &core.EmailContent{Subject: "no id"})
	assert.ErrorIs(t, err, core.ErrInvalidEmail)

	_, err = f.pipeline.IngestAndClassify(context.Background(), reviewer, nil)
	assert.ErrorIs(t, err, core.ErrInvalidEmail)
}

func TestIngestAndClassify_ClassifierFailureFailsClosed(t *testing.T) {
	f := setupPipeline(t)
	f.provider.GetMockClassifier().WithClassifyFunc(func(ctx context.Context, text string) (*core.EmailAnalysis, error) {
		return nil, errors.New("model overloaded")
	})

	review, err := f.pipeline.IngestAndClassify(context.Background(), reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)
	assert.Equal(t, *core.FailClosedAnalysis(), review.Analysis)
	assert.Equal(t, core.StatusPending, review.Status)
}

func TestIngestAndClassify_ClassifierTimeoutFailsClosed(t *testing.T) {
	f := setupPipeline(t, WithRequestTimeout(20*time.Millisecond))
	f.provider.GetMockClassifier().WithClassifyFunc(func(ctx context.Context, text string) (*core.EmailAnalysis, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	review, err := f.pipeline.IngestAndClassify(context.Background(), reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)
	assert.True(t, review.Analysis.IsPrivate)
	assert.Equal(t, core.ActionExclude, review.Analysis.RecommendedAction)
}

func TestIngestBatch(t *testing.T) {
	f := setupPipeline(t, WithPoolSize(3))
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("dup", "Old", "Already here"))
	require.NoError(t, err)

	contents := []*core.EmailContent{
		email("b1", "Salary review", "Your salary is changing."),
		email("dup", "Again", "Duplicate"),
		{Subject: "missing id"},
		email("b2", "Deploy", "Deploy tonight."),
	}
	results := f.pipeline.IngestBatch(ctx, reviewer, contents)
	require.Len(t, results, len(contents))

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "b1", results[0].EmailID)
	assert.Equal(t, core.DepartmentHR, results[0].Review.Analysis.Department)
	assert.True(t, results[0].Review.Analysis.IsPrivate)

	assert.ErrorIs(t, results[1].Err, storage.ErrDuplicateKey)
	assert.ErrorIs(t, results[2].Err, core.ErrInvalidEmail)

	assert.NoError(t, results[3].Err)
	assert.Equal(t, core.DepartmentEngineering, results[3].Review.Analysis.Department)

	counts, err := f.pipeline.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[core.StatusPending])
}

func TestApproveAndIndex_Approve(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Deploy plan", "Deploy at noon."))
	require.NoError(t, err)

	d, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true, Notes: "useful"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, d.Review.Status)
	assert.Equal(t, core.IndexIndexed, d.Index)
	assert.NoError(t, d.IndexErr)
	assert.Equal(t, reviewer.ID, d.Review.ReviewerID)
	assert.Equal(t, "useful", d.Review.Notes)
	require.NotNil(t, d.Review.ReviewedAt)

	record, err := f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	require.NoError(t, err)
	assert.Equal(t, "m1", record.EmailID)
	assert.Equal(t, analysis.IndexText(d.Review), record.Content)
	assert.Equal(t, core.ContentHash(record.Content), record.ContentHash)
	assert.Equal(t, "engineering", record.Metadata[core.MetaDepartment])
	assert.Equal(t, "low", record.Metadata[core.MetaSensitivity])
	assert.Equal(t, "mock", record.Metadata[core.MetaTags])
	assert.Equal(t, "Deploy plan", record.Metadata[core.MetaSubject])
	assert.Equal(t, "sam@example.com", record.Metadata[core.MetaSender])
	assert.Equal(t, "2025-05-01T08:00:00Z", record.Metadata[core.MetaReceivedAt])

	assert.Equal(t, []string{core.ActionIngestEmail, core.ActionApproveEmail, core.ActionIndexEmail}, auditActions(t, f, "m1"))
}

func TestApproveAndIndex_Reject(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Lunch", "Pizza?"))
	require.NoError(t, err)
	embedCalls := f.provider.GetMockEmbedder().CallCount()

	d, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: false, Notes: "personal"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, d.Review.Status)
	assert.Equal(t, core.IndexSkipped, d.Index)
	assert.Equal(t, embedCalls, f.provider.GetMockEmbedder().CallCount())

	_, err = f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, []string{core.ActionIngestEmail, core.ActionRejectEmail}, auditActions(t, f, "m1"))
}

func TestApproveAndIndex_UnknownEmail(t *testing.T) {
	f := setupPipeline(t)

	_, err := f.pipeline.ApproveAndIndex(context.Background(), reviewer, "nope", core.Approval{Approved: true})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApproveAndIndex_EmbedderFailureIndexesZeroVector(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Notes", "Meeting notes."))
	require.NoError(t, err)

	embedder := f.provider.GetMockEmbedder()
	embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding quota exceeded")
	})

	d, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, core.IndexIndexed, d.Index)

	record, err := f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	require.NoError(t, err)
	assert.True(t, core.IsZeroVector(record.Vector))

	// A zero vector is never reused: reindexing embeds again.
	embedder.EmbedTextFunc = nil
	d, err = f.pipeline.Reindex(ctx, reviewer, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.IndexIndexed, d.Index)

	record, err = f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	require.NoError(t, err)
	assert.False(t, core.IsZeroVector(record.Vector))
}

func TestApproveAndIndex_IndexFailureKeepsDecision(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	defer repos.Close()

	vectors := &flakyVectors{VectorRepository: repos.Vectors, failing: true}
	queue := &recordingQueue{}
	provider := mock.NewMockProvider(testDim)
	p, err := NewPipeline(repos.Reviews, vectors, repos.Audit, provider, WithRetryQueue(queue))
	require.NoError(t, err)
	defer p.Release()
	ctx := context.Background()

	_, err = p.IngestAndClassify(ctx, reviewer, email("m1", "Roadmap", "Q4 roadmap."))
	require.NoError(t, err)

	d, err := p.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, core.IndexFailed, d.Index)
	assert.ErrorContains(t, d.IndexErr, "index unavailable")
	assert.Equal(t, core.StatusApproved, d.Review.Status)
	assert.Equal(t, []string{"m1"}, queue.queued())

	stored, err := p.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, stored.Status)

	failures, err := repos.Audit.Query(ctx, core.AuditFilter{ActionType: core.ActionIndexFailed})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Details["error"], "index unavailable")

	// Once the index recovers, Reindex completes the approval.
	vectors.setFailing(false)
	d, err = p.Reindex(ctx, reviewer, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.IndexIndexed, d.Index)
	_, err = repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	assert.NoError(t, err)
}

func TestApproveAndIndex_DimensionMismatchIsIndexFailure(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)
	f.provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, testDim+2), nil
	})

	d, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, core.IndexFailed, d.Index)
	assert.ErrorIs(t, d.IndexErr, core.ErrDimensionMismatch)
}

func TestApproveAndIndex_AuditFailureDoesNotFailOperation(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	defer repos.Close()

	p, err := NewPipeline(repos.Reviews, repos.Vectors, failingAudit{repos.Audit}, mock.NewMockProvider(testDim))
	require.NoError(t, err)
	defer p.Release()
	ctx := context.Background()

	_, err = p.IngestAndClassify(ctx, reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)

	d, err := p.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, core.IndexIndexed, d.Index)

	assert.NoError(t, p.RemoveFromIndex(ctx, reviewer, "m1"))
}

func TestApproveAndIndex_LastDecisionWins(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)

	_, err = f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	d, err := f.pipeline.ApproveAndIndex(ctx, core.Actor{ID: "u-other"}, "m1", core.Approval{Approved: false, Notes: "changed my mind"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusRejected, d.Review.Status)
	assert.Equal(t, "u-other", d.Review.ReviewerID)
	assert.Equal(t, "changed my mind", d.Review.Notes)
	assert.Equal(t, core.IndexSkipped, d.Index)

	_, err = f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{
		core.ActionIngestEmail, core.ActionApproveEmail, core.ActionIndexEmail,
		core.ActionRejectEmail, core.ActionDeleteVector,
	}, auditActions(t, f, "m1"))
}

func TestApproveAndIndex_RejectWhileEmbedding(t *testing.T) {
	queue := &recordingQueue{}
	f := setupPipeline(t, WithRetryQueue(queue))
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Offsite", "Offsite agenda."))
	require.NoError(t, err)

	embedding := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		once.Do(func() { close(embedding) })
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		v := make([]float32, testDim)
		v[0] = 1
		return v, nil
	})

	type outcome struct {
		d   *Decision
		err error
	}
	approved := make(chan outcome, 1)
	go func() {
		d, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
		approved <- outcome{d, err}
	}()

	<-embedding
	rejected, err := f.pipeline.ApproveAndIndex(ctx, core.Actor{ID: "u-other"}, "m1", core.Approval{Approved: false})
	require.NoError(t, err)
	assert.Equal(t, core.IndexSkipped, rejected.Index)
	close(release)

	got := <-approved
	require.NoError(t, got.err)
	assert.Equal(t, core.IndexSkipped, got.d.Index)
	assert.NoError(t, got.d.IndexErr)
	assert.Empty(t, queue.queued())

	stored, err := f.pipeline.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, stored.Status)
	_, err = f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotContains(t, auditActions(t, f, "m1"), core.ActionIndexEmail)
	assert.NotContains(t, auditActions(t, f, "m1"), core.ActionIndexFailed)
}

func TestReindex(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)

	_, err = f.pipeline.Reindex(ctx, reviewer, "m1")
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.pipeline.Reindex(ctx, reviewer, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	approved, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)
	first, err := f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	require.NoError(t, err)

	embedCalls := f.provider.GetMockEmbedder().CallCount()
	d, err := f.pipeline.Reindex(ctx, core.Actor{ID: "u-ops"}, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.IndexIndexed, d.Index)
	assert.Equal(t, embedCalls, f.provider.GetMockEmbedder().CallCount(), "unchanged content must not be re-embedded")

	// The review itself is untouched.
	assert.Equal(t, approved.Review.ReviewerID, d.Review.ReviewerID)
	assert.Equal(t, approved.Review.ReviewedAt, d.Review.ReviewedAt)

	second, err := f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	require.NoError(t, err)
	assert.Equal(t, first.Seq, second.Seq)
	assert.InDeltaSlice(t, first.Vector, second.Vector, 1e-6)

	count, err := f.repos.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRemoveFromIndex(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email("m1", "Hi", "Body"))
	require.NoError(t, err)
	_, err = f.pipeline.ApproveAndIndex(ctx, reviewer, "m1", core.Approval{Approved: true})
	require.NoError(t, err)

	require.NoError(t, f.pipeline.RemoveFromIndex(ctx, reviewer, "m1"))
	require.NoError(t, f.pipeline.RemoveFromIndex(ctx, reviewer, "m1"))

	_, err = f.repos.Vectors.Get(ctx, core.VectorIDFor("m1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	review, err := f.pipeline.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, review.Status)

	assert.ErrorIs(t, f.pipeline.RemoveFromIndex(ctx, reviewer, ""), core.ErrEmptyEmailID)
}

func TestDecideMany(t *testing.T) {
	f := setupPipeline(t, WithPoolSize(2))
	ctx := context.Background()

	var ids []string
	for i := range 5 {
		id := fmt.Sprintf("m%d", i)
		ids = append(ids, id)
		_, err := f.pipeline.IngestAndClassify(ctx, reviewer, email(id, "Update "+id, "Status update "+id))
		require.NoError(t, err)
	}

	request := []string{"m3", "unknown", "m0", "m4"}
	decisions, err := f.pipeline.DecideMany(ctx, reviewer, request, core.Approval{Approved: true, Notes: "bulk"})
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	for i, want := range []string{"m3", "m0", "m4"} {
		assert.Equal(t, want, decisions[i].Review.EmailID)
		assert.Equal(t, core.StatusApproved, decisions[i].Review.Status)
		assert.Equal(t, core.IndexIndexed, decisions[i].Index)
	}

	count, err := f.repos.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	rejected, err := f.pipeline.DecideMany(ctx, reviewer, []string{"m1", "m2"}, core.Approval{Approved: false})
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	for _, d := range rejected {
		assert.Equal(t, core.IndexSkipped, d.Index)
	}

	pending, err := f.pipeline.Pending(ctx, core.ReviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingFilters(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	for _, e := range []*core.EmailContent{
		email("hr1", "Salary", "New salary bands."),
		email("fin1", "Invoice", "Invoice attached."),
		email("eng1", "Deploy", "Deploy done."),
	} {
		_, err := f.pipeline.IngestAndClassify(ctx, reviewer, e)
		require.NoError(t, err)
	}
	_, err := f.pipeline.ApproveAndIndex(ctx, reviewer, "eng1", core.Approval{Approved: true})
	require.NoError(t, err)

	pending, err := f.pipeline.Pending(ctx, core.ReviewFilter{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	private := true
	pending, err = f.pipeline.Pending(ctx, core.ReviewFilter{IsPrivate: &private})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "hr1", pending[0].EmailID)

	pending, err = f.pipeline.Pending(ctx, core.ReviewFilter{Department: core.DepartmentFinance, Status: core.StatusApproved})
	require.NoError(t, err)
	require.Len(t, pending, 1, "Pending overrides the status filter")
	assert.Equal(t, "fin1", pending[0].EmailID)

	all, err := f.pipeline.List(ctx, core.ReviewFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCheckEmbedder(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	assert.NoError(t, f.pipeline.CheckEmbedder(ctx))

	embedder := f.provider.GetMockEmbedder()
	embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, testDim+1), nil
	})
	assert.ErrorIs(t, f.pipeline.CheckEmbedder(ctx), analysis.ErrDimensionMismatch)

	embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	})
	assert.ErrorContains(t, f.pipeline.CheckEmbedder(ctx), "connection refused")
}

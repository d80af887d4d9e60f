package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/analysis"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// RetryQueue receives emails whose indexing failed after approval.
type RetryQueue interface {
	Enqueue(ctx context.Context, emailID string) error
}

// Pipeline orchestrates classification, review, and indexing of emails.
// It is safe for concurrent use.
type Pipeline struct {
	reviews        storage.ReviewRepository
	vectors        storage.VectorRepository
	audit          storage.AuditRepository
	classifier     *analysis.Classifier
	embedder       *analysis.SafeEmbedder
	pool           *ants.Pool
	retryQueue     RetryQueue
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for bulk operations.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRetryQueue sets the queue that receives emails whose indexing failed.
func WithRetryQueue(queue RetryQueue) Option {
	return func(p *Pipeline) error {
		p.retryQueue = queue
		return nil
	}
}

// WithRequestTimeout bounds each classification and embedding call.
// Default is analysis.DefaultTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.requestTimeout = d
		return nil
	}
}

// NewPipeline creates a new pipeline. The embedding dimension is taken
// from the vector repository.
func NewPipeline(
	reviews storage.ReviewRepository,
	vectors storage.VectorRepository,
	audit storage.AuditRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if reviews == nil {
		return nil, ErrReviewRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if audit == nil {
		return nil, ErrAuditRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := max(1, runtime.NumCPU()/2)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		reviews:        reviews,
		vectors:        vectors,
		audit:          audit,
		pool:           pool,
		requestTimeout: analysis.DefaultTimeout,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	// Built after options so they get the final logger and timeout.
	serviceOpts := []analysis.Option{
		analysis.WithTimeout(p.requestTimeout),
		analysis.WithLogger(p.logger),
	}
	p.classifier = analysis.NewClassifier(provider.Classifier(), serviceOpts...)
	p.embedder, err = analysis.NewSafeEmbedder(provider.Embedder(), vectors.Dimension(), serviceOpts...)
	if err != nil {
		p.Release()
		return nil, err
	}

	return p, nil
}

// Decision is the outcome of a review decision.
type Decision struct {
	Review *core.EmailReview
	// Index is IndexSkipped for rejections, including a rejection that
	// lands while an approval is being indexed, otherwise whether the
	// approved email made it into the vector index.
	Index core.IndexStatus
	// IndexErr explains an IndexFailed status.
	IndexErr error
}

// IngestResult is the outcome of ingesting one email of a batch.
type IngestResult struct {
	EmailID string
	Review  *core.EmailReview
	Err     error
}

// IngestAndClassify classifies content and stores it as a pending review.
// Returns storage.ErrDuplicateKey if the email was already ingested; that
// check happens before the model is called.
func (p *Pipeline) IngestAndClassify(ctx context.Context, actor core.Actor, content *core.EmailContent) (*core.EmailReview, error) {
	if err := core.ValidateEmailContent(content); err != nil {
		return nil, err
	}

	if _, err := p.reviews.Get(ctx, content.ID); err == nil {
		return nil, fmt.Errorf("%w: email %s already ingested", storage.ErrDuplicateKey, content.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	result := p.classifier.Classify(ctx, content)

	stored := *content
	if stored.Importance == "" {
		stored.Importance = core.DefaultImportance
	}
	review, err := p.reviews.Create(ctx, &core.EmailReview{
		EmailID:  content.ID,
		Content:  stored,
		Analysis: *result,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("email ingested",
		"email_id", review.EmailID,
		"department", review.Analysis.Department,
		"sensitivity", review.Analysis.Sensitivity,
		"private", review.Analysis.IsPrivate)
	p.record(ctx, actor, core.ActionIngestEmail, review.EmailID, map[string]string{
		"department":         string(review.Analysis.Department),
		"sensitivity":        string(review.Analysis.Sensitivity),
		"is_private":         fmt.Sprint(review.Analysis.IsPrivate),
		"recommended_action": string(review.Analysis.RecommendedAction),
	})
	return review, nil
}

// IngestBatch ingests several emails concurrently on the worker pool.
// Results are in input order, each carrying its own error.
func (p *Pipeline) IngestBatch(ctx context.Context, actor core.Actor, contents []*core.EmailContent) []*IngestResult {
	results := make([]*IngestResult, len(contents))
	var wg sync.WaitGroup

	for i, content := range contents {
		results[i] = &IngestResult{}
		if content != nil {
			results[i].EmailID = content.ID
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			results[i].Review, results[i].Err = p.IngestAndClassify(ctx, actor, content)
		})
		if err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submitting email: %w", err)
		}
	}

	wg.Wait()
	return results
}

// ApproveAndIndex records a decision on a review and, when approved,
// indexes the email. Rejecting a previously approved email removes it from
// the index. An indexing failure does not undo the decision: it is
// reported through Decision.Index and Decision.IndexErr, and the email is
// queued for retry when a retry queue is configured.
// Returns storage.ErrNotFound if no review exists for emailID.
func (p *Pipeline) ApproveAndIndex(ctx context.Context, actor core.Actor, emailID string, approval core.Approval) (*Decision, error) {
	review, err := p.reviews.Decide(ctx, emailID, approval.Approved, actor.ID, approval.Notes)
	if err != nil {
		return nil, err
	}
	p.recordDecision(ctx, actor, review)

	if !approval.Approved {
		p.unindexRejected(ctx, actor, review)
		return &Decision{Review: review, Index: core.IndexSkipped}, nil
	}
	return p.indexApproved(ctx, actor, review), nil
}

// DecideMany applies one decision to several reviews. Unknown IDs are
// skipped. Approved emails are indexed concurrently on the worker pool.
// Decisions are returned in input order.
func (p *Pipeline) DecideMany(ctx context.Context, actor core.Actor, emailIDs []string, approval core.Approval) ([]*Decision, error) {
	reviews, err := p.reviews.DecideMany(ctx, emailIDs, approval.Approved, actor.ID, approval.Notes)
	if err != nil {
		return nil, err
	}

	decisions := make([]*Decision, len(reviews))
	var wg sync.WaitGroup
	for i, review := range reviews {
		p.recordDecision(ctx, actor, review)
		if !approval.Approved {
			p.unindexRejected(ctx, actor, review)
			decisions[i] = &Decision{Review: review, Index: core.IndexSkipped}
			continue
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			decisions[i] = p.indexApproved(ctx, actor, review)
		})
		if err != nil {
			wg.Done()
			decisions[i] = p.indexFailed(ctx, actor, review, fmt.Errorf("submitting index task: %w", err))
		}
	}
	wg.Wait()

	p.logger.Info("bulk decision applied",
		"requested", len(emailIDs), "updated", len(reviews), "approved", approval.Approved)
	return decisions, nil
}

// Reindex re-runs indexing for an approved review without changing it.
// Returns ErrNotApproved for pending or rejected reviews.
func (p *Pipeline) Reindex(ctx context.Context, actor core.Actor, emailID string) (*Decision, error) {
	review, err := p.reviews.Get(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if review.Status != core.StatusApproved {
		return nil, fmt.Errorf("%w: email %s is %s", ErrNotApproved, emailID, review.Status)
	}

	index, indexErr := p.index(ctx, actor, review)
	return &Decision{Review: review, Index: index, IndexErr: indexErr}, nil
}

// RemoveFromIndex deletes the email's vector record. The review is left
// untouched. Removing an email that is not indexed is not an error.
func (p *Pipeline) RemoveFromIndex(ctx context.Context, actor core.Actor, emailID string) error {
	if emailID == "" {
		return core.ErrEmptyEmailID
	}
	vectorID := core.VectorIDFor(emailID)
	if err := p.vectors.Delete(ctx, vectorID); err != nil {
		return err
	}
	p.record(ctx, actor, core.ActionDeleteVector, emailID, map[string]string{"vector_id": vectorID})
	return nil
}

// Get returns the review for an email.
func (p *Pipeline) Get(ctx context.Context, emailID string) (*core.EmailReview, error) {
	return p.reviews.Get(ctx, emailID)
}

// List returns reviews matching filter, oldest first.
func (p *Pipeline) List(ctx context.Context, filter core.ReviewFilter) ([]*core.EmailReview, error) {
	return p.reviews.List(ctx, filter)
}

// Pending returns pending reviews matching the rest of filter, oldest first.
func (p *Pipeline) Pending(ctx context.Context, filter core.ReviewFilter) ([]*core.EmailReview, error) {
	filter.Status = core.StatusPending
	return p.reviews.List(ctx, filter)
}

// Counts returns the number of reviews in each status.
func (p *Pipeline) Counts(ctx context.Context) (map[core.ReviewStatus]int, error) {
	return p.reviews.Count(ctx)
}

// CheckEmbedder embeds a probe text and verifies the result has the index
// dimension. Unlike indexing, upstream errors are returned.
func (p *Pipeline) CheckEmbedder(ctx context.Context) error {
	return p.embedder.Probe(ctx)
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) indexApproved(ctx context.Context, actor core.Actor, review *core.EmailReview) *Decision {
	index, err := p.index(ctx, actor, review)
	if err != nil {
		p.enqueueRetry(ctx, review.EmailID)
	}
	return &Decision{Review: review, Index: index, IndexErr: err}
}

func (p *Pipeline) indexFailed(ctx context.Context, actor core.Actor, review *core.EmailReview, err error) *Decision {
	p.recordIndexFailure(ctx, actor, review.EmailID, err)
	p.enqueueRetry(ctx, review.EmailID)
	return &Decision{Review: review, Index: core.IndexFailed, IndexErr: err}
}

func (p *Pipeline) enqueueRetry(ctx context.Context, emailID string) {
	if p.retryQueue == nil {
		return
	}
	if err := p.retryQueue.Enqueue(ctx, emailID); err != nil {
		p.logger.Error("failed to queue email for index retry", "email_id", emailID, "err", err)
		return
	}
	p.logger.Info("queued email for index retry", "email_id", emailID)
}

func (p *Pipeline) recordDecision(ctx context.Context, actor core.Actor, review *core.EmailReview) {
	action := core.ActionRejectEmail
	if review.Status == core.StatusApproved {
		action = core.ActionApproveEmail
	}
	details := map[string]string{"status": string(review.Status)}
	if review.Notes != "" {
		details["notes"] = review.Notes
	}
	p.record(ctx, actor, action, review.EmailID, details)
}

// record appends an audit entry. Failures are logged, never returned.
func (p *Pipeline) record(ctx context.Context, actor core.Actor, action, resourceID string, details map[string]string) {
	_, err := p.audit.Append(ctx, &core.AuditEntry{
		ActionType: action,
		UserID:     actor.ID,
		ResourceID: resourceID,
		Details:    details,
	})
	if err != nil {
		p.logger.Error("failed to write audit entry",
			"action", action, "resource_id", resourceID, "user_id", actor.ID, "err", err)
	}
}

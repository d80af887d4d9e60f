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

package storage

import (
	"context"

	"github.com/poiesic/mailkb/core"
)

// ReviewRepository stores email reviews keyed by email ID.
type ReviewRepository interface {
	// Create stores a new review with status PENDING and no decision fields.
	// CreatedAt is set when zero.
	// Returns ErrDuplicateKey if a review for the email already exists.
	Create(ctx context.Context, review *core.EmailReview) (*core.EmailReview, error)

	// Decide records a reviewer's decision, setting Status, ReviewedAt,
	// ReviewerID and Notes. A later decision overwrites an earlier one.
	// Returns ErrNotFound if no review exists for the email.
	Decide(ctx context.Context, emailID string, approved bool, reviewerID, notes string) (*core.EmailReview, error)

	// DecideMany applies the same decision to several reviews.
	// Unknown IDs are skipped; the updated reviews are returned in input order.
	DecideMany(ctx context.Context, emailIDs []string, approved bool, reviewerID, notes string) ([]*core.EmailReview, error)

	// Get retrieves a review by email ID.
	// Returns ErrNotFound if the review doesn't exist.
	Get(ctx context.Context, emailID string) (*core.EmailReview, error)

	// List returns the reviews matching filter, oldest first.
	List(ctx context.Context, filter core.ReviewFilter) ([]*core.EmailReview, error)

	// Count returns the number of reviews in each status.
	Count(ctx context.Context) (map[core.ReviewStatus]int, error)

	// Close releases resources held by the repository.
	Close() error
}

// VectorRepository stores embedded emails and answers similarity queries.
type VectorRepository interface {
	// Upsert inserts or fully replaces a record by ID. The vector is stored
	// unit-normalised; a replaced record keeps its original Seq.
	// Returns ErrDimensionMismatch if the vector has the wrong length.
	Upsert(ctx context.Context, record *core.VectorRecord) (*core.VectorRecord, error)

	// UpsertApproved is Upsert conditioned on the review of record.EmailID
	// being APPROVED, checked atomically with the write.
	// Returns ErrNotApproved if the review has another status, or
	// ErrNotFound if there is no review.
	UpsertApproved(ctx context.Context, record *core.VectorRecord) (*core.VectorRecord, error)

	// Search ranks records matching query.Filter by cosine similarity to
	// vector, ties broken by insertion order.
	// Returns ErrInvalidQuery if the limit is outside 1..core.MaxSearchLimit.
	Search(ctx context.Context, vector []float32, query core.VectorQuery) ([]*core.SearchResult, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*core.VectorRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// ForEach calls fn with successive batches of at most batchSize records.
	// No transaction is held while fn runs, so fn may write to the repository.
	ForEach(ctx context.Context, batchSize int, fn func(records []*core.VectorRecord) error) error

	// Dimension returns the vector length the repository accepts.
	Dimension() int

	// Close releases resources held by the repository.
	Close() error
}

// AuditRepository is an append-only log of state-changing actions.
type AuditRepository interface {
	// Append stores an entry, assigning ID and Timestamp when unset.
	Append(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error)

	// Query returns matching entries newest first, at most filter.Limit
	// (core.DefaultAuditLimit when zero).
	Query(ctx context.Context, filter core.AuditFilter) ([]*core.AuditEntry, error)

	// Close releases resources held by the repository.
	Close() error
}

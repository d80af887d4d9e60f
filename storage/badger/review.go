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

package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// ReviewRepository implements storage.ReviewRepository using BadgerDB.
type ReviewRepository struct {
	backend *Backend
}

var _ storage.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(backend *Backend) (*ReviewRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &ReviewRepository{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (r *ReviewRepository) Close() error {
	return nil
}

// Create stores a new PENDING review and returns the stored copy.
func (r *ReviewRepository) Create(ctx context.Context, review *core.EmailReview) (*core.EmailReview, error) {
	if err := core.ValidateReview(review); err != nil {
		return nil, err
	}

	review.Status = core.StatusPending
	review.ReviewedAt = nil
	review.ReviewerID = ""
	review.Notes = ""
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	review.CreatedAt = review.CreatedAt.UTC().Truncate(time.Microsecond)

	key := makeReviewKey(review.EmailID)
	data := storage.MarshalReview(review)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readReview(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: review for email %s", storage.ErrDuplicateKey, review.EmailID)
		}
		if err := tx.Set(key, data); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	// Only a concurrent Create of the same email can touch the key we read,
	// so losing the commit race means the email already has a review.
	if errors.Is(err, badger.ErrConflict) {
		return nil, fmt.Errorf("%w: review for email %s", storage.ErrDuplicateKey, review.EmailID)
	}
	if err != nil {
		return nil, err
	}
	// Returned as Get will see it, with empty lists rather than nil.
	return storage.UnmarshalReview(data)
}

// Decide records a reviewer's decision on a review.
func (r *ReviewRepository) Decide(ctx context.Context, emailID string, approved bool, reviewerID, notes string) (*core.EmailReview, error) {
	var updated *core.EmailReview
	err := r.backend.Update(func(tx *badger.Txn) error {
		review, err := readReview(tx, makeReviewKey(emailID))
		if err != nil {
			return err
		}
		if review == nil {
			return fmt.Errorf("%w: review for email %s", storage.ErrNotFound, emailID)
		}
		applyDecision(review, approved, reviewerID, notes)
		if err := tx.Set(makeReviewKey(emailID), storage.MarshalReview(review)); err != nil {
			return err
		}
		updated = review
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DecideMany applies one decision to several reviews, skipping unknown IDs.
func (r *ReviewRepository) DecideMany(ctx context.Context, emailIDs []string, approved bool, reviewerID, notes string) ([]*core.EmailReview, error) {
	var updated []*core.EmailReview
	err := r.backend.Update(func(tx *badger.Txn) error {
		// Replays after a conflict start from scratch.
		updated = make([]*core.EmailReview, 0, len(emailIDs))
		seen := make(map[string]bool, len(emailIDs))
		for _, id := range emailIDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			review, err := readReview(tx, makeReviewKey(id))
			if err != nil {
				return err
			}
			if review == nil {
				continue
			}
			applyDecision(review, approved, reviewerID, notes)
			if err := tx.Set(makeReviewKey(id), storage.MarshalReview(review)); err != nil {
				return err
			}
			updated = append(updated, review)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get retrieves a review by email ID.
func (r *ReviewRepository) Get(ctx context.Context, emailID string) (*core.EmailReview, error) {
	var review *core.EmailReview
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		review, err = readReview(tx, makeReviewKey(emailID))
		return err
	})
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, fmt.Errorf("%w: review for email %s", storage.ErrNotFound, emailID)
	}
	return review, nil
}

// List returns the reviews matching filter ordered by creation time.
func (r *ReviewRepository) List(ctx context.Context, filter core.ReviewFilter) ([]*core.EmailReview, error) {
	var reviews []*core.EmailReview
	err := r.scan(ctx, func(review *core.EmailReview) {
		if filter.Matches(review) {
			reviews = append(reviews, review)
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(reviews, func(a, b *core.EmailReview) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.EmailID, b.EmailID)
	})
	return reviews, nil
}

// Count returns the number of reviews per status. Every status is present.
func (r *ReviewRepository) Count(ctx context.Context) (map[core.ReviewStatus]int, error) {
	counts := make(map[core.ReviewStatus]int, len(core.ReviewStatuses))
	for _, s := range core.ReviewStatuses {
		counts[s] = 0
	}
	err := r.scan(ctx, func(review *core.EmailReview) {
		counts[review.Status]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// scan visits every stored review.
func (r *ReviewRepository) scan(ctx context.Context, visit func(*core.EmailReview)) error {
	return r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(reviewPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var review *core.EmailReview
			err := iter.Item().Value(func(val []byte) error {
				var err error
				review, err = storage.UnmarshalReview(val)
				return err
			})
			if err != nil {
				return err
			}
			visit(review)
		}
		return nil
	})
}

func applyDecision(review *core.EmailReview, approved bool, reviewerID, notes string) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	review.Status = core.StatusRejected
	if approved {
		review.Status = core.StatusApproved
	}
	review.ReviewedAt = &now
	review.ReviewerID = reviewerID
	review.Notes = notes
}

// readReview reads a review within a transaction.
// Returns nil, nil if the review doesn't exist.
func readReview(tx *badger.Txn, key []byte) (*core.EmailReview, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var review *core.EmailReview
	err = item.Value(func(val []byte) error {
		var err error
		review, err = storage.UnmarshalReview(val)
		return err
	})
	return review, err
}

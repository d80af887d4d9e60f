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

// VectorRepository implements storage.VectorRepository using BadgerDB.
// Search is a full scan computing the dot product of unit vectors, which
// is the cosine similarity.
type VectorRepository struct {
	backend   *Backend
	seq       *badger.Sequence
	dimension int
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository accepting vectors of
// the given dimension.
func NewVectorRepository(backend *Backend, dimension int) (*VectorRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dimension)
	}
	seq, err := backend.GetSequence(vectorSeq)
	if err != nil {
		return nil, err
	}
	return &VectorRepository{
		backend:   backend,
		seq:       seq,
		dimension: dimension,
	}, nil
}

// Close releases the insertion sequence.
func (r *VectorRepository) Close() error {
	return r.seq.Release()
}

// Dimension returns the vector length the repository accepts.
func (r *VectorRepository) Dimension() int {
	return r.dimension
}

// Upsert inserts or replaces a record by ID.
func (r *VectorRepository) Upsert(ctx context.Context, record *core.VectorRecord) (*core.VectorRecord, error) {
	return r.upsert(record, nil)
}

// UpsertApproved inserts or replaces a record while the review of
// record.EmailID is approved. The review is read in the write transaction,
// so a decision committed concurrently forces a replay that sees it.
func (r *VectorRepository) UpsertApproved(ctx context.Context, record *core.VectorRecord) (*core.VectorRecord, error) {
	return r.upsert(record, func(tx *badger.Txn) error {
		review, err := readReview(tx, makeReviewKey(record.EmailID))
		if err != nil {
			return err
		}
		if review == nil {
			return fmt.Errorf("%w: review %s", storage.ErrNotFound, record.EmailID)
		}
		if review.Status != core.StatusApproved {
			return fmt.Errorf("%w: email %s is %s", storage.ErrNotApproved, record.EmailID, review.Status)
		}
		return nil
	})
}

func (r *VectorRepository) upsert(record *core.VectorRecord, guard func(tx *badger.Txn) error) (*core.VectorRecord, error) {
	if err := core.ValidateVectorRecord(record, r.dimension); err != nil {
		return nil, err
	}

	record.Vector = core.NormalizeVector(record.Vector)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.CreatedAt = record.CreatedAt.UTC().Truncate(time.Microsecond)

	key := makeVectorKey(record.ID)
	err := r.backend.Update(func(tx *badger.Txn) error {
		if guard != nil {
			if err := guard(tx); err != nil {
				return err
			}
		}
		existing, err := readVectorRecord(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			record.Seq = existing.Seq
		} else {
			record.Seq, err = nextSequence(r.seq)
			if err != nil {
				return err
			}
		}
		return tx.Set(key, storage.MarshalVectorRecord(record))
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Search ranks records by cosine similarity to vector.
func (r *VectorRepository) Search(ctx context.Context, vector []float32, query core.VectorQuery) ([]*core.SearchResult, error) {
	limit := query.Limit
	if limit == 0 {
		limit = core.DefaultSearchLimit
	}
	if limit < 1 || limit > core.MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", storage.ErrInvalidQuery, core.MaxSearchLimit, query.Limit)
	}
	if len(vector) != r.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(vector), r.dimension)
	}

	q := core.NormalizeVector(vector)
	var results []*core.SearchResult
	err := r.scan(ctx, func(record *core.VectorRecord) error {
		if !matchesMetadata(record.Metadata, query.Filter) {
			return nil
		}
		results = append(results, &core.SearchResult{
			Record: record,
			Score:  dotProduct(q, record.Vector),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, then by insertion order
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return cmp.Compare(a.Record.Seq, b.Record.Seq)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a record; a missing record is not an error.
func (r *VectorRepository) Delete(ctx context.Context, id string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeVectorKey(id))
	})
}

// Get retrieves a record by ID.
func (r *VectorRepository) Get(ctx context.Context, id string) (*core.VectorRecord, error) {
	var record *core.VectorRecord
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		record, err = readVectorRecord(tx, makeVectorKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: vector %s", storage.ErrNotFound, id)
	}
	return record, nil
}

// Count returns the number of stored records.
func (r *VectorRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ForEach hands out records in batches. Records are read in one snapshot
// and fn runs outside any transaction.
func (r *VectorRepository) ForEach(ctx context.Context, batchSize int, fn func(records []*core.VectorRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", storage.ErrInvalidQuery, batchSize)
	}

	var records []*core.VectorRecord
	err := r.scan(ctx, func(record *core.VectorRecord) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(records))
		if err := fn(records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// scan visits every stored record in key order.
func (r *VectorRepository) scan(ctx context.Context, visit func(*core.VectorRecord) error) error {
	return r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := visit(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// matchesMetadata reports whether every filter entry is present in metadata.
func matchesMetadata(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if got, ok := metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// readVectorRecord reads a record within a transaction.
// Returns nil, nil if the record doesn't exist.
func readVectorRecord(tx *badger.Txn, key []byte) (*core.VectorRecord, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record *core.VectorRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalVectorRecord(val)
		return err
	})
	return record, err
}

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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// AuditRepository implements storage.AuditRepository using BadgerDB.
// Entries are keyed by timestamp and a sequence number, so a reverse
// iteration yields them newest first.
type AuditRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(backend *Backend) (*AuditRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	seq, err := backend.GetSequence(auditSeq)
	if err != nil {
		return nil, err
	}
	return &AuditRepository{backend: backend, seq: seq}, nil
}

// Close releases the entry sequence.
func (r *AuditRepository) Close() error {
	return r.seq.Release()
}

// Append stores an entry.
func (r *AuditRepository) Append(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error) {
	if entry == nil {
		return nil, errors.New("audit entry is nil")
	}
	if entry.ActionType == "" {
		return nil, errors.New("audit entry has no action type")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Microsecond)

	seq, err := nextSequence(r.seq)
	if err != nil {
		return nil, err
	}

	// Keys are unique, so this write never conflicts.
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeAuditKey(entry.Timestamp, seq), storage.MarshalAuditEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Query returns matching entries newest first.
func (r *AuditRepository) Query(ctx context.Context, filter core.AuditFilter) ([]*core.AuditEntry, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = core.DefaultAuditLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", storage.ErrInvalidQuery, limit)
	}

	seekKey := prefixEnd(auditPrefix)
	if !filter.End.IsZero() {
		seekKey = makeAuditSeekKey(filter.End)
	}

	var entries []*core.AuditEntry
	err := r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditPrefix)
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(seekKey); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry *core.AuditEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalAuditEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if !filter.Start.IsZero() && entry.Timestamp.Before(filter.Start) {
				break // everything further back is older still
			}
			if !filter.Matches(entry) {
				continue
			}
			entries = append(entries, entry)
			if len(entries) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

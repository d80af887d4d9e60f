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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/mailkb/analysis"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/storage"
)

// index embeds an approved review and upserts its vector record.
// Unchanged content with a usable stored vector is not re-embedded. The
// write only happens if the review is still approved when it commits.
func (p *Pipeline) index(ctx context.Context, actor core.Actor, review *core.EmailReview) (core.IndexStatus, error) {
	text := analysis.IndexText(review)
	hash := core.ContentHash(text)
	vectorID := core.VectorIDFor(review.EmailID)

	vector, reused, err := p.vectorFor(ctx, vectorID, text, hash)
	if err != nil {
		p.recordIndexFailure(ctx, actor, review.EmailID, err)
		return core.IndexFailed, err
	}

	record, err := p.vectors.UpsertApproved(ctx, &core.VectorRecord{
		ID:          vectorID,
		EmailID:     review.EmailID,
		Content:     text,
		ContentHash: hash,
		Metadata:    metadataFor(review),
		Vector:      vector,
	})
	if errors.Is(err, storage.ErrNotApproved) {
		// Decided again while the embedding ran; the later decision wins.
		p.logger.Info("email no longer approved, not indexed", "email_id", review.EmailID, "reason", err)
		return core.IndexSkipped, nil
	}
	if err != nil {
		err = fmt.Errorf("storing vector: %w", err)
		p.recordIndexFailure(ctx, actor, review.EmailID, err)
		return core.IndexFailed, err
	}

	zero := core.IsZeroVector(record.Vector)
	if zero {
		p.logger.Warn("email indexed with zero vector, reindex once the embedder is healthy",
			"email_id", review.EmailID)
	}
	p.logger.Info("email indexed", "email_id", review.EmailID, "vector_id", record.ID, "reused", reused)
	p.record(ctx, actor, core.ActionIndexEmail, review.EmailID, map[string]string{
		"vector_id":   record.ID,
		"reused":      fmt.Sprint(reused),
		"zero_vector": fmt.Sprint(zero),
	})
	return core.IndexIndexed, nil
}

// vectorFor returns the stored vector when its content hash matches and it
// is not a zero vector, otherwise a fresh embedding of text.
func (p *Pipeline) vectorFor(ctx context.Context, vectorID, text, hash string) ([]float32, bool, error) {
	existing, err := p.vectors.Get(ctx, vectorID)
	switch {
	case err == nil:
		if existing.ContentHash == hash && !core.IsZeroVector(existing.Vector) {
			return existing.Vector, true, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, fmt.Errorf("reading vector: %w", err)
	}

	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, false, fmt.Errorf("embedding email: %w", err)
	}
	return vector, false, nil
}

// unindexRejected drops the vector record of an email that was approved
// before being rejected. Failures are logged.
func (p *Pipeline) unindexRejected(ctx context.Context, actor core.Actor, review *core.EmailReview) {
	vectorID := core.VectorIDFor(review.EmailID)
	if _, err := p.vectors.Get(ctx, vectorID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Error("failed to check index for rejected email", "email_id", review.EmailID, "err", err)
		}
		return
	}
	if err := p.vectors.Delete(ctx, vectorID); err != nil {
		p.logger.Error("failed to remove rejected email from index", "email_id", review.EmailID, "err", err)
		return
	}
	p.logger.Info("rejected email removed from index", "email_id", review.EmailID)
	p.record(ctx, actor, core.ActionDeleteVector, review.EmailID, map[string]string{"vector_id": vectorID, "reason": "rejected"})
}

func (p *Pipeline) recordIndexFailure(ctx context.Context, actor core.Actor, emailID string, err error) {
	p.logger.Error("indexing failed, decision kept", "email_id", emailID, "err", err)
	p.record(ctx, actor, core.ActionIndexFailed, emailID, map[string]string{"error": err.Error()})
}

// metadataFor builds the filterable metadata stored with a vector record.
func metadataFor(review *core.EmailReview) map[string]string {
	receivedAt := ""
	if !review.Content.ReceivedAt.IsZero() {
		receivedAt = review.Content.ReceivedAt.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		core.MetaDepartment:  string(review.Analysis.Department),
		core.MetaSensitivity: string(review.Analysis.Sensitivity),
		core.MetaTags:        strings.Join(review.Analysis.Tags, ","),
		core.MetaSubject:     review.Content.Subject,
		core.MetaSender:      review.Content.SenderAddress,
		core.MetaReceivedAt:  receivedAt,
		core.MetaSummary:     review.Analysis.Summary,
	}
}

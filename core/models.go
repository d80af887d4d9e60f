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

package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

const (
	// DefaultImportance is applied to emails that arrive without one.
	DefaultImportance = "normal"

	// DefaultSearchLimit is used when a vector query does not set a limit.
	DefaultSearchLimit = 10
	// MaxSearchLimit is the largest limit a vector query may request.
	MaxSearchLimit = 100

	// DefaultAuditLimit bounds audit queries that do not set a limit.
	DefaultAuditLimit = 100

	vectorIDPrefix = "vec_"
)

// Actor identifies the user performing a state-changing operation.
// It is supplied by the identity layer and used for attribution only.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Attachment describes a file attached to an email.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Text        string `json:"text,omitempty"` // extracted plain text, empty when unavailable
}

// EmailContent is a fetched email as handed over by a mail source.
// The pipeline never modifies it.
type EmailContent struct {
	ID                string       `json:"id"`
	InternetMessageID string       `json:"internet_message_id,omitempty"`
	Subject           string       `json:"subject"`
	SenderName        string       `json:"sender_name,omitempty"`
	SenderAddress     string       `json:"sender_address"`
	Recipients        []string     `json:"recipients,omitempty"`
	CcRecipients      []string     `json:"cc_recipients,omitempty"`
	ReceivedAt        time.Time    `json:"received_at"`
	Body              string       `json:"body"`
	IsHTML            bool         `json:"is_html,omitempty"`
	FolderID          string       `json:"folder_id,omitempty"`
	FolderName        string       `json:"folder_name,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	Importance        string       `json:"importance,omitempty"`
}

// EmailAnalysis is the classification produced for an email.
type EmailAnalysis struct {
	Sensitivity       Sensitivity       `json:"sensitivity"`
	Department        Department        `json:"department"`
	Tags              []string          `json:"tags"`
	IsPrivate         bool              `json:"is_private"`
	PIIDetected       []PIIType         `json:"pii_detected"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Summary           string            `json:"summary"`
	KeyPoints         []string          `json:"key_points"`
}

// EmailReview tracks an email through the human review workflow.
// Reviews are keyed by EmailID and are never deleted.
type EmailReview struct {
	EmailID    string        `json:"email_id"`
	Content    EmailContent  `json:"content"`
	Analysis   EmailAnalysis `json:"analysis"`
	Status     ReviewStatus  `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ReviewedAt *time.Time    `json:"reviewed_at,omitempty"`
	ReviewerID string        `json:"reviewer_id,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

// Approval is a reviewer's decision on a pending review.
type Approval struct {
	Approved bool
	Notes    string
}

// ReviewFilter selects reviews. Zero-valued fields match everything and
// the set fields are AND-combined.
type ReviewFilter struct {
	Status      ReviewStatus
	Department  Department
	Sensitivity Sensitivity
	IsPrivate   *bool
}

// Matches reports whether review satisfies every set field of the filter.
func (f ReviewFilter) Matches(review *EmailReview) bool {
	if review == nil {
		return false
	}
	if f.Status != "" && review.Status != f.Status {
		return false
	}
	if f.Department != "" && review.Analysis.Department != f.Department {
		return false
	}
	if f.Sensitivity != "" && review.Analysis.Sensitivity != f.Sensitivity {
		return false
	}
	if f.IsPrivate != nil && review.Analysis.IsPrivate != *f.IsPrivate {
		return false
	}
	return true
}

// Metadata keys stored on every vector record.
const (
	MetaDepartment  = "department"
	MetaSensitivity = "sensitivity"
	MetaTags        = "tags"
	MetaSubject     = "subject"
	MetaSender      = "sender"
	MetaReceivedAt  = "received_at"
	MetaSummary     = "summary"
)

// VectorRecord is the indexed, searchable form of an approved email.
type VectorRecord struct {
	ID          string
	EmailID     string
	Content     string // the text that was embedded
	ContentHash string
	Metadata    map[string]string
	Vector      []float32
	CreatedAt   time.Time
	Seq         uint64 // insertion order, assigned by the store
}

// VectorQuery bounds and filters a similarity search.
type VectorQuery struct {
	Limit  int               // 0 selects DefaultSearchLimit
	Filter map[string]string // metadata equalities, AND-combined
}

// SearchResult is a vector record with its similarity to the query.
type SearchResult struct {
	Record *VectorRecord
	Score  float32
}

// Audit action types.
const (
	ActionIngestEmail  = "ingest_email"
	ActionApproveEmail = "approve_email"
	ActionRejectEmail  = "reject_email"
	ActionIndexEmail   = "index_email"
	ActionIndexFailed  = "index_failed"
	ActionDeleteVector = "delete_vector"
	ActionReembedIndex = "reembed_index"
)

// AuditEntry is an append-only record of a state-changing action.
type AuditEntry struct {
	ID         string            `json:"id"`
	ActionType string            `json:"action_type"`
	UserID     string            `json:"user_id"`
	ResourceID string            `json:"resource_id"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// AuditFilter selects audit entries. Zero-valued fields match everything.
// Start and End are inclusive.
type AuditFilter struct {
	UserID     string
	ActionType string
	ResourceID string
	Start      time.Time
	End        time.Time
	Limit      int // 0 selects DefaultAuditLimit
}

// Matches reports whether entry satisfies the filter's equality and time bounds.
func (f AuditFilter) Matches(entry *AuditEntry) bool {
	if f.UserID != "" && entry.UserID != f.UserID {
		return false
	}
	if f.ActionType != "" && entry.ActionType != f.ActionType {
		return false
	}
	if f.ResourceID != "" && entry.ResourceID != f.ResourceID {
		return false
	}
	if !f.Start.IsZero() && entry.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && entry.Timestamp.After(f.End) {
		return false
	}
	return true
}

// IndexStatus is the outcome of the indexing step after an approval.
type IndexStatus string

const (
	// IndexIndexed means a vector record was written.
	IndexIndexed IndexStatus = "indexed"
	// IndexSkipped means nothing was indexed because the email was rejected.
	IndexSkipped IndexStatus = "skipped"
	// IndexFailed means the decision stands but the vector record was not written.
	IndexFailed IndexStatus = "failed"
)

// VectorIDFor returns the vector record ID for an email.
func VectorIDFor(emailID string) string {
	return vectorIDPrefix + emailID
}

// ContentHash fingerprints text with BLAKE2b so unchanged content can be
// recognised without re-embedding it.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Package ingestion orchestrates an email's path through review.
//
// The Pipeline ties together the review store, the vector index, the audit
// log, and the AI services:
//   - IngestAndClassify classifies a new email and stores it as a pending review
//   - ApproveAndIndex records a reviewer's decision and indexes approved emails
//   - Reindex and RemoveFromIndex maintain the index for existing reviews
//
// Classification and embedding failures never fail an operation: the email
// is classified fail-closed, or indexed with a zero vector. An indexing
// failure after an approval leaves the decision in place and is reported as
// a degraded success (core.IndexFailed), optionally queued for retry.
//
// Bulk operations run on a shared worker pool. Audit failures are logged
// and never fail the operation they describe.
package ingestion

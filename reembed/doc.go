// Package reembed re-embeds every record in the vector index, typically
// after switching to a new embedding model.
//
// Records are processed in batches with retries and exponential backoff,
// and progress is reported to a writer. Each record keeps its ID, content,
// metadata and insertion sequence; only the vector is replaced. The new
// model's dimension must match the index dimension, which is checked before
// any record is touched.
package reembed

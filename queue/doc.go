// Package queue holds emails whose indexing failed in a Redis list and
// retries them with a Worker.
//
// Producers call RetryQueue.Enqueue, which satisfies ingestion.RetryQueue.
// A Worker pops tasks, calls Reindex, and pushes the task back with an
// incremented attempt count until MaxAttempts is reached.
package queue

package queue

import "errors"

var (
	ErrRedisClientRequired = errors.New("redis client is required")
	ErrQueueNameRequired   = errors.New("queue name is required")
	ErrQueueRequired       = errors.New("queue is required")
	ErrReindexerRequired   = errors.New("reindexer is required")
	ErrInvalidMaxAttempts  = errors.New("max attempts must be at least 1")

	// ErrMalformedTask means a dequeued payload could not be decoded. The
	// payload has already been removed from the queue.
	ErrMalformedTask = errors.New("malformed retry task")
)

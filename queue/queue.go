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


package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list used when none is configured.
const DefaultQueueName = "mailkb:index-retry"

// Task is one queued indexing retry.
type Task struct {
	EmailID    string    `json:"email_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RetryQueue is a FIFO of Tasks backed by a Redis list. Tasks are pushed
// on the left and popped from the right.
type RetryQueue struct {
	rdb    *redis.Client
	name   string
	logger *slog.Logger
}

// Option configures a RetryQueue.
type Option func(*RetryQueue)

// WithLogger sets the queue's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *RetryQueue) {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger.With("component", "retry-queue")
	}
}

// NewRetryQueue creates a queue on the Redis list name.
func NewRetryQueue(rdb *redis.Client, name string, opts ...Option) (*RetryQueue, error) {
	if rdb == nil {
		return nil, ErrRedisClientRequired
	}
	if name == "" {
		return nil, ErrQueueNameRequired
	}
	q := &RetryQueue{
		rdb:    rdb,
		name:   name,
		logger: slog.Default().With("component", "retry-queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Connect parses a redis:// URL and opens a queue on it. The caller owns
// the returned client and must close it.
func Connect(ctx context.Context, url, name string, opts ...Option) (*RetryQueue, *redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	q, err := NewRetryQueue(rdb, name, opts...)
	if err != nil {
		rdb.Close()
		return nil, nil, err
	}
	if err := q.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return q, rdb, nil
}

// Name returns the Redis list name.
func (q *RetryQueue) Name() string {
	return q.name
}

// Enqueue queues a first retry for emailID.
func (q *RetryQueue) Enqueue(ctx context.Context, emailID string) error {
	return q.push(ctx, &Task{EmailID: emailID, Attempt: 1, EnqueuedAt: time.Now().UTC()})
}

// Requeue pushes task back with its attempt count incremented.
func (q *RetryQueue) Requeue(ctx context.Context, task *Task) error {
	next := *task
	next.Attempt++
	next.EnqueuedAt = time.Now().UTC()
	return q.push(ctx, &next)
}

// Dequeue blocks up to timeout for the next task. It returns nil, nil when
// the queue stayed empty, and ErrMalformedTask for a payload that does not
// decode. Redis counts the timeout in whole seconds, so
// shorter values are raised to one second.
func (q *RetryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	timeout = max(timeout, time.Second)
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("redis BRPOP: unexpected reply of %d elements", len(res))
	}

	return decodeTask(res[1])
}

func decodeTask(payload string) (*Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	if task.EmailID == "" {
		return nil, fmt.Errorf("%w: no email id in %q", ErrMalformedTask, payload)
	}
	return &task, nil
}

// Len returns the number of queued tasks.
func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("redis LLEN: %w", err)
	}
	return n, nil
}

// Ping checks Redis connectivity.
func (q *RetryQueue) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.rdb.Ping(ctx).Err()
}

func (q *RetryQueue) push(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal retry task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, string(data)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}
	q.logger.Debug("queued index retry", "email_id", task.EmailID, "attempt", task.Attempt, "queue", q.name)
	return nil
}

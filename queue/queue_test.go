package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisQueue connects to $REDIS_URL on a throwaway list name.
func redisQueue(t *testing.T) *RetryQueue {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	q, rdb, err := Connect(ctx, url, "mailkb-test:"+uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		rdb.Del(context.Background(), q.Name())
		rdb.Close()
	})
	return q
}

func TestRetryQueue_FIFO(t *testing.T) {
	q := redisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "first"))
	require.NoError(t, q.Enqueue(ctx, "second"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "first", task.EmailID)
	assert.Equal(t, 1, task.Attempt)
	assert.False(t, task.EnqueuedAt.IsZero())

	require.NoError(t, q.Requeue(ctx, task))

	task, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", task.EmailID)

	task, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", task.EmailID)
	assert.Equal(t, 2, task.Attempt)
}

func TestRetryQueue_DequeueEmpty(t *testing.T) {
	q := redisQueue(t)

	task, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestRetryQueue_DequeueMalformed(t *testing.T) {
	q := redisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.rdb.LPush(ctx, q.Name(), "garbage").Err())
	require.NoError(t, q.Enqueue(ctx, "after"))

	_, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, ErrMalformedTask)

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after", task.EmailID)
}

func TestNewRetryQueue_Validation(t *testing.T) {
	_, err := NewRetryQueue(nil, "q")
	assert.ErrorIs(t, err, ErrRedisClientRequired)
}

func TestConnect_BadURL(t *testing.T) {
	_, _, err := Connect(context.Background(), "not-a-url", DefaultQueueName)
	assert.ErrorContains(t, err, "parse redis url")
}

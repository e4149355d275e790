package queue_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/queue"
)

// A task whose handler outlives the soft deadline must come back for a
// second attempt, and the queue must be empty once that attempt succeeds.
func TestVisibilityTimeoutRequeue(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 2)
	log := zerolog.New(io.Discard)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "vis",
		Kind:              "replenish",
		Concurrency:       1,
		VisibilityTimeout: 150 * time.Millisecond,
		SoftDeadline:      80 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		RetryJitter:       0.0,
		Store:             newMemoryStore(),
		Logger:            &log,
		Handler: func(jobCtx context.Context, task queue.Task) error {
			attempts <- task.Attempt
			if task.Attempt == 1 {
				// Simulate a hung provider call on the first attempt.
				<-jobCtx.Done()
				return jobCtx.Err()
			}
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	enq := queue.Enqueuer{R: client, Prefix: "vis", DedupTTL: time.Minute, MaxAttempts: 3}
	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{
		Kind:           "replenish",
		Payload:        []byte(`{"option":"VCH-10","qty":1}`),
		IdempotencyKey: "replenish:VCH-10",
		MaxAttempts:    3,
	}))

	require.Eventually(t, func() bool {
		return len(attempts) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	require.Equal(t, 1, <-attempts)
	require.Equal(t, 2, <-attempts)

	<-done

	depth, err := client.ZCard(context.Background(), "vis:queue:replenish").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)
}

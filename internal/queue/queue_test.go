package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"boohpay/config"
	"boohpay/internal/models"
	"boohpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	errs  []error
	calls int
}

func (f *fakeProcessor) Process(_ context.Context, _ *models.PayoutJob, progress func(int)) error {
	f.calls++
	progress(50)
	if len(f.errs) >= f.calls {
		return f.errs[f.calls-1]
	}
	return nil
}

func newQueue(t *testing.T) *PayoutQueue {
	t.Helper()
	return NewPayoutQueue(testutil.NewDB(t), config.PayoutQueueConfig{MaxAttempts: 3, BackoffBase: 5 * time.Second}, zap.NewNop())
}

func payout(id string) *models.Payout {
	return &models.Payout{ID: id, MerchantID: "m1", Provider: "SHAP"}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)

	first, err := q.Enqueue(ctx, payout("p1"), EnqueueOptions{Priority: PriorityHigh})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, payout("p1"), EnqueueOptions{Priority: PriorityLow})
	require.NoError(t, err)

	assert.Equal(t, "payout-p1", first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, PriorityHigh, second.Priority)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Waiting)
}

func TestDuplicateEnqueueRunsOnceToCompletion(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	proc := &fakeProcessor{}
	pool := NewWorkerPool(q, proc, nil, config.PayoutQueueConfig{Workers: 1}, zap.NewNop())

	_, _ = q.Enqueue(ctx, payout("p1"), EnqueueOptions{})
	_, _ = q.Enqueue(ctx, payout("p1"), EnqueueOptions{})

	ran, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, ran)
	ran, err = pool.RunOnce(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, ran)

	assert.Equal(t, 1, proc.calls)
	status, err := q.Status(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status.State)
	assert.Equal(t, 100, status.Progress)
	assert.NotNil(t, status.FinishedOn)
}

func TestFailedAttemptsBackOffThenFail(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	clock := time.Now().UTC()
	q.now = func() time.Time { return clock }

	boom := errors.New("provider down")
	proc := &fakeProcessor{errs: []error{boom, boom, boom}}
	var finalErr error
	pool := NewWorkerPool(q, proc, func(_ context.Context, _ *models.PayoutJob, err error) { finalErr = err }, config.PayoutQueueConfig{}, zap.NewNop())

	_, err := q.Enqueue(ctx, payout("p1"), EnqueueOptions{})
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		ran, err := pool.RunOnce(ctx, "w1")
		require.NoError(t, err)
		require.True(t, ran, "attempt %d", attempt)

		job, err := q.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, attempt, job.AttemptsMade)
		if attempt < 3 {
			assert.Equal(t, models.JobDelayed, job.State)
			assert.WithinDuration(t, clock.Add(q.Backoff(attempt)), job.RunAt, time.Second)

			ran, _ = pool.RunOnce(ctx, "w1")
			assert.False(t, ran, "job is not due before its backoff")
			clock = clock.Add(q.Backoff(attempt) + time.Second)
		} else {
			assert.Equal(t, models.JobFailed, job.State)
			assert.Equal(t, "provider down", job.LastError)
		}
	}
	assert.ErrorIs(t, finalErr, boom)

	require.NoError(t, q.Retry(ctx, "p1"))
	job, _ := q.Get(ctx, "p1")
	assert.Equal(t, models.JobWaiting, job.State)
	assert.Zero(t, job.AttemptsMade)
}

func TestBackoffDoubles(t *testing.T) {
	q := newQueue(t)
	assert.Equal(t, 5*time.Second, q.Backoff(1))
	assert.Equal(t, 10*time.Second, q.Backoff(2))
	assert.Equal(t, 40*time.Second, q.Backoff(4))
}

func TestCancelOnlyBeforeStart(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	_, _ = q.Enqueue(ctx, payout("p1"), EnqueueOptions{RunAt: time.Now().Add(time.Hour)})
	_, _ = q.Enqueue(ctx, payout("p2"), EnqueueOptions{})

	job, _ := q.Get(ctx, "p1")
	assert.Equal(t, models.JobDelayed, job.State)
	require.NoError(t, q.Cancel(ctx, "p1"))
	assert.ErrorIs(t, q.Cancel(ctx, "p1"), ErrNotCancellable)
	assert.ErrorIs(t, q.Cancel(ctx, "missing"), ErrJobNotFound)

	claimed, err := q.claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "payout-p2", claimed.ID)
	assert.ErrorIs(t, q.Cancel(ctx, "p2"), ErrNotCancellable)
	assert.ErrorIs(t, q.Retry(ctx, "p2"), ErrNotRetryable)
}

func TestPauseStopsClaims(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	_, _ = q.Enqueue(ctx, payout("p1"), EnqueueOptions{})

	require.NoError(t, q.Pause(ctx))
	job, err := q.claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, job)
	st, _ := q.Stats(ctx)
	assert.True(t, st.Paused)

	require.NoError(t, q.Resume(ctx))
	job, err = q.claim(ctx, "w1")
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestRecoverStalled(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	_, _ = q.Enqueue(ctx, payout("p1"), EnqueueOptions{})
	_, err := q.claim(ctx, "w1")
	require.NoError(t, err)

	n, err := q.RecoverStalled(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	later := time.Now().UTC().Add(2 * time.Minute)
	q.now = func() time.Time { return later }
	n, err = q.RecoverStalled(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	job, _ := q.Get(ctx, "p1")
	assert.Equal(t, models.JobWaiting, job.State)
}

func TestPriorityOrder(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	_, _ = q.Enqueue(ctx, payout("low"), EnqueueOptions{Priority: PriorityLow})
	_, _ = q.Enqueue(ctx, payout("high"), EnqueueOptions{Priority: PriorityHigh})

	job, err := q.claim(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "payout-high", job.ID)

	pending, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "payout-low", pending[0].ID)
}

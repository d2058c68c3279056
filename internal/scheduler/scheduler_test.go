package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNextDaily(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	next, err := NextDaily(time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC), "02:00", paris)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), next.UTC())

	next, err = NextDaily(time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), "02:00", paris)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC), next.UTC())

	_, err = NextDaily(time.Now(), "25:99", paris)
	assert.Error(t, err)
}

func TestAddValidates(t *testing.T) {
	s := New(zap.NewNop())
	run := func(context.Context) error { return nil }
	assert.Error(t, s.Add(Job{Name: "no-run", Every: time.Second}))
	assert.Error(t, s.Add(Job{Name: "no-interval", Run: run}))
	assert.Error(t, s.Add(Job{Name: "bad-clock", At: "noon", Run: run}))
	require.NoError(t, s.Add(Job{Name: "ok", Every: time.Second, Run: run}))
	assert.Equal(t, []string{"ok"}, s.Names())
}

func TestRunKeepsGoingAfterFailures(t *testing.T) {
	s := New(zap.NewNop())
	var calls atomic.Int32
	require.NoError(t, s.Add(Job{Name: "flaky", Every: 5 * time.Millisecond, Run: func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("still failing")
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunNow(t *testing.T) {
	s := New(zap.NewNop())
	ran := false
	require.NoError(t, s.Add(Job{Name: "reconcile", At: "02:00", Run: func(context.Context) error { ran = true; return nil }}))
	require.NoError(t, s.RunNow(context.Background(), "reconcile"))
	assert.True(t, ran)
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

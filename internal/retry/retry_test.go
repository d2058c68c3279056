package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("http %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func noSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestDoRetriesServerErrorsThenSucceeds(t *testing.T) {
	var slept []time.Duration
	calls := 0
	v, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", statusErr(500)
		}
		return "ok", nil
	}, Options{MaxRetries: 3, InitialDelay: time.Second, Sleep: noSleep(&slept)})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestDoDoesNotRetryClientError(t *testing.T) {
	var slept []time.Duration
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, statusErr(400)
	}, Options{MaxRetries: 3, Sleep: noSleep(&slept)})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
	var se statusErr
	assert.True(t, errors.As(err, &se))
}

func TestDoExhaustsAndKeepsCause(t *testing.T) {
	var slept []time.Duration
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, statusErr(503)
	}, Options{MaxRetries: 2, InitialDelay: 10 * time.Millisecond, Sleep: noSleep(&slept)})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	var se statusErr
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 503, se.HTTPStatus())
}

func TestDelayIsCapped(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, time.Second, o.Delay(0))
	assert.Equal(t, 4*time.Second, o.Delay(2))
	assert.Equal(t, 10*time.Second, o.Delay(5))
}

func TestRetryableClassification(t *testing.T) {
	o := DefaultOptions()
	assert.True(t, o.Retryable(statusErr(429)))
	assert.False(t, o.Retryable(statusErr(404)))
	assert.True(t, o.Retryable(errors.New("read tcp: ECONNRESET")))
	assert.True(t, o.Retryable(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	assert.True(t, o.Retryable(&net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}))
	assert.True(t, o.Retryable(&TransientNetworkError{Err: errors.New("eof")}))
	assert.False(t, o.Retryable(errors.New("invalid amount")))
	assert.False(t, o.Retryable(context.Canceled))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, func(context.Context) (int, error) {
		calls++
		return 0, statusErr(502)
	}, Options{MaxRetries: 3, InitialDelay: time.Hour})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

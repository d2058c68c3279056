// Package retry runs an operation with exponential backoff on transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"syscall"
	"time"
)

// Options configures Do. Zero fields take the defaults; a negative MaxRetries disables retries.
type Options struct {
	MaxRetries           int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	Multiplier           float64
	RetryableStatusCodes []int
	RetryableErrors      []string
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:           3,
		InitialDelay:         time.Second,
		MaxDelay:             10 * time.Second,
		Multiplier:           2,
		RetryableStatusCodes: []int{429, 500, 502, 503, 504},
		RetryableErrors:      []string{"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "ECONNREFUSED"},
	}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// TransientNetworkError marks a failure as retryable regardless of its message.
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string { return "transient network error: " + e.Err.Error() }
func (e *TransientNetworkError) Unwrap() error { return e.Err }

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	switch {
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	case o.MaxRetries == 0:
		o.MaxRetries = d.MaxRetries
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.Multiplier <= 0 {
		o.Multiplier = d.Multiplier
	}
	if o.RetryableStatusCodes == nil {
		o.RetryableStatusCodes = d.RetryableStatusCodes
	}
	if o.RetryableErrors == nil {
		o.RetryableErrors = d.RetryableErrors
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

// Do calls fn until it succeeds, returns a non-retryable error, or MaxRetries retries are spent.
// fn is invoked at most MaxRetries+1 times.
func Do[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()
	var zero T
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == opts.MaxRetries || !opts.Retryable(err) {
			break
		}
		if err := opts.Sleep(ctx, opts.Delay(attempt)); err != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, lastErr)
		}
	}
	if opts.Retryable(lastErr) && opts.MaxRetries > 0 {
		return zero, fmt.Errorf("giving up after %d attempts: %w", opts.MaxRetries+1, lastErr)
	}
	return zero, lastErr
}

// Delay is min(InitialDelay * Multiplier^attempt, MaxDelay).
func (o Options) Delay(attempt int) time.Duration {
	d := float64(o.InitialDelay) * math.Pow(o.Multiplier, float64(attempt))
	if d > float64(o.MaxDelay) {
		return o.MaxDelay
	}
	return time.Duration(d)
}

// Retryable classifies err as transient.
func (o Options) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		for _, code := range o.RetryableStatusCodes {
			if sc.HTTPStatus() == code {
				return true
			}
		}
		return false
	}
	var tn *TransientNetworkError
	if errors.As(err, &tn) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsNotFound || dnsErr.IsTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, s := range o.RetryableErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

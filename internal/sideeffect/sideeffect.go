// Package sideeffect defines the best-effort collaborators that run after a payment, refund or payout
// changes state. Their failures are reported as Results and logged, never returned to the caller.
package sideeffect

import (
	"context"

	"go.uber.org/zap"
)

type Result struct {
	Name    string
	Skipped bool
	Err     error
}

func OK(name string) Result              { return Result{Name: name} }
func Skip(name string) Result            { return Result{Name: name, Skipped: true} }
func Fail(name string, err error) Result { return Result{Name: name, Err: err} }

// Log writes failed results at warn level and the rest at debug level.
func Log(log *zap.Logger, subject string, results ...Result) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			log.Warn("side effect failed", zap.String("effect", r.Name), zap.String("subject", subject), zap.Error(r.Err))
		case r.Skipped:
			log.Debug("side effect skipped", zap.String("effect", r.Name), zap.String("subject", subject))
		default:
			log.Debug("side effect done", zap.String("effect", r.Name), zap.String("subject", subject))
		}
	}
}

// Notifier tells a merchant (or operators, with an empty merchant id) that something happened.
type Notifier interface {
	Notify(ctx context.Context, merchantID, kind, title, body string, data map[string]any) Result
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string) Result
}

// VATTrigger starts VAT computation for settled money movements.
type VATTrigger interface {
	PaymentSucceeded(ctx context.Context, merchantID, paymentID string, amountMinor int64, currency string) Result
	RefundSucceeded(ctx context.Context, merchantID, paymentID, refundID string, amountMinor int64, full bool) Result
}

// MerchantWebhooks queues an outbound event for the merchant's webhook endpoint.
type MerchantWebhooks interface {
	Dispatch(ctx context.Context, merchantID, eventType string, payload map[string]any) Result
}

type Metrics interface {
	Count(name string, tags map[string]string)
}

// Publisher pushes live events to connected merchant dashboards.
type Publisher interface {
	Publish(merchantID, event string, data any)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, string, string, map[string]any) Result {
	return Skip("notify")
}

type NopCache struct{}

func (NopCache) Invalidate(context.Context, ...string) Result { return Skip("cache") }

type NopWebhooks struct{}

func (NopWebhooks) Dispatch(context.Context, string, string, map[string]any) Result {
	return Skip("merchant_webhook")
}

type NopPublisher struct{}

func (NopPublisher) Publish(string, string, any) {}

// LogVAT records VAT triggers in the log. VAT computation itself lives outside this service.
type LogVAT struct {
	Log *zap.Logger
}

func (v LogVAT) PaymentSucceeded(_ context.Context, merchantID, paymentID string, amountMinor int64, currency string) Result {
	v.logger().Info("vat trigger: payment",
		zap.String("merchant_id", merchantID), zap.String("payment_id", paymentID),
		zap.Int64("amount_minor", amountMinor), zap.String("currency", currency))
	return OK("vat")
}

func (v LogVAT) RefundSucceeded(_ context.Context, merchantID, paymentID, refundID string, amountMinor int64, full bool) Result {
	v.logger().Info("vat trigger: refund",
		zap.String("merchant_id", merchantID), zap.String("payment_id", paymentID), zap.String("refund_id", refundID),
		zap.Int64("amount_minor", amountMinor), zap.Bool("full", full))
	return OK("vat")
}

func (v LogVAT) logger() *zap.Logger {
	if v.Log == nil {
		return zap.NewNop()
	}
	return v.Log
}

// LogMetrics emits counters as structured log lines.
type LogMetrics struct {
	Log *zap.Logger
}

func (m LogMetrics) Count(name string, tags map[string]string) {
	if m.Log == nil {
		return
	}
	fields := make([]zap.Field, 0, len(tags)+1)
	fields = append(fields, zap.String("metric", name))
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	m.Log.Info("metric", fields...)
}

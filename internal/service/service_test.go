package service

import (
	"context"
	"testing"

	"boohpay/config"
	"boohpay/internal/domain"
	"boohpay/internal/gateway"
	"boohpay/internal/models"
	"boohpay/internal/queue"
	"boohpay/internal/sideeffect"
	"boohpay/internal/testutil"
	"boohpay/pkg/payment"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreatePayment(ctx context.Context, req payment.PaymentRequest) (*payment.PaymentResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*payment.PaymentResult)
	return res, args.Error(1)
}

func (m *mockProvider) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*payment.RefundResult)
	return res, args.Error(1)
}

func (m *mockProvider) CreatePayout(ctx context.Context, req payment.PayoutRequest) (*payment.PayoutResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*payment.PayoutResult)
	return res, args.Error(1)
}

type recordingNotifier struct {
	kinds []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, kind, _, _ string, _ map[string]any) sideeffect.Result {
	n.kinds = append(n.kinds, kind)
	return sideeffect.OK("notification")
}

type fixture struct {
	db       *gorm.DB
	registry *gateway.Registry
	notifier *recordingNotifier
	payments *PaymentService
	refunds  *RefundService
	payouts  *PayoutService
	queue    *queue.PayoutQueue
	workers  *queue.WorkerPool
	subs     *SubscriptionService
	billing  *BillingService
	dunning  *DunningService
}

// newFixture wires the services against sqlite. Every real gateway is served by the sandbox
// unless a test registers its own adapter.
func newFixture(t *testing.T, adapters map[domain.Gateway]any) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	reg := gateway.NewRegistry()
	for _, g := range []domain.Gateway{domain.GatewayStripe, domain.GatewayMoneroo, domain.GatewayEbilling, domain.GatewayShap} {
		reg.Register(g, payment.SandboxProvider{})
	}
	for g, a := range adapters {
		reg.Register(g, a)
	}
	log := zap.NewNop()
	n := &recordingNotifier{}
	deps := Deps{Notifier: n}
	qcfg := config.PayoutQueueConfig{MaxAttempts: 2}
	q := queue.NewPayoutQueue(db, qcfg, log)

	f := &fixture{db: db, registry: reg, notifier: n, queue: q}
	f.payments = NewPaymentService(db, reg, config.FeesConfig{PlatformRate: 0.015}, deps, nil, log)
	f.refunds = NewRefundService(db, reg, deps, log)
	f.payouts = NewPayoutService(db, q, deps, log)
	proc := NewPayoutProcessor(f.payouts, reg)
	f.workers = queue.NewWorkerPool(q, proc, proc.OnFinalFailure, qcfg, log)
	f.subs = NewSubscriptionService(db, log)
	f.billing = NewBillingService(db, f.payments, log)
	f.dunning = NewDunningService(db, f.billing, deps, log)
	return f
}

func (f *fixture) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.db.Preload("Events", byOccurrence).First(&p, "id = ?", id).Error)
	return &p
}

func (f *fixture) payout(t *testing.T, id string) *models.Payout {
	t.Helper()
	var p models.Payout
	require.NoError(t, f.db.Preload("Events", byOccurrence).First(&p, "id = ?", id).Error)
	return &p
}

func byOccurrence(db *gorm.DB) *gorm.DB {
	return db.Order("occurred_at ASC")
}

func eventTypes[E any](events []E, typ func(E) string) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, typ(e))
	}
	return out
}

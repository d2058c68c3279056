// Package app wires the repositories, providers, services and background workers into one graph
// shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"boohpay/config"
	"boohpay/internal/archive"
	"boohpay/internal/cache"
	"boohpay/internal/domain"
	"boohpay/internal/gateway"
	"boohpay/internal/idempotency"
	"boohpay/internal/queue"
	"boohpay/internal/reconciliation"
	"boohpay/internal/repository"
	"boohpay/internal/retry"
	"boohpay/internal/scheduler"
	"boohpay/internal/service"
	"boohpay/internal/ws"
	"boohpay/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	providerTimeout = 30 * time.Second
	readCacheSize   = 4096
	readCacheTTL    = 30 * time.Second
	deliveryBatch   = 100
	completedJobTTL = 7 * 24 * time.Hour
	shapTokenMaxAge = time.Hour
)

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Log    *zap.Logger

	Registry    *gateway.Registry
	Hub         *ws.Hub
	Idempotency *idempotency.Store
	Queue       *queue.PayoutQueue
	Workers     *queue.WorkerPool
	Engine      *reconciliation.Engine
	Scheduler   *scheduler.Scheduler

	Auth          *service.AuthService
	Payments      *service.PaymentService
	Refunds       *service.RefundService
	Payouts       *service.PayoutService
	Subscriptions *service.SubscriptionService
	Billing       *service.BillingService
	Dunning       *service.DunningService
	Notifications *service.NotificationService
	Webhooks      *service.MerchantWebhookService
}

// New builds the full object graph. It performs no I/O beyond loading cloud SDK configuration.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, DB: db, Log: log}

	merchants := repository.NewMerchantRepository(db)
	creds := repository.NewCredentialRepository(db)
	client := &http.Client{Timeout: providerTimeout}
	opts := retryOptions(cfg.Retry)

	a.Registry = newRegistry(cfg, creds, client, opts, log)
	a.Hub = ws.NewHub(log)

	var push service.Pusher
	if fcm := service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath, log); fcm != nil {
		push = fcm
		log.Info("push notifications enabled")
	} else {
		log.Info("push notifications disabled")
	}
	a.Notifications = service.NewNotificationService(repository.NewNotificationRepository(db), merchants, push, a.Hub, log)
	a.Webhooks = service.NewMerchantWebhookService(repository.NewWebhookRepository(db), merchants, cfg.Webhooks, client, log)

	reads := cache.NewResponseCache(readCacheSize, readCacheTTL)
	deps := service.Deps{
		Notifier:  a.Notifications,
		Cache:     service.ReadCache{Cache: reads},
		Webhooks:  a.Webhooks,
		Publisher: a.Hub,
	}

	a.Queue = queue.NewPayoutQueue(db, cfg.PayoutQueue, log)
	a.Auth = service.NewAuthService(&cfg.JWT, merchants)
	a.Payments = service.NewPaymentService(db, a.Registry, cfg.Fees, deps, reads, log)
	a.Refunds = service.NewRefundService(db, a.Registry, deps, log)
	a.Payouts = service.NewPayoutService(db, a.Queue, deps, log)
	a.Subscriptions = service.NewSubscriptionService(db, log)
	a.Billing = service.NewBillingService(db, a.Payments, log)
	a.Dunning = service.NewDunningService(db, a.Billing, deps, log)

	proc := service.NewPayoutProcessor(a.Payouts, a.Registry)
	a.Workers = queue.NewWorkerPool(a.Queue, proc, proc.OnFinalFailure, cfg.PayoutQueue, log)
	a.Idempotency = idempotency.NewStore(repository.NewIdempotencyRepository(db), cfg.Idempotency.TTL, log)

	archiver, err := archive.New(ctx, cfg.Archive, log)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	a.Engine = reconciliation.NewEngine(db, archiver, a.Notifications, cfg.Reconciliation, log)

	a.Scheduler = scheduler.New(log)
	if err := a.addJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

func retryOptions(c config.RetryConfig) retry.Options {
	o := retry.DefaultOptions()
	if c.MaxRetries != 0 {
		o.MaxRetries = c.MaxRetries
	}
	if c.InitialDelay > 0 {
		o.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		o.MaxDelay = c.MaxDelay
	}
	if c.Multiplier > 0 {
		o.Multiplier = c.Multiplier
	}
	return o
}

func newRegistry(cfg *config.Config, creds payment.CredentialResolver, client *http.Client, opts retry.Options, log *zap.Logger) *gateway.Registry {
	tokens := cache.NewTokenCache(cfg.Shap.TokenCacheSize, shapTokenMaxAge)
	return gateway.NewRegistry().
		Register(domain.GatewayStripe, payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:      cfg.Stripe.SecretKey,
			PublishableKey: cfg.Stripe.PublishableKey,
		}, creds, opts, log)).
		Register(domain.GatewayMoneroo, payment.NewMonerooProvider(payment.MonerooConfig{
			SecretKey: cfg.Moneroo.SecretKey,
			BaseURL:   cfg.Moneroo.BaseURL,
			ReturnURL: cfg.Moneroo.ReturnURL,
		}, creds, client, opts, log)).
		Register(domain.GatewayEbilling, payment.NewEbillingProvider(payment.EbillingConfig{
			Username:  cfg.Ebilling.Username,
			SharedKey: cfg.Ebilling.SharedKey,
			BaseURL:   cfg.Ebilling.BaseURL,
		}, creds, client, opts, log)).
		Register(domain.GatewayShap, payment.NewShapProvider(payment.ShapConfig{
			APIID:     cfg.Shap.APIID,
			APISecret: cfg.Shap.APISecret,
			BaseURL:   cfg.Shap.BaseURL,
		}, creds, tokens, client, opts, log)).
		Register(domain.GatewaySandbox, payment.SandboxProvider{}).
		UseSandbox(domain.GatewaySandbox)
}

func (a *App) addJobs() error {
	sc := a.Config.Scheduler
	loc := a.Engine.Location()
	jobs := []scheduler.Job{
		{Name: "billing", Every: sc.BillingInterval, Run: func(ctx context.Context) error {
			rep, err := a.Billing.ProcessBilling(ctx)
			a.Log.Info("billing pass", zap.Int("processed", rep.Processed), zap.Int("succeeded", rep.Succeeded), zap.Int("failed", rep.Failed))
			return err
		}},
		{Name: "dunning", Every: sc.DunningInterval, Run: func(ctx context.Context) error {
			rep, err := a.Dunning.ProcessDunning(ctx)
			a.Log.Info("dunning pass", zap.Int("checked", rep.Checked), zap.Int("recovered", rep.Recovered), zap.Int("cancelled", rep.Cancelled))
			return err
		}},
		{Name: "webhook-delivery", Every: sc.DeliveryInterval, Run: func(ctx context.Context) error {
			_, err := a.Webhooks.DeliverDue(ctx, deliveryBatch)
			return err
		}},
		{Name: "idempotency-purge", Every: sc.PurgeInterval, Run: func(ctx context.Context) error {
			_, err := a.Idempotency.Purge(ctx)
			return err
		}},
		{Name: "queue-clean", Every: sc.PurgeInterval, Run: func(ctx context.Context) error {
			_, err := a.Queue.CleanCompleted(ctx, completedJobTTL)
			return err
		}},
		{Name: "queue-stalled", Every: a.Config.PayoutQueue.StallSweep, Run: func(ctx context.Context) error {
			n, err := a.Queue.RecoverStalled(ctx, a.Config.PayoutQueue.StallTimeout)
			if n > 0 {
				a.Log.Warn("recovered stalled payout jobs", zap.Int64("count", n))
			}
			return err
		}},
		{Name: "reconciliation", At: a.Config.Reconciliation.RunAt, Location: loc, Run: func(ctx context.Context) error {
			_, err := a.Engine.RunDaily(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if err := a.Scheduler.Add(j); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the payout workers and, when enabled, the scheduler until ctx is done.
// The returned func blocks until both have stopped.
func (a *App) Start(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Workers.Run(ctx)
	}()
	if a.Config.Scheduler.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Scheduler.Run(ctx)
		}()
	}
	return wg.Wait
}

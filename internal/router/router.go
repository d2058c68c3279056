package router

import (
	"boohpay/internal/app"
	"boohpay/internal/handler"
	"boohpay/internal/middleware"
	"boohpay/internal/ws"

	"github.com/gin-gonic/gin"
)

func Setup(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(a.Log), middleware.Logger(a.Log), middleware.ErrorHandler(a.Log))
	limiter := middleware.NewInMemoryRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)

	r.GET("/healthz", handler.Health(func() error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	}))

	paymentHandler := handler.NewPaymentHandler(a.Payments, a.Refunds, a.Idempotency, a.Log)
	payoutHandler := handler.NewPayoutHandler(a.Payouts, a.Idempotency, a.Log)
	subscriptionHandler := handler.NewSubscriptionHandler(a.Subscriptions)
	reconciliationHandler := handler.NewReconciliationHandler(a.Engine)
	notificationHandler := handler.NewNotificationHandler(a.Notifications)
	authHandler := handler.NewAuthHandler(a.Auth)
	webhookHandler := handler.NewWebhookHandler(a.Payments, a.Payouts, handler.WebhookSecrets{
		StripeSecret:  cfg.Stripe.WebhookSecret,
		MonerooSecret: cfg.Moneroo.WebhookSecret,
		EbillingToken: cfg.Ebilling.WebhookToken,
		ShapToken:     cfg.Shap.WebhookToken,
	}, a.Log)

	v1 := r.Group("/api/v1")

	// Provider callbacks authenticate by signature or shared token.
	hooks := v1.Group("/webhooks", middleware.RateLimit(limiter))
	{
		hooks.POST("/stripe", webhookHandler.Stripe)
		hooks.POST("/moneroo", webhookHandler.Moneroo)
		hooks.POST("/moneroo/payout", webhookHandler.MonerooPayout)
		hooks.POST("/ebilling", webhookHandler.Ebilling)
		hooks.POST("/shap/payout", webhookHandler.ShapPayout)
	}

	v1.GET("/ws/events", ws.Serve(&cfg.JWT, a.Hub))

	authed := v1.Group("", middleware.AuthRequired(a.Auth), middleware.RateLimit(limiter))
	{
		authed.POST("/auth/token", authHandler.Token)
		authed.PUT("/me/device-token", authHandler.RegisterDevice)

		payments := authed.Group("/payments")
		payments.POST("", paymentHandler.Create)
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/refund", paymentHandler.Refund)
		payments.GET("/:id/refunds", paymentHandler.Refunds)

		payouts := authed.Group("/payouts")
		payouts.POST("", payoutHandler.Create)
		payouts.GET("", payoutHandler.List)
		payouts.GET("/queue/stats", middleware.AdminOnly(), payoutHandler.QueueStats)
		payouts.POST("/queue/pause", middleware.AdminOnly(), payoutHandler.PauseQueue)
		payouts.POST("/queue/resume", middleware.AdminOnly(), payoutHandler.ResumeQueue)
		payouts.GET("/:id", payoutHandler.Get)
		payouts.GET("/:id/job", payoutHandler.Job)
		payouts.POST("/:id/cancel", payoutHandler.Cancel)
		payouts.POST("/:id/retry", payoutHandler.Retry)

		subs := authed.Group("/subscriptions")
		subs.POST("", subscriptionHandler.Create)
		subs.GET("", subscriptionHandler.List)
		subs.GET("/:id", subscriptionHandler.Get)
		subs.GET("/:id/dunning", subscriptionHandler.Dunning)
		subs.POST("/:id/cancel", subscriptionHandler.Cancel)
		subs.POST("/:id/pause", subscriptionHandler.Pause)
		subs.POST("/:id/resume", subscriptionHandler.Resume)

		recon := authed.Group("/reconciliation")
		recon.POST("/run", reconciliationHandler.Run)
		recon.GET("/history", reconciliationHandler.History)
		recon.POST("/daily", middleware.AdminOnly(), reconciliationHandler.RunDaily)
		recon.GET("/summary/:date", middleware.AdminOnly(), reconciliationHandler.Summary)

		authed.GET("/notifications", notificationHandler.List)
		authed.POST("/notifications/:id/read", notificationHandler.MarkRead)

		authed.POST("/admin/merchants", middleware.AdminOnly(), authHandler.CreateMerchant)
	}
	return r
}

package service

import (
	"context"

	"boohpay/internal/cache"
	"boohpay/internal/sideeffect"

	"go.uber.org/zap"
)

// Deps are the best-effort collaborators shared by the orchestration services.
// Unset fields are replaced with no-op implementations.
type Deps struct {
	Notifier  sideeffect.Notifier
	Cache     sideeffect.CacheInvalidator
	VAT       sideeffect.VATTrigger
	Webhooks  sideeffect.MerchantWebhooks
	Metrics   sideeffect.Metrics
	Publisher sideeffect.Publisher
}

func (d Deps) withDefaults(log *zap.Logger) Deps {
	if d.Notifier == nil {
		d.Notifier = sideeffect.NopNotifier{}
	}
	if d.Cache == nil {
		d.Cache = sideeffect.NopCache{}
	}
	if d.VAT == nil {
		d.VAT = sideeffect.LogVAT{Log: log.Named("vat")}
	}
	if d.Webhooks == nil {
		d.Webhooks = sideeffect.NopWebhooks{}
	}
	if d.Metrics == nil {
		d.Metrics = sideeffect.LogMetrics{Log: log.Named("metrics")}
	}
	if d.Publisher == nil {
		d.Publisher = sideeffect.NopPublisher{}
	}
	return d
}

// ReadCache invalidates cached read models held in a cache.ResponseCache.
type ReadCache struct {
	Cache *cache.ResponseCache
}

func (c ReadCache) Invalidate(_ context.Context, patterns ...string) sideeffect.Result {
	if c.Cache == nil {
		return sideeffect.Skip("cache")
	}
	for _, p := range patterns {
		c.Cache.InvalidatePattern(p)
	}
	return sideeffect.OK("cache")
}

package service

import (
	"context"
	"errors"
	"fmt"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/gateway"
	"boohpay/internal/models"
	"boohpay/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PayoutProcessor runs queued payouts against their provider. It implements queue.Processor.
type PayoutProcessor struct {
	svc      *PayoutService
	registry *gateway.Registry
	log      *zap.Logger
}

func NewPayoutProcessor(svc *PayoutService, registry *gateway.Registry) *PayoutProcessor {
	return &PayoutProcessor{svc: svc, registry: registry, log: svc.log.Named("processor")}
}

// Process sends one payout to its provider. A returned error makes the queue retry the job.
func (p *PayoutProcessor) Process(ctx context.Context, job *models.PayoutJob, progress func(int)) error {
	po, err := p.svc.payouts.GetByID(ctx, job.PayoutID)
	if err != nil {
		return fmt.Errorf("load payout %s: %w", job.PayoutID, err)
	}
	if domain.IsTerminalPayout(domain.PayoutStatus(po.Status)) {
		p.log.Info("payout already completed", zap.String("payout_id", po.ID), zap.String("status", po.Status))
		progress(100)
		return nil
	}
	progress(10)

	if domain.PayoutStatus(po.Status) == domain.PayoutPending {
		if err := p.record(ctx, po.ID, map[string]any{"status": string(domain.PayoutProcessing)}, domain.EventPayoutProcessing,
			map[string]any{"attemptNumber": job.AttemptsMade}); err != nil {
			return err
		}
	}
	progress(20)

	gw := p.registry.Resolve(domain.Gateway(po.Provider), po.IsTestMode)

	// A retried job may have reached the provider before failing locally.
	if job.AttemptsMade > 1 && po.ProviderReference != "" {
		if checker, ok := p.registry.PayoutStatus(gw); ok {
			res, err := checker.GetPayoutStatus(ctx, po.MerchantID, po.ProviderReference)
			if err != nil {
				p.log.Warn("payout status check failed", zap.String("payout_id", po.ID), zap.Error(err))
			} else if res.Status != "" && res.Status != domain.PayoutFailed {
				fields := map[string]any{"status": string(res.Status)}
				if res.Status == domain.PayoutPending {
					fields["status"] = string(domain.PayoutProcessing)
				}
				if err := p.record(ctx, po.ID, fields, domain.EventPayoutStatusChecked,
					map[string]any{"status": string(res.Status), "providerReference": po.ProviderReference}); err != nil {
					return err
				}
				if res.Status == domain.PayoutSucceeded {
					p.svc.afterPayoutStatus(ctx, po.MerchantID, po.ID, string(res.Status))
				}
				progress(100)
				return nil
			}
		}
	}
	progress(40)

	adapter, err := p.registry.Payout(gw)
	if err != nil {
		return fmt.Errorf("payout provider %s: %w", gw, err)
	}
	ext := ""
	if po.ExternalReference != nil {
		ext = *po.ExternalReference
	}
	res, err := adapter.CreatePayout(ctx, payment.PayoutRequest{
		PayoutID:          po.ID,
		MerchantID:        po.MerchantID,
		AmountMinor:       po.AmountMinor,
		Currency:          po.Currency,
		PaymentSystem:     po.PaymentSystem,
		PayoutType:        po.PayoutType,
		MSISDN:            po.MSISDN,
		ExternalReference: ext,
		Metadata:          po.Metadata,
		IsTestMode:        po.IsTestMode,
	})
	if err != nil {
		return fmt.Errorf("%s payout: %w", gw, err)
	}
	progress(80)

	status := res.Status
	if status == "" {
		status = domain.PayoutProcessing
	}
	fields := map[string]any{
		"status":   string(status),
		"metadata": toJSONMap(payment.MergeMetadata(map[string]any{}, po.Metadata, res.Metadata)),
	}
	if res.ProviderReference != "" {
		fields["provider_reference"] = res.ProviderReference
	}
	if err := p.record(ctx, po.ID, fields, domain.EventPayoutProviderResponse,
		map[string]any{"status": string(status), "providerReference": res.ProviderReference}); err != nil {
		return err
	}
	if domain.IsTerminalPayout(status) {
		p.svc.afterPayoutStatus(ctx, po.MerchantID, po.ID, string(status))
	} else {
		p.svc.deps.Publisher.Publish(po.MerchantID, "payout.status", map[string]any{"payoutId": po.ID, "status": string(status)})
	}
	progress(100)
	return nil
}

// OnFinalFailure marks the payout FAILED once the queue has given up on it.
func (p *PayoutProcessor) OnFinalFailure(ctx context.Context, job *models.PayoutJob, cause error) {
	po, err := p.svc.payouts.GetByID(ctx, job.PayoutID)
	if err != nil {
		p.log.Error("load failed payout", zap.String("payout_id", job.PayoutID), zap.Error(err))
		return
	}
	if domain.IsTerminalPayout(domain.PayoutStatus(po.Status)) {
		return
	}
	msg := cause.Error()
	if _, ok := apperr.As(cause); ok {
		msg = apperr.PublicMessage(cause)
	}
	failedAt := p.svc.now()
	meta := payment.MergeMetadata(map[string]any{}, po.Metadata, map[string]any{
		"error":         truncate(msg, 500),
		"failedAt":      failedAt,
		"totalAttempts": job.AttemptsMade,
	})
	err = p.record(ctx, po.ID, map[string]any{"status": string(domain.PayoutFailed), "metadata": toJSONMap(meta)},
		domain.EventPayoutFailed, map[string]any{"error": truncate(msg, 500), "attempts": job.AttemptsMade})
	if err != nil {
		p.log.Error("mark payout failed", zap.String("payout_id", po.ID), zap.Error(err))
		return
	}
	p.log.Warn("payout failed permanently", zap.String("payout_id", po.ID),
		zap.Int("attempts", job.AttemptsMade), zap.Error(cause))
	p.svc.afterPayoutStatus(ctx, po.MerchantID, po.ID, string(domain.PayoutFailed))
}

// record updates the payout and appends an event in one transaction. A payout that is already
// terminal is left untouched.
func (p *PayoutProcessor) record(ctx context.Context, payoutID string, fields map[string]any, eventType string, payload map[string]any) error {
	return p.svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payouts := p.svc.payouts.WithTx(tx)
		cur, err := payouts.Lock(ctx, payoutID)
		if err != nil {
			return err
		}
		if st, ok := fields["status"].(string); ok && st != cur.Status {
			if !domain.CanTransitionPayout(domain.PayoutStatus(cur.Status), domain.PayoutStatus(st)) {
				return errTerminalPayout
			}
		}
		if err := payouts.Update(ctx, payoutID, fields); err != nil {
			return err
		}
		return payouts.AppendEvent(ctx, &models.PayoutEvent{
			PayoutID:   payoutID,
			Type:       eventType,
			Payload:    payload,
			OccurredAt: p.svc.now(),
		})
	})
}

var errTerminalPayout = errors.New("payout already reached a terminal status")

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/middleware"
	"boohpay/internal/service"
	"boohpay/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type PaymentEventApplier interface {
	ApplyWebhookEvent(ctx context.Context, ev service.WebhookEvent) (bool, error)
}

type PayoutCallbackApplier interface {
	ApplyCallback(ctx context.Context, cb service.PayoutCallback) (bool, error)
}

// WebhookSecrets holds the provider credentials used to authenticate callbacks.
// An empty HMAC secret or token disables that check.
type WebhookSecrets struct {
	StripeSecret  string
	MonerooSecret string
	EbillingToken string
	ShapToken     string
}

// WebhookHandler receives provider callbacks. Authenticated callbacks are always acknowledged with 202;
// processing errors are only logged.
type WebhookHandler struct {
	payments PaymentEventApplier
	payouts  PayoutCallbackApplier
	secrets  WebhookSecrets
	log      *zap.Logger
}

func NewWebhookHandler(payments PaymentEventApplier, payouts PayoutCallbackApplier, secrets WebhookSecrets, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, payouts: payouts, secrets: secrets, log: log.Named("webhooks")}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.Fail(c, apperr.ValidationErr("Invalid body", nil))
		return nil, false
	}
	return body, true
}

func accepted(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"received": true})
}

func payloadMap(body []byte) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(body, &m)
	return m
}

func (h *WebhookHandler) applyPayment(c *gin.Context, ev service.WebhookEvent) {
	applied, err := h.payments.ApplyWebhookEvent(c.Request.Context(), ev)
	fields := []zap.Field{
		zap.String("provider", string(ev.Provider)),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
	}
	switch {
	case apperr.IsKind(err, apperr.NotFound):
		h.log.Warn("webhook for unknown payment", fields...)
	case err != nil:
		h.log.Error("webhook processing failed", append(fields, zap.Error(err))...)
	case !applied:
		h.log.Debug("duplicate webhook ignored", fields...)
	default:
		h.log.Info("webhook applied", append(fields, zap.String("status", string(ev.Status)))...)
	}
	accepted(c)
}

func (h *WebhookHandler) applyPayout(c *gin.Context, cb service.PayoutCallback) {
	applied, err := h.payouts.ApplyCallback(c.Request.Context(), cb)
	fields := []zap.Field{
		zap.String("provider", string(cb.Provider)),
		zap.String("event_id", cb.EventID),
		zap.String("external_reference", cb.ExternalReference),
	}
	switch {
	case apperr.IsKind(err, apperr.NotFound):
		h.log.Warn("callback for unknown payout", fields...)
	case err != nil:
		h.log.Error("payout callback failed", append(fields, zap.Error(err))...)
	case !applied:
		h.log.Debug("duplicate payout callback ignored", fields...)
	default:
		h.log.Info("payout callback applied", append(fields, zap.String("status", string(cb.Status)))...)
	}
	accepted(c)
}

// Stripe handles payment_intent.* events signed with the stripe-signature header.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	if h.secrets.StripeSecret == "" {
		h.log.Error("stripe webhook secret is not configured")
		middleware.Fail(c, apperr.ValidationErr("Stripe webhook secret is not configured", nil))
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	event, err := webhook.StripeEvent(body, c.GetHeader("Stripe-Signature"), h.secrets.StripeSecret)
	if err != nil {
		h.log.Warn("stripe signature rejected", zap.Error(err))
		middleware.Fail(c, apperr.AuthErr("Invalid Stripe signature"))
		return
	}
	eventType := string(event.Type)
	if !strings.HasPrefix(eventType, "payment_intent.") {
		h.log.Debug("ignoring stripe event", zap.String("event_type", eventType))
		accepted(c)
		return
	}
	var pi stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &pi) != nil {
		middleware.Fail(c, apperr.ValidationErr("Invalid Stripe payload", nil))
		return
	}
	status, _ := webhook.StripePaymentStatus(eventType, string(pi.Status))
	h.applyPayment(c, service.WebhookEvent{
		Provider:          domain.GatewayStripe,
		EventID:           event.ID,
		EventType:         eventType,
		PaymentID:         pi.Metadata["boohpay_payment_id"],
		OrderID:           pi.Metadata["order_id"],
		ProviderReference: pi.ID,
		Status:            status,
		Payload:           payloadMap(body),
	})
}

type monerooPayload struct {
	Event string `json:"event"`
	Data  *struct {
		ID       string         `json:"id"`
		Status   string         `json:"status"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

func (h *WebhookHandler) monerooBody(c *gin.Context) ([]byte, *monerooPayload, bool) {
	body, ok := readBody(c)
	if !ok {
		return nil, nil, false
	}
	if err := webhook.VerifyHMAC(body, c.GetHeader("X-Moneroo-Signature"), h.secrets.MonerooSecret); err != nil {
		h.log.Warn("moneroo signature rejected", zap.Error(err))
		middleware.Fail(c, apperr.AuthErr("Invalid webhook signature"))
		return nil, nil, false
	}
	var p monerooPayload
	if err := json.Unmarshal(body, &p); err != nil {
		middleware.Fail(c, apperr.ValidationErr("Invalid Moneroo payload", nil))
		return nil, nil, false
	}
	return body, &p, true
}

// monerooEventID keys dedupe on event and transaction, since Moneroo reuses the transaction id across events.
func monerooEventID(event, id string) string {
	if id == "" {
		return ""
	}
	return strings.ToLower(event) + ":" + id
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (h *WebhookHandler) Moneroo(c *gin.Context) {
	body, p, ok := h.monerooBody(c)
	if !ok {
		return
	}
	if p.Event == "" || p.Data == nil {
		middleware.Fail(c, apperr.ValidationErr("Invalid Moneroo webhook payload", nil))
		return
	}
	status, _ := webhook.MonerooPaymentStatus(p.Event, p.Data.Status)
	h.applyPayment(c, service.WebhookEvent{
		Provider:          domain.GatewayMoneroo,
		EventID:           monerooEventID(p.Event, p.Data.ID),
		EventType:         p.Event,
		PaymentID:         metaString(p.Data.Metadata, "boohpay_payment_id"),
		OrderID:           metaString(p.Data.Metadata, "order_id"),
		ProviderReference: p.Data.ID,
		Status:            status,
		Payload:           payloadMap(body),
	})
}

func (h *WebhookHandler) MonerooPayout(c *gin.Context) {
	body, p, ok := h.monerooBody(c)
	if !ok {
		return
	}
	if !strings.HasPrefix(strings.ToLower(p.Event), "payout.") {
		h.log.Debug("ignoring non-payout moneroo event", zap.String("event_type", p.Event))
		accepted(c)
		return
	}
	if p.Data == nil {
		h.log.Warn("moneroo payout callback without data")
		accepted(c)
		return
	}
	payoutID := metaString(p.Data.Metadata, "boohpay_payout_id")
	ref := metaString(p.Data.Metadata, "external_reference")
	if payoutID == "" && ref == "" {
		h.log.Warn("moneroo payout callback without payout reference", zap.String("moneroo_id", p.Data.ID))
		accepted(c)
		return
	}
	status, _ := webhook.PayoutStatus(p.Event, p.Data.Status)
	h.applyPayout(c, service.PayoutCallback{
		Provider:          domain.GatewayMoneroo,
		EventID:           monerooEventID(p.Event, p.Data.ID),
		EventType:         p.Event,
		PayoutID:          payoutID,
		ExternalReference: ref,
		ProviderReference: p.Data.ID,
		Status:            status,
		Payload:           payloadMap(body),
	})
}

type ebillingPayload struct {
	BillID        string `json:"bill_id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	TransactionID string `json:"transaction_id"`
}

func (h *WebhookHandler) Ebilling(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := webhook.VerifyToken(c.GetHeader("X-Webhook-Token"), h.secrets.EbillingToken); err != nil {
		middleware.Fail(c, apperr.AuthErr("Invalid webhook token"))
		return
	}
	var p ebillingPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Reference == "" {
		middleware.Fail(c, apperr.ValidationErr("Invalid eBilling payload", nil))
		return
	}
	status, _ := webhook.EbillingPaymentStatus(p.Status)
	raw := strings.ToLower(p.Status)
	if raw == "" {
		raw = "unknown"
	}
	eventID := p.TransactionID
	if eventID == "" && p.BillID != "" {
		eventID = p.BillID + ":" + raw
	}
	h.applyPayment(c, service.WebhookEvent{
		Provider:          domain.GatewayEbilling,
		EventID:           eventID,
		EventType:         "ebilling." + raw,
		OrderID:           p.Reference,
		ProviderReference: p.BillID,
		Status:            status,
		Payload:           payloadMap(body),
	})
}

type shapPayload struct {
	ShapReference     string `json:"shap_reference"`
	ExternalReference string `json:"external_reference"`
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
}

func (h *WebhookHandler) ShapPayout(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := webhook.VerifyToken(c.GetHeader("X-Webhook-Token"), h.secrets.ShapToken); err != nil {
		middleware.Fail(c, apperr.AuthErr("Invalid webhook token"))
		return
	}
	var p shapPayload
	if err := json.Unmarshal(body, &p); err != nil {
		middleware.Fail(c, apperr.ValidationErr("Missing SHAP payload", nil))
		return
	}
	if p.ExternalReference == "" {
		h.log.Warn("shap payout callback without external_reference", zap.String("shap_reference", p.ShapReference))
		accepted(c)
		return
	}
	status, _ := webhook.PayoutStatus("", p.Status)
	eventID := p.TransactionID
	if eventID == "" && p.ShapReference != "" {
		eventID = p.ShapReference + ":" + strings.ToLower(p.Status)
	}
	h.applyPayout(c, service.PayoutCallback{
		Provider:          domain.GatewayShap,
		EventID:           eventID,
		EventType:         "shap.payout." + strings.ToLower(p.Status),
		ExternalReference: p.ExternalReference,
		ProviderReference: p.ShapReference,
		Status:            status,
		Payload:           payloadMap(body),
	})
}

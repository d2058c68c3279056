package webhook

import (
	"strings"

	"boohpay/internal/domain"
)

var stripeStatuses = map[string]domain.PaymentStatus{
	"succeeded":               domain.PaymentSucceeded,
	"processing":              domain.PaymentAuthorized,
	"requires_capture":        domain.PaymentAuthorized,
	"requires_payment_method": domain.PaymentFailed,
	"canceled":                domain.PaymentFailed,
	"requires_action":         domain.PaymentFailed,
}

// StripePaymentStatus maps a payment_intent event. The event type wins over the intent status.
func StripePaymentStatus(eventType, status string) (domain.PaymentStatus, bool) {
	if eventType == "payment_intent.payment_failed" {
		return domain.PaymentFailed, true
	}
	s, ok := stripeStatuses[norm(status)]
	return s, ok
}

var monerooEvents = map[string]domain.PaymentStatus{
	"payment.success":   domain.PaymentSucceeded,
	"payment.failed":    domain.PaymentFailed,
	"payment.cancelled": domain.PaymentFailed,
	"payment.initiated": domain.PaymentPending,
}

var monerooStatuses = map[string]domain.PaymentStatus{
	"success":    domain.PaymentSucceeded,
	"succeeded":  domain.PaymentSucceeded,
	"pending":    domain.PaymentPending,
	"processing": domain.PaymentPending,
	"failed":     domain.PaymentFailed,
	"error":      domain.PaymentFailed,
	"declined":   domain.PaymentFailed,
}

func MonerooPaymentStatus(eventType, status string) (domain.PaymentStatus, bool) {
	if s, ok := monerooEvents[norm(eventType)]; ok {
		return s, true
	}
	s, ok := monerooStatuses[norm(status)]
	return s, ok
}

var ebillingStatuses = map[string]domain.PaymentStatus{
	"success":    domain.PaymentSucceeded,
	"succeeded":  domain.PaymentSucceeded,
	"paid":       domain.PaymentSucceeded,
	"pending":    domain.PaymentPending,
	"processing": domain.PaymentPending,
	"failed":     domain.PaymentFailed,
	"error":      domain.PaymentFailed,
	"declined":   domain.PaymentFailed,
	"expired":    domain.PaymentFailed,
}

func EbillingPaymentStatus(status string) (domain.PaymentStatus, bool) {
	s, ok := ebillingStatuses[norm(status)]
	return s, ok
}

var payoutEvents = map[string]domain.PayoutStatus{
	"payout.success":   domain.PayoutSucceeded,
	"payout.failed":    domain.PayoutFailed,
	"payout.initiated": domain.PayoutPending,
}

var payoutStates = map[string]domain.PayoutStatus{
	"success":    domain.PayoutSucceeded,
	"successful": domain.PayoutSucceeded,
	"pending":    domain.PayoutProcessing,
	"processing": domain.PayoutProcessing,
	"failed":     domain.PayoutFailed,
	"error":      domain.PayoutFailed,
}

// PayoutStatus maps a SHAP or Moneroo payout callback.
func PayoutStatus(eventType, state string) (domain.PayoutStatus, bool) {
	if s, ok := payoutEvents[norm(eventType)]; ok {
		return s, true
	}
	s, ok := payoutStates[norm(state)]
	return s, ok
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package payment

import (
	"context"

	"boohpay/internal/domain"
)

type Customer struct {
	Email string
	Phone string
}

type PaymentRequest struct {
	PaymentID     string
	MerchantID    string
	OrderID       string
	AmountMinor   int64
	Currency      string
	CountryCode   string
	PaymentMethod string
	Customer      Customer
	ReturnURL     string
	Metadata      map[string]any
	IsTestMode    bool
}

type PaymentResult struct {
	ProviderReference string
	Status            domain.PaymentStatus
	Checkout          map[string]any
	Metadata          map[string]any
}

type RefundRequest struct {
	RefundID          string
	PaymentID         string
	MerchantID        string
	ProviderReference string
	AmountMinor       int64
	Currency          string
	Reason            string
	Metadata          map[string]any
}

type RefundResult struct {
	ProviderReference string
	Status            domain.RefundStatus
	Metadata          map[string]any
}

type PayoutRequest struct {
	PayoutID          string
	MerchantID        string
	AmountMinor       int64
	Currency          string
	PaymentSystem     string
	PayoutType        string
	MSISDN            string
	ExternalReference string
	Metadata          map[string]any
	IsTestMode        bool
}

// PayoutResult carries the provider's view of a payout. An empty Status means the provider did not say.
type PayoutResult struct {
	ProviderReference string
	Status            domain.PayoutStatus
	Metadata          map[string]any
}

type PaymentProvider interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}

type RefundProvider interface {
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type PayoutProvider interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

// PayoutStatusChecker is implemented by payout providers that can report the state of an earlier payout.
type PayoutStatusChecker interface {
	GetPayoutStatus(ctx context.Context, merchantID, providerReference string) (*PayoutResult, error)
}

// externalReference is the reference a provider sees for a payout; it doubles as the idempotency reference.
func (r PayoutRequest) externalReference() string {
	if r.ExternalReference != "" {
		return r.ExternalReference
	}
	return r.PayoutID
}

// MergeMetadata copies each source over dst in order and returns dst.
func MergeMetadata(dst map[string]any, srcs ...map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for _, src := range srcs {
		for k, v := range src {
			dst[k] = v
		}
	}
	return dst
}

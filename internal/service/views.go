package service

import (
	"time"

	"boohpay/internal/models"
)

type EventView struct {
	Type            string         `json:"type"`
	At              time.Time      `json:"at"`
	ProviderEventID string         `json:"providerEventId,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

type FeesView struct {
	PlatformFee   int64 `json:"platformFee"`
	AppCommission int64 `json:"appCommission"`
	TotalFees     int64 `json:"totalFees"`
}

type PaymentView struct {
	PaymentID         string         `json:"paymentId"`
	MerchantID        string         `json:"merchantId"`
	OrderID           string         `json:"orderId"`
	GatewayUsed       string         `json:"gatewayUsed"`
	Status            string         `json:"status"`
	Amount            int64          `json:"amount"`
	Currency          string         `json:"currency"`
	CountryCode       string         `json:"countryCode"`
	PaymentMethod     string         `json:"paymentMethod"`
	ProviderReference string         `json:"providerReference,omitempty"`
	Checkout          map[string]any `json:"checkout,omitempty"`
	Fees              FeesView       `json:"fees"`
	IsTestMode        bool           `json:"isTestMode"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Events            []EventView    `json:"events,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func NewPaymentView(p *models.Payment) *PaymentView {
	v := &PaymentView{
		PaymentID:         p.ID,
		MerchantID:        p.MerchantID,
		OrderID:           p.OrderID,
		GatewayUsed:       p.GatewayUsed,
		Status:            p.Status,
		Amount:            p.AmountMinor,
		Currency:          p.Currency,
		CountryCode:       p.CountryCode,
		PaymentMethod:     p.PaymentMethod,
		ProviderReference: p.ProviderReference,
		Checkout:          p.CheckoutPayload,
		Fees:              FeesView{PlatformFee: p.PlatformFee, AppCommission: p.AppCommission, TotalFees: p.TotalFees},
		IsTestMode:        p.IsTestMode,
		Metadata:          p.Metadata,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	for _, e := range p.Events {
		v.Events = append(v.Events, EventView{Type: e.Type, At: e.OccurredAt, ProviderEventID: e.ProviderEventID})
	}
	return v
}

type RefundView struct {
	RefundID          string         `json:"refundId"`
	PaymentID         string         `json:"paymentId"`
	MerchantID        string         `json:"merchantId"`
	AmountMinor       int64          `json:"amountMinor"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	Reason            string         `json:"reason,omitempty"`
	ProviderReference string         `json:"providerReference,omitempty"`
	FailureCode       string         `json:"failureCode,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Events            []EventView    `json:"events,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func NewRefundView(r *models.Refund) *RefundView {
	v := &RefundView{
		RefundID:          r.ID,
		PaymentID:         r.PaymentID,
		MerchantID:        r.MerchantID,
		AmountMinor:       r.AmountMinor,
		Currency:          r.Currency,
		Status:            r.Status,
		Reason:            r.Reason,
		ProviderReference: r.ProviderReference,
		FailureCode:       r.FailureCode,
		Metadata:          r.Metadata,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	for _, e := range r.Events {
		v.Events = append(v.Events, EventView{Type: e.Type, At: e.OccurredAt, Payload: e.Payload})
	}
	return v
}

type PayoutView struct {
	PayoutID          string         `json:"payoutId"`
	MerchantID        string         `json:"merchantId"`
	Provider          string         `json:"provider"`
	Status            string         `json:"status"`
	Amount            int64          `json:"amount"`
	Currency          string         `json:"currency"`
	PaymentSystem     string         `json:"paymentSystem"`
	PayoutType        string         `json:"payoutType"`
	MSISDN            string         `json:"msisdn"`
	ProviderReference *string        `json:"providerReference"`
	ExternalReference *string        `json:"externalReference"`
	IsTestMode        bool           `json:"isTestMode"`
	Metadata          map[string]any `json:"metadata"`
	Events            []EventView    `json:"events"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func NewPayoutView(p *models.Payout) *PayoutView {
	v := &PayoutView{
		PayoutID:          p.ID,
		MerchantID:        p.MerchantID,
		Provider:          p.Provider,
		Status:            p.Status,
		Amount:            p.AmountMinor,
		Currency:          p.Currency,
		PaymentSystem:     p.PaymentSystem,
		PayoutType:        p.PayoutType,
		MSISDN:            p.MSISDN,
		ExternalReference: p.ExternalReference,
		IsTestMode:        p.IsTestMode,
		Metadata:          p.Metadata,
		Events:            []EventView{},
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.ProviderReference != "" {
		ref := p.ProviderReference
		v.ProviderReference = &ref
	}
	for _, e := range p.Events {
		v.Events = append(v.Events, EventView{Type: e.Type, At: e.OccurredAt})
	}
	return v
}

type Paged[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

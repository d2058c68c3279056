package payment

import (
	"context"
	"strings"

	"boohpay/internal/domain"
)

// SandboxProvider is a deterministic provider for test-mode traffic and local development.
// Amounts ending in 99 fail, amounts ending in 00 succeed immediately, anything else stays pending.
type SandboxProvider struct{}

func (SandboxProvider) CreatePayment(_ context.Context, req PaymentRequest) (*PaymentResult, error) {
	status := domain.PaymentPending
	switch req.AmountMinor % 100 {
	case 0:
		status = domain.PaymentSucceeded
	case 99:
		status = domain.PaymentFailed
	}
	ref := "sbx_pay_" + req.PaymentID
	return &PaymentResult{
		ProviderReference: ref,
		Status:            status,
		Checkout: map[string]any{
			"type":         domain.CheckoutInfo,
			"instructions": "Sandbox payment, no funds move.",
		},
		Metadata: map[string]any{"provider": "sandbox"},
	}, nil
}

func (SandboxProvider) CreateRefund(_ context.Context, req RefundRequest) (*RefundResult, error) {
	return &RefundResult{
		ProviderReference: "sbx_re_" + req.RefundID,
		Status:            domain.RefundSucceeded,
		Metadata:          map[string]any{"provider": "sandbox"},
	}, nil
}

func (SandboxProvider) CreatePayout(_ context.Context, req PayoutRequest) (*PayoutResult, error) {
	status := domain.PayoutSucceeded
	if req.AmountMinor%100 == 99 {
		status = domain.PayoutFailed
	}
	return &PayoutResult{
		ProviderReference: "sbx_po_" + req.PayoutID,
		Status:            status,
		Metadata:          map[string]any{"provider": "sandbox"},
	}, nil
}

func (SandboxProvider) GetPayoutStatus(_ context.Context, _ string, ref string) (*PayoutResult, error) {
	if !strings.HasPrefix(ref, "sbx_po_") {
		return &PayoutResult{ProviderReference: ref}, nil
	}
	return &PayoutResult{ProviderReference: ref, Status: domain.PayoutSucceeded}, nil
}

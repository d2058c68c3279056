package gateway

import (
	"errors"
	"fmt"

	"boohpay/internal/domain"
	"boohpay/pkg/payment"
)

// ErrUnsupported is returned when a gateway has no adapter for the requested capability.
var ErrUnsupported = errors.New("gateway does not support this operation")

// Registry maps gateway ids to adapters. It is filled once at startup and read-only afterwards.
type Registry struct {
	payments map[domain.Gateway]payment.PaymentProvider
	refunds  map[domain.Gateway]payment.RefundProvider
	payouts  map[domain.Gateway]payment.PayoutProvider
	sandbox  domain.Gateway
}

func NewRegistry() *Registry {
	return &Registry{
		payments: map[domain.Gateway]payment.PaymentProvider{},
		refunds:  map[domain.Gateway]payment.RefundProvider{},
		payouts:  map[domain.Gateway]payment.PayoutProvider{},
	}
}

// Register adds every capability the adapter implements.
func (r *Registry) Register(id domain.Gateway, adapter any) *Registry {
	if p, ok := adapter.(payment.PaymentProvider); ok {
		r.payments[id] = p
	}
	if p, ok := adapter.(payment.RefundProvider); ok {
		r.refunds[id] = p
	}
	if p, ok := adapter.(payment.PayoutProvider); ok {
		r.payouts[id] = p
	}
	return r
}

// UseSandbox routes test-mode traffic to the adapter registered under id.
func (r *Registry) UseSandbox(id domain.Gateway) *Registry {
	r.sandbox = id
	return r
}

// Resolve returns the gateway that actually serves a request: the sandbox for test mode, else id.
func (r *Registry) Resolve(id domain.Gateway, testMode bool) domain.Gateway {
	if testMode && r.sandbox != "" {
		return r.sandbox
	}
	return id
}

func (r *Registry) Payment(id domain.Gateway) (payment.PaymentProvider, error) {
	if p, ok := r.payments[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%s payments: %w", id, ErrUnsupported)
}

func (r *Registry) Refund(id domain.Gateway) (payment.RefundProvider, error) {
	if p, ok := r.refunds[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%s refunds: %w", id, ErrUnsupported)
}

func (r *Registry) Payout(id domain.Gateway) (payment.PayoutProvider, error) {
	if p, ok := r.payouts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%s payouts: %w", id, ErrUnsupported)
}

// PayoutStatus returns the status checker for id, if its payout adapter has one.
func (r *Registry) PayoutStatus(id domain.Gateway) (payment.PayoutStatusChecker, bool) {
	p, ok := r.payouts[id]
	if !ok {
		return nil, false
	}
	c, ok := p.(payment.PayoutStatusChecker)
	return c, ok
}

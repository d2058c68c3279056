package service

import (
	"errors"
	"fmt"

	"boohpay/internal/apperr"
	"boohpay/internal/gateway"
	"boohpay/internal/repository"
	"boohpay/pkg/payment"
)

// providerError qualifies an adapter failure for API clients without leaking provider details.
func providerError(provider string, err error) error {
	var re *payment.RequestError
	if errors.As(err, &re) {
		return &apperr.AppError{Kind: apperr.Validation, PublicMsg: re.Msg, Err: err}
	}
	if errors.Is(err, gateway.ErrUnsupported) {
		return &apperr.AppError{Kind: apperr.Validation, PublicMsg: fmt.Sprintf("%s does not support this operation", provider), Err: err}
	}
	if payment.IsClientError(err) {
		return &apperr.AppError{Kind: apperr.Validation, PublicMsg: fmt.Sprintf("Payment provider error: %s rejected the request", provider), Err: err}
	}
	return apperr.ProviderErr(provider, err)
}

func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundErr(what + " not found")
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrMissingSignature = errors.New("webhook signature missing")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrBadToken         = errors.New("webhook token mismatch")
)

// VerifyHMAC checks a hex HMAC-SHA256 of body. An empty secret disables the check.
func VerifyHMAC(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	signature = strings.TrimSpace(strings.TrimPrefix(signature, "sha256="))
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// SignHMAC returns the hex HMAC-SHA256 of body.
func SignHMAC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyToken compares a shared webhook token in constant time. An empty expected token disables the check.
func VerifyToken(got, expected string) error {
	if expected == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return ErrBadToken
	}
	return nil
}

// StripeEvent verifies the stripe-signature header and decodes the event.
func StripeEvent(body []byte, header, secret string) (stripe.Event, error) {
	if header == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	return stripewebhook.ConstructEventWithOptions(body, header, secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

package webhook

import (
	"fmt"
	"testing"
	"time"

	"boohpay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

func TestStripeEventTypeWins(t *testing.T) {
	s, ok := StripePaymentStatus("payment_intent.payment_failed", "succeeded")
	require.True(t, ok)
	assert.Equal(t, domain.PaymentFailed, s)

	s, ok = StripePaymentStatus("payment_intent.amount_capturable_updated", "requires_capture")
	require.True(t, ok)
	assert.Equal(t, domain.PaymentAuthorized, s)

	_, ok = StripePaymentStatus("payment_intent.created", "unknown")
	assert.False(t, ok)
}

func TestMonerooAndEbillingTables(t *testing.T) {
	cases := []struct {
		event, status string
		want          domain.PaymentStatus
	}{
		{"payment.success", "", domain.PaymentSucceeded},
		{"payment.cancelled", "success", domain.PaymentFailed},
		{"payment.initiated", "", domain.PaymentPending},
		{"", "declined", domain.PaymentFailed},
		{"", "Processing", domain.PaymentPending},
	}
	for _, tc := range cases {
		got, ok := MonerooPaymentStatus(tc.event, tc.status)
		require.True(t, ok, tc)
		assert.Equal(t, tc.want, got)
	}

	got, ok := EbillingPaymentStatus("PAID")
	require.True(t, ok)
	assert.Equal(t, domain.PaymentSucceeded, got)
	got, _ = EbillingPaymentStatus("expired")
	assert.Equal(t, domain.PaymentFailed, got)
}

func TestPayoutStatus(t *testing.T) {
	got, _ := PayoutStatus("payout.success", "failed")
	assert.Equal(t, domain.PayoutSucceeded, got)
	got, _ = PayoutStatus("", "successful")
	assert.Equal(t, domain.PayoutSucceeded, got)
	got, _ = PayoutStatus("", "pending")
	assert.Equal(t, domain.PayoutProcessing, got)
	_, ok := PayoutStatus("", "weird")
	assert.False(t, ok)
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"event":"payment.success"}`)
	sig := SignHMAC(body, "whsec")

	assert.NoError(t, VerifyHMAC(body, sig, "whsec"))
	assert.NoError(t, VerifyHMAC(body, "", ""))
	assert.ErrorIs(t, VerifyHMAC(body, "", "whsec"), ErrMissingSignature)
	assert.ErrorIs(t, VerifyHMAC(body, sig, "other"), ErrBadSignature)
	assert.ErrorIs(t, VerifyHMAC(body, "zz", "whsec"), ErrBadSignature)
}

func TestVerifyToken(t *testing.T) {
	assert.NoError(t, VerifyToken("tok", "tok"))
	assert.NoError(t, VerifyToken("", ""))
	assert.ErrorIs(t, VerifyToken("bad", "tok"), ErrBadToken)
}

func TestStripeEventSignature(t *testing.T) {
	body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded"}}}`)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	ev, err := StripeEvent(signed.Payload, signed.Header, "whsec_test")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)

	_, err = StripeEvent(body, fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()), "whsec_test")
	assert.Error(t, err)
	_, err = StripeEvent(body, "", "whsec_test")
	assert.ErrorIs(t, err, ErrMissingSignature)
}

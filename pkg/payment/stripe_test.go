package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"boohpay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStripeCreatePaymentConvertsCFA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1524", r.PostForm.Get("amount"))
		assert.Equal(t, "eur", r.PostForm.Get("currency"))
		assert.Equal(t, "pay-1", r.PostForm.Get("metadata[boohpay_payment_id]"))
		assert.Equal(t, "ORD-1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "boohpay_pi_pay-1", r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","client_secret":"pi_1_secret"}`))
	}))
	defer srv.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test_x", PublishableKey: "pk_test_x", APIURL: srv.URL}, nil, noRetry(), zap.NewNop())
	res, err := p.CreatePayment(context.Background(), PaymentRequest{PaymentID: "pay-1", OrderID: "ORD-1", AmountMinor: 10000, Currency: "XOF"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", res.ProviderReference)
	assert.Equal(t, domain.PaymentPending, res.Status)
	assert.Equal(t, "pi_1_secret", res.Checkout["clientSecret"])
	assert.Equal(t, "pk_test_x", res.Checkout["publishableKey"])
}

func TestStripePayoutNeedsConnectedAccount(t *testing.T) {
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test_x"}, nil, noRetry(), zap.NewNop())
	_, err := p.CreatePayout(context.Background(), PayoutRequest{PayoutID: "po"})
	require.Error(t, err)
	assert.True(t, IsClientError(err))
}

func TestStripeStatusMaps(t *testing.T) {
	assert.Equal(t, domain.PaymentSucceeded, StripeIntentStatus("succeeded"))
	assert.Equal(t, domain.PaymentAuthorized, StripeIntentStatus("requires_capture"))
	assert.Equal(t, domain.PaymentPending, StripeIntentStatus("requires_action"))
	assert.Equal(t, domain.RefundSucceeded, StripeRefundStatus("succeeded"))
	assert.Equal(t, domain.RefundProcessing, StripeRefundStatus("pending"))
	assert.Equal(t, domain.RefundFailed, StripeRefundStatus("canceled"))
}

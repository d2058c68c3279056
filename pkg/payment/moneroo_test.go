package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"boohpay/internal/domain"
	"boohpay/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCreds map[string]Credentials

func (s staticCreds) Credentials(_ context.Context, merchantID, provider string) (Credentials, error) {
	return s[merchantID+"/"+provider], nil
}

func noRetry() retry.Options { return retry.Options{MaxRetries: -1} }

func TestMonerooCreatePayment(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_live_abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"ok","data":{"id":"py_123","checkout_url":"https://checkout.moneroo.io/py_123"}}`))
	}))
	defer srv.Close()

	p := NewMonerooProvider(MonerooConfig{SecretKey: "sk_live_abc", BaseURL: srv.URL, ReturnURL: "https://shop/cb?payment_id={payment_id}"}, nil, srv.Client(), noRetry(), zap.NewNop())
	res, err := p.CreatePayment(context.Background(), PaymentRequest{
		PaymentID:     "pay-1",
		MerchantID:    "m1",
		OrderID:       "ORD-1",
		AmountMinor:   2550,
		Currency:      "ghs",
		CountryCode:   "GH",
		PaymentMethod: domain.MethodMobileMoney,
		Customer:      Customer{Email: "a@b.c", Phone: "+233 20-123"},
		Metadata:      map[string]any{"customerName": "Ama Owusu Mensah", "cart": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "py_123", res.ProviderReference)
	assert.Equal(t, domain.PaymentPending, res.Status)
	assert.Equal(t, domain.CheckoutRedirect, res.Checkout["type"])

	assert.Equal(t, 25.5, got["amount"])
	assert.Equal(t, "GHS", got["currency"])
	assert.Equal(t, "https://shop/cb", got["return_url"])
	assert.Equal(t, []any{"mtn_gh", "tigo_gh", "vodafone_gh"}, got["methods"])
	assert.Nil(t, got["restrict_country_code"])
	customer := got["customer"].(map[string]any)
	assert.Equal(t, "Ama", customer["first_name"])
	assert.Equal(t, "Owusu Mensah", customer["last_name"])
	assert.Equal(t, "23320123", customer["phone"])
	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "pay-1", meta["boohpay_payment_id"])
	assert.Equal(t, "3", meta["cart"])
}

func TestMonerooSandboxKeyHasNoRestriction(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"id":"py_1","checkout_url":"https://x"}}`))
	}))
	defer srv.Close()

	creds := staticCreds{"m1/MONEROO": {"secretKey": "sk_test_123"}}
	p := NewMonerooProvider(MonerooConfig{BaseURL: srv.URL}, creds, srv.Client(), noRetry(), zap.NewNop())
	_, err := p.CreatePayment(context.Background(), PaymentRequest{MerchantID: "m1", OrderID: "o", AmountMinor: 5000, Currency: "XOF", CountryCode: "SN", PaymentMethod: domain.MethodCard})
	require.NoError(t, err)
	assert.Nil(t, got["methods"])
	assert.Nil(t, got["restrict_country_code"])
	assert.Equal(t, float64(5000), got["amount"])
}

func TestMonerooErrorsCarryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid currency"}`))
	}))
	defer srv.Close()

	p := NewMonerooProvider(MonerooConfig{SecretKey: "sk", BaseURL: srv.URL}, nil, srv.Client(), noRetry(), zap.NewNop())
	_, err := p.CreatePayment(context.Background(), PaymentRequest{OrderID: "o", AmountMinor: 100, Currency: "EUR"})
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 422, he.StatusCode)
}

func TestMonerooNotConfigured(t *testing.T) {
	p := NewMonerooProvider(MonerooConfig{}, nil, nil, noRetry(), zap.NewNop())
	_, err := p.CreatePayment(context.Background(), PaymentRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMonerooRefundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"rf_1","status":"completed"}}`))
	}))
	defer srv.Close()

	p := NewMonerooProvider(MonerooConfig{SecretKey: "sk", BaseURL: srv.URL}, nil, srv.Client(), noRetry(), zap.NewNop())
	res, err := p.CreateRefund(context.Background(), RefundRequest{ProviderReference: "py_1", AmountMinor: 1000, Currency: "XOF"})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundSucceeded, res.Status)
	assert.Equal(t, domain.RefundPending, monerooRefundStatus("pending"))
	assert.Equal(t, domain.RefundProcessing, monerooRefundStatus("queued"))
}

func TestMonerooPayout(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payouts/initialize":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"data":{"id":"po_9"}}`))
		case "/v1/payouts/po_9/verify":
			_, _ = w.Write([]byte(`{"data":{"id":"po_9","status":"success"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewMonerooProvider(MonerooConfig{SecretKey: "sk", BaseURL: srv.URL}, nil, srv.Client(), noRetry(), zap.NewNop())
	res, err := p.CreatePayout(context.Background(), PayoutRequest{
		PayoutID: "po-1", AmountMinor: 10000, Currency: "XOF", PaymentSystem: "Orange Money",
		PayoutType: "WITHDRAWAL", MSISDN: "0771234567",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutPending, res.Status)
	assert.Equal(t, "orange_ci", got["method"])
	assert.Equal(t, "Payout withdrawal - po-1", got["description"])
	assert.Equal(t, map[string]any{"msisdn": "771234567"}, got["recipient"])
	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "po-1", meta["boohpay_payout_id"])
	assert.Equal(t, "po-1", meta["external_reference"])

	st, err := p.GetPayoutStatus(context.Background(), "", "po_9")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutSucceeded, st.Status)
}

func TestMapPayoutState(t *testing.T) {
	assert.Equal(t, domain.PayoutSucceeded, MapPayoutState("Successful"))
	assert.Equal(t, domain.PayoutProcessing, MapPayoutState("pending"))
	assert.Equal(t, domain.PayoutFailed, MapPayoutState("error"))
	assert.Equal(t, domain.PayoutStatus(""), MapPayoutState("weird"))
}

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"boohpay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEbillingCreatePayment(t *testing.T) {
	var bill, push map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "key", pass)
		switch r.URL.Path {
		case "/api/e_bills":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&bill))
			_, _ = w.Write([]byte(`{"e_bill":{"bill_id":"5550001"}}`))
		case "/api/e_bills/5550001/ussd_push":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&push))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewEbillingProvider(EbillingConfig{Username: "shop", SharedKey: "key", BaseURL: srv.URL + "/api/"}, nil, srv.Client(), noRetry(), zap.NewNop())
	res, err := p.CreatePayment(context.Background(), PaymentRequest{
		OrderID: "ORD-7", AmountMinor: 5000, Currency: "XAF", CountryCode: "GA",
		PaymentMethod: domain.MethodMobileMoney, Customer: Customer{Phone: "+241 074 39 85 24"},
	})
	require.NoError(t, err)
	assert.Equal(t, "5550001", res.ProviderReference)
	assert.Equal(t, domain.PaymentPending, res.Status)
	assert.Equal(t, domain.CheckoutInfo, res.Checkout["type"])
	assert.Equal(t, "airtelmoney", res.Checkout["paymentSystem"])

	assert.Equal(t, "5000", bill["amount"])
	assert.Equal(t, "074398524", bill["payer_msisdn"])
	assert.Equal(t, "ORD-7", bill["external_reference"])
	assert.Equal(t, "60", bill["expiry_period"])
	assert.Equal(t, "airtelmoney", push["payment_system_name"])
}

func TestEbillingRequiresPhone(t *testing.T) {
	p := NewEbillingProvider(EbillingConfig{Username: "u", SharedKey: "k"}, nil, nil, noRetry(), zap.NewNop())
	_, err := p.CreatePayment(context.Background(), PaymentRequest{OrderID: "o", AmountMinor: 1, Currency: "XAF"})
	require.Error(t, err)
	assert.True(t, IsClientError(err))
}

package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"boohpay/config"
	"boohpay/internal/app"
	"boohpay/internal/domain"
	"boohpay/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	app    *app.App
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.Scheduler.Enabled = false
	cfg.Ebilling.WebhookToken = "eb-token"
	a, err := app.New(context.Background(), cfg, testutil.NewDB(t), zap.NewNop())
	require.NoError(t, err)
	return &testServer{app: a, engine: Setup(a)}
}

func (s *testServer) merchant(t *testing.T, role string) string {
	t.Helper()
	_, key, err := s.app.Auth.CreateMerchant(context.Background(), "Shop "+role, "", role)
	require.NoError(t, err)
	return key
}

func (s *testServer) do(method, path, apiKey, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

const sandboxPayment = `{"orderId":"ord-1","amount":10000,"currency":"XAF","countryCode":"GA","paymentMethod":"MOBILE_MONEY","metadata":{"isTestMode":true}}`

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentsRequireAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/api/v1/payments", "", sandboxPayment, map[string]string{"Idempotency-Key": "k1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePaymentRequiresIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	key := s.merchant(t, domain.RoleMerchant)
	w := s.do(http.MethodPost, "/api/v1/payments", key, sandboxPayment, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "request_id")
}

func TestCreatePaymentReplaysAndRejectsChangedBody(t *testing.T) {
	s := newTestServer(t)
	key := s.merchant(t, domain.RoleMerchant)
	hdr := map[string]string{"Idempotency-Key": "order-1"}

	first := s.do(http.MethodPost, "/api/v1/payments", key, sandboxPayment, hdr)
	require.Equal(t, http.StatusAccepted, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	var view struct {
		PaymentID string `json:"paymentId"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &view))
	assert.Equal(t, string(domain.PaymentSucceeded), view.Status)

	replay := s.do(http.MethodPost, "/api/v1/payments", key, sandboxPayment, hdr)
	require.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	changed := strings.Replace(sandboxPayment, "10000", "20000", 1)
	conflict := s.do(http.MethodPost, "/api/v1/payments", key, changed, hdr)
	assert.Equal(t, http.StatusConflict, conflict.Code)

	refund := s.do(http.MethodPost, "/api/v1/payments/"+view.PaymentID+"/refund", key, "", nil)
	assert.Equal(t, http.StatusCreated, refund.Code, refund.Body.String())
}

func TestPaymentsAreMerchantScoped(t *testing.T) {
	s := newTestServer(t)
	owner := s.merchant(t, domain.RoleMerchant)
	other := s.merchant(t, domain.RoleMerchant)

	w := s.do(http.MethodPost, "/api/v1/payments", owner, sandboxPayment, map[string]string{"Idempotency-Key": "k"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var view struct {
		PaymentID string `json:"paymentId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/payments/"+view.PaymentID, owner, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/payments/"+view.PaymentID, other, "", nil).Code)
}

func TestQueueAdminOnly(t *testing.T) {
	s := newTestServer(t)
	merchant := s.merchant(t, domain.RoleMerchant)
	admin := s.merchant(t, domain.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/payouts/queue/stats", merchant, "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/payouts/queue/stats", admin, "", nil).Code)
}

func TestEbillingWebhookToken(t *testing.T) {
	s := newTestServer(t)
	body := `{"bill_id":"b-1","status":"paid","reference":"unknown-order","transaction_id":"tx-1"}`

	bad := s.do(http.MethodPost, "/api/v1/webhooks/ebilling", "", body, map[string]string{"X-Webhook-Token": "nope"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	ok := s.do(http.MethodPost, "/api/v1/webhooks/ebilling", "", body, map[string]string{"X-Webhook-Token": "eb-token"})
	assert.Equal(t, http.StatusAccepted, ok.Code)
	assert.JSONEq(t, `{"received":true}`, ok.Body.String())
}

func TestReconciliationRunForMerchant(t *testing.T) {
	s := newTestServer(t)
	key := s.merchant(t, domain.RoleMerchant)
	w := s.do(http.MethodPost, "/api/v1/reconciliation/run?startDate=2026-10-01&endDate=2026-10-02", key, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, strings.HasPrefix(res.RunID, "recon-"))

	hist := s.do(http.MethodGet, "/api/v1/reconciliation/history", key, "", nil)
	assert.Equal(t, http.StatusOK, hist.Code)
}

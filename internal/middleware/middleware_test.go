package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuth struct{}

func (stubAuth) AuthenticateAPIKey(_ context.Context, key string) (*service.Principal, error) {
	if key == "bp_good" {
		return &service.Principal{MerchantID: "m1", Role: domain.RoleMerchant}, nil
	}
	return nil, apperr.AuthErr("Invalid API key")
}

func (stubAuth) AuthenticateToken(token string) (*service.Principal, error) {
	if token == "admin-token" {
		return &service.Principal{MerchantID: "ops", Role: domain.RoleAdmin}, nil
	}
	return nil, apperr.AuthErr("Invalid or expired token")
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(zap.NewNop()))
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuthRequired(t *testing.T) {
	r := newEngine()
	api := r.Group("/", AuthRequired(stubAuth{}))
	api.GET("/me", func(c *gin.Context) { c.JSON(200, gin.H{"merchant": GetMerchantID(c)}) })
	api.GET("/admin", AdminOnly(), func(c *gin.Context) { c.Status(204) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-API-Key", "bp_good")
	w, body := do(r, req)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "m1", body["merchant"])

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-API-Key", "bp_good")
	w, body = do(r, req)
	assert.Equal(t, 403, w.Code)
	assert.NotEmpty(t, body["request_id"])

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w, _ = do(r, req)
	assert.Equal(t, 204, w.Code)

	for _, h := range []string{"", "Token abc", "Bearer nope"} {
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		w, body = do(r, req)
		assert.Equal(t, 401, w.Code, h)
		assert.NotEmpty(t, body["error"])
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	r := newEngine()
	r.GET("/boom", func(c *gin.Context) { Fail(c, errors.New("dsn password=secret")) })
	r.GET("/conflict", func(c *gin.Context) { Fail(c, apperr.ConflictErr("Payout cannot be cancelled")) })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w, body := do(r, req)
	assert.Equal(t, 500, w.Code)
	assert.Equal(t, "An unexpected error occurred.", body["error"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	w, body = do(r, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, 409, w.Code)
	assert.Equal(t, "Payout cannot be cancelled", body["error"])
}

func TestFromBindError(t *testing.T) {
	type input struct {
		Amount   int64  `json:"amount" binding:"required,gt=0"`
		Currency string `json:"currency" binding:"required,len=3"`
		Method   string `json:"paymentMethod" binding:"omitempty,oneof=CARD MOBILE_MONEY"`
	}
	r := newEngine()
	r.POST("/", func(c *gin.Context) {
		var in input
		if err := c.ShouldBindJSON(&in); err != nil {
			Fail(c, FromBindError(err))
			return
		}
		c.Status(204)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"currency":"EURO","paymentMethod":"CASH"}`))
	req.Header.Set("Content-Type", "application/json")
	w, body := do(r, req)
	require.Equal(t, 400, w.Code)
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "is required", fields["amount"])
	assert.Equal(t, "must have length 3", fields["currency"])
	assert.Equal(t, "must be one of: CARD MOBILE_MONEY", fields["method"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	w, body = do(r, req)
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestRateLimit(t *testing.T) {
	r := newEngine()
	r.Use(RateLimit(NewInMemoryRateLimiter(2, time.Minute)))
	r.GET("/", func(c *gin.Context) { c.Status(204) })

	for i := 0; i < 2; i++ {
		w, _ := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, 204, w.Code)
	}
	w, _ := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimiterWindowResets(t *testing.T) {
	l := NewInMemoryRateLimiter(1, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, left := l.Allow("merchant:m1")
	assert.True(t, ok)
	assert.Equal(t, 0, left)
	ok, _ = l.Allow("merchant:m1")
	assert.False(t, ok)
	ok, _ = l.Allow("merchant:m2")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Allow("merchant:m1")
	assert.True(t, ok)
}

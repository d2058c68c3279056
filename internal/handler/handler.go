package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"boohpay/internal/idempotency"
	"boohpay/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	contentTypeJSON      = "application/json; charset=utf-8"
)

// bindJSON binds and validates the body, keeping the raw bytes on the context for fingerprinting.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindBodyWith(dst, binding.JSON); err != nil {
		middleware.Fail(c, middleware.FromBindError(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		middleware.Fail(c, middleware.FromBindError(err))
		return false
	}
	return true
}

func rawBody(c *gin.Context) []byte {
	if v, ok := c.Get(gin.BodyBytesKey); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return n
}

// idempotentResponder serves the first response stored under an Idempotency-Key for every replay.
type idempotentResponder struct {
	store *idempotency.Store
	log   *zap.Logger
}

// serve replays a stored response for key, or runs create and stores its response. An empty key skips storage.
func (r idempotentResponder) serve(c *gin.Context, key string, status int, create func() (any, error)) {
	merchantID := middleware.GetMerchantID(c)
	body := rawBody(c)
	if key != "" {
		rec, err := r.store.Check(c.Request.Context(), key, merchantID, body)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		if rec != nil {
			c.Header(headerReplayed, "true")
			c.Data(rec.StatusCode, contentTypeJSON, rec.ResponseBody)
			return
		}
	}
	out, err := create()
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	resp, err := json.Marshal(out)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	if key != "" {
		if err := r.store.Store(c.Request.Context(), key, merchantID, body, status, resp); err != nil {
			r.log.Warn("store idempotent response failed",
				zap.String("merchant_id", merchantID), zap.String("key", key), zap.Error(err))
		}
	}
	c.Data(status, contentTypeJSON, resp)
}

func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
}

// Health reports liveness and database reachability.
func Health(ping func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

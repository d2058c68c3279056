package handler

import (
	"net/http"

	"boohpay/internal/idempotency"
	"boohpay/internal/middleware"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	payouts *service.PayoutService
	idem    idempotentResponder
}

func NewPayoutHandler(payouts *service.PayoutService, store *idempotency.Store, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{
		payouts: payouts,
		idem:    idempotentResponder{store: store, log: log.Named("payouts_http")},
	}
}

// Create queues a payout. Idempotency-Key is optional.
func (h *PayoutHandler) Create(c *gin.Context) {
	var in service.CreatePayoutInput
	if !bindJSON(c, &in) {
		return
	}
	merchantID := middleware.GetMerchantID(c)
	h.idem.serve(c, idempotencyKey(c), http.StatusAccepted, func() (any, error) {
		return h.payouts.CreatePayout(c.Request.Context(), merchantID, in)
	})
}

func (h *PayoutHandler) Get(c *gin.Context) {
	view, err := h.payouts.GetPayout(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *PayoutHandler) List(c *gin.Context) {
	var in service.ListPayoutsInput
	if !bindQuery(c, &in) {
		return
	}
	page, err := h.payouts.ListPayouts(c.Request.Context(), middleware.GetMerchantID(c), in)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PayoutHandler) Job(c *gin.Context) {
	st, err := h.payouts.JobStatus(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *PayoutHandler) Cancel(c *gin.Context) {
	view, err := h.payouts.CancelPayout(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *PayoutHandler) Retry(c *gin.Context) {
	st, err := h.payouts.RetryPayout(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

func (h *PayoutHandler) QueueStats(c *gin.Context) {
	stats, err := h.payouts.QueueStats(c.Request.Context())
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *PayoutHandler) PauseQueue(c *gin.Context) {
	if err := h.payouts.PauseQueue(c.Request.Context()); err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *PayoutHandler) ResumeQueue(c *gin.Context) {
	if err := h.payouts.ResumeQueue(c.Request.Context()); err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

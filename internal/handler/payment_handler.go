package handler

import (
	"net/http"

	"boohpay/internal/apperr"
	"boohpay/internal/idempotency"
	"boohpay/internal/middleware"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments *service.PaymentService
	refunds  *service.RefundService
	idem     idempotentResponder
}

func NewPaymentHandler(payments *service.PaymentService, refunds *service.RefundService, store *idempotency.Store, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		refunds:  refunds,
		idem:     idempotentResponder{store: store, log: log.Named("payments_http")},
	}
}

// Create starts a payment. The Idempotency-Key header is required.
func (h *PaymentHandler) Create(c *gin.Context) {
	key := idempotencyKey(c)
	if key == "" {
		middleware.Fail(c, apperr.ValidationErr("Idempotency-Key header is required",
			map[string]string{headerIdempotencyKey: "is required"}))
		return
	}
	var in service.CreatePaymentInput
	if !bindJSON(c, &in) {
		return
	}
	merchantID := middleware.GetMerchantID(c)
	h.idem.serve(c, key, http.StatusAccepted, func() (any, error) {
		return h.payments.CreatePayment(c.Request.Context(), merchantID, in)
	})
}

func (h *PaymentHandler) Get(c *gin.Context) {
	view, err := h.payments.GetPayment(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *PaymentHandler) List(c *gin.Context) {
	var in service.ListPaymentsInput
	if !bindQuery(c, &in) {
		return
	}
	page, err := h.payments.ListPayments(c.Request.Context(), middleware.GetMerchantID(c), in)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Refund refunds all or part of a settled payment. An empty body refunds the remaining amount.
func (h *PaymentHandler) Refund(c *gin.Context) {
	var in service.CreateRefundInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}
	view, err := h.refunds.CreateRefund(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"), in)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *PaymentHandler) Refunds(c *gin.Context) {
	list, err := h.refunds.ListRefunds(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

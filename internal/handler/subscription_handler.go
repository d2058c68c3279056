package handler

import (
	"context"
	"net/http"

	"boohpay/internal/middleware"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subs *service.SubscriptionService
}

func NewSubscriptionHandler(subs *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

func (h *SubscriptionHandler) Create(c *gin.Context) {
	var in service.CreateSubscriptionInput
	if !bindJSON(c, &in) {
		return
	}
	view, err := h.subs.Create(c.Request.Context(), middleware.GetMerchantID(c), in)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *SubscriptionHandler) Get(c *gin.Context) {
	view, err := h.subs.Get(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SubscriptionHandler) List(c *gin.Context) {
	var in service.ListSubscriptionsInput
	if !bindQuery(c, &in) {
		return
	}
	page, err := h.subs.List(c.Request.Context(), middleware.GetMerchantID(c), in)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) { h.transition(c, h.subs.Cancel) }
func (h *SubscriptionHandler) Pause(c *gin.Context)  { h.transition(c, h.subs.Pause) }
func (h *SubscriptionHandler) Resume(c *gin.Context) { h.transition(c, h.subs.Resume) }

func (h *SubscriptionHandler) transition(c *gin.Context, op func(ctx context.Context, merchantID, id string) (*service.SubscriptionView, error)) {
	view, err := op(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Dunning lists the retry attempts for a subscription.
func (h *SubscriptionHandler) Dunning(c *gin.Context) {
	list, err := h.subs.Attempts(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

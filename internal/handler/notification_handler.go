package handler

import (
	"net/http"
	"strconv"

	"boohpay/internal/apperr"
	"boohpay/internal/middleware"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	list, err := h.svc.List(c.Request.Context(), middleware.GetMerchantID(c), limit, offset)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		middleware.Fail(c, apperr.ValidationErr("Invalid notification id", nil))
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), middleware.GetMerchantID(c), uint(id)); err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

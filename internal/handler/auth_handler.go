package handler

import (
	"net/http"

	"boohpay/internal/middleware"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Token exchanges the caller's credentials for a JWT used by dashboards and the event stream.
func (h *AuthHandler) Token(c *gin.Context) {
	token, err := h.svc.TokenFor(c.Request.Context(), middleware.GetMerchantID(c))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": token, "tokenType": "Bearer"})
}

type deviceTokenRequest struct {
	Token string `json:"token" binding:"required,max=512"`
}

func (h *AuthHandler) RegisterDevice(c *gin.Context) {
	var req deviceTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.RegisterDevice(c.Request.Context(), middleware.GetMerchantID(c), req.Token); err != nil {
		middleware.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createMerchantRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Email string `json:"email" binding:"omitempty,email"`
	Role  string `json:"role" binding:"omitempty,oneof=MERCHANT ADMIN"`
}

// CreateMerchant registers a merchant. The API key is returned once and never stored in clear.
func (h *AuthHandler) CreateMerchant(c *gin.Context) {
	var req createMerchantRequest
	if !bindJSON(c, &req) {
		return
	}
	m, key, err := h.svc.CreateMerchant(c.Request.Context(), req.Name, req.Email, req.Role)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"merchant": m, "apiKey": key})
}

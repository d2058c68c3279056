package middleware

import (
	"context"
	"strings"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ctxMerchantID = "merchant_id"
	ctxRole       = "role"
)

// Authenticator resolves the merchant behind a credential.
type Authenticator interface {
	AuthenticateAPIKey(ctx context.Context, key string) (*service.Principal, error)
	AuthenticateToken(token string) (*service.Principal, error)
}

// AuthRequired accepts either an X-API-Key header or a Bearer JWT and sets the merchant id and role.
func AuthRequired(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			p   *service.Principal
			err error
		)
		if key := c.GetHeader("X-API-Key"); key != "" {
			p, err = a.AuthenticateAPIKey(c.Request.Context(), key)
		} else {
			header := c.GetHeader("Authorization")
			if header == "" {
				Fail(c, apperr.AuthErr("Missing credentials"))
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				Fail(c, apperr.AuthErr("Invalid authorization format"))
				return
			}
			p, err = a.AuthenticateToken(parts[1])
		}
		if err != nil {
			Fail(c, err)
			return
		}
		c.Set(ctxMerchantID, p.MerchantID)
		c.Set(ctxRole, p.Role)
		c.Next()
	}
}

// RequireRole checks that the authenticated merchant has one of the allowed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			Fail(c, apperr.AuthErr("Unauthorized"))
			return
		}
		for _, a := range allowed {
			if role == a {
				c.Next()
				return
			}
		}
		Fail(c, apperr.ForbiddenErr("Forbidden"))
	}
}

func AdminOnly() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}

// GetMerchantID returns the authenticated merchant id (must be used after AuthRequired).
func GetMerchantID(c *gin.Context) string {
	return c.GetString(ctxMerchantID)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == domain.RoleAdmin
}

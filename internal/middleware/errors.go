package middleware

import (
	"errors"
	"strings"

	"boohpay/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Fail records err on the context and aborts. ErrorHandler renders it.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler renders the last error as {"error", "request_id", "fields"}.
// Internal errors are logged and replaced by a generic message.
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status := apperr.HTTPStatus(err)
		body := gin.H{
			"error":      apperr.PublicMessage(err),
			"request_id": GetRequestID(c),
		}
		if ae, ok := apperr.As(err); ok && len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
		if status >= 500 {
			log.Error("request failed",
				zap.String("request_id", GetRequestID(c)),
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
		c.JSON(status, body)
	}
}

// FromBindError turns a gin binding error into a validation error with one message per field.
func FromBindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.ValidationErr("Invalid request body", nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonName(fe.Namespace())] = fieldMessage(fe)
	}
	return apperr.ValidationErr("Validation failed", fields)
}

// jsonName drops the struct name and lower-cases the first letter of each path segment.
func jsonName(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	}
	return "is invalid"
}

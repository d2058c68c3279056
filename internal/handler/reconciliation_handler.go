package handler

import (
	"errors"
	"net/http"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/middleware"
	"boohpay/internal/reconciliation"
	"boohpay/internal/repository"

	"github.com/gin-gonic/gin"
)

type ReconciliationHandler struct {
	engine *reconciliation.Engine
}

func NewReconciliationHandler(engine *reconciliation.Engine) *ReconciliationHandler {
	return &ReconciliationHandler{engine: engine}
}

// scopedMerchant lets admins act on any merchant and pins everyone else to their own.
func scopedMerchant(c *gin.Context) (string, error) {
	own := middleware.GetMerchantID(c)
	requested := c.Query("merchantId")
	if requested == "" || requested == own {
		return own, nil
	}
	if !middleware.IsAdmin(c) {
		return "", apperr.ForbiddenErr("Cannot reconcile another merchant")
	}
	return requested, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

// Run reconciles a merchant over startDate..endDate, or the last 24 hours when both are omitted.
// A plain endDate (YYYY-MM-DD) includes that whole day.
func (h *ReconciliationHandler) Run(c *gin.Context) {
	merchantID, err := scopedMerchant(c)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	startRaw, endRaw := c.Query("startDate"), c.Query("endDate")
	if startRaw == "" && endRaw == "" {
		res, err := h.engine.Trigger(c.Request.Context(), merchantID, 0)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	loc := h.engine.Location()
	end := time.Now()
	if endRaw != "" {
		t, err := parseDate(endRaw, loc)
		if err != nil {
			middleware.Fail(c, apperr.ValidationErr("Invalid endDate", map[string]string{"endDate": "must be YYYY-MM-DD or RFC3339"}))
			return
		}
		end = t
		if len(endRaw) == len("2006-01-02") {
			end = t.AddDate(0, 0, 1)
		}
	}
	start := end.Add(-24 * time.Hour)
	if startRaw != "" {
		t, err := parseDate(startRaw, loc)
		if err != nil {
			middleware.Fail(c, apperr.ValidationErr("Invalid startDate", map[string]string{"startDate": "must be YYYY-MM-DD or RFC3339"}))
			return
		}
		start = t
	}
	if !start.Before(end) {
		middleware.Fail(c, apperr.ValidationErr("startDate must be before endDate", nil))
		return
	}
	res, err := h.engine.ReconcileMerchant(c.Request.Context(), merchantID, repository.Window{Start: start.UTC(), End: end.UTC()})
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) History(c *gin.Context) {
	merchantID, err := scopedMerchant(c)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	list, err := h.engine.History(c.Request.Context(), merchantID, queryInt(c, "limit", 30))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// RunDaily reconciles every merchant active yesterday. Admin only.
func (h *ReconciliationHandler) RunDaily(c *gin.Context) {
	sum, err := h.engine.RunDaily(c.Request.Context())
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *ReconciliationHandler) Summary(c *gin.Context) {
	sum, err := h.engine.Summary(c.Request.Context(), c.Param("date"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.Fail(c, apperr.NotFoundErr("No reconciliation summary for that date"))
			return
		}
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

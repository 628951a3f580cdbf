package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carwash/internal/models"
	"carwash/internal/services"
)

// более устойчиво к типам (int / int64 / float64 / string)
func getIntFromCtx(c *gin.Context, key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getUserAndRole(c *gin.Context) (userID int, role string) {
	if id, ok := getIntFromCtx(c, "user_id"); ok {
		userID = id
	}
	role = c.GetString("role")
	return
}

func auditMeta(c *gin.Context) models.AuditMeta {
	return models.AuditMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

// writeError maps service errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, services.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrDuplicateProfile):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrTooManyAttempts):
		status, msg = http.StatusBadRequest, "too many attempts, please resend"
	case errors.Is(err, services.ErrExpiredOrInvalidCode):
		status, msg = http.StatusBadRequest, "invalid or expired code"
	case errors.Is(err, services.ErrResendThrottled):
		status, msg = http.StatusTooManyRequests, "too many requests, try later"
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrConcurrentUpdate):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrQueueFull):
		status, msg = http.StatusServiceUnavailable, err.Error()
	}
	if status >= 500 {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}

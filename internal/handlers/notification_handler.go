package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash/internal/services"
)

type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(s *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: s}
}

// GET /notifications?unread=true&limit=&offset=
func (h *NotificationHandler) List(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	ctx := c.Request.Context()
	items, err := h.Service.List(ctx, userID, c.Query("unread") == "true", queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.Service.UnreadCount(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "unread": unread})
}

// POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, _ := getUserAndRole(c)
	if err := h.Service.MarkRead(c.Request.Context(), id, userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

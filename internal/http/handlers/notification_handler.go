package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	limit, offset := common.Pagination(c)
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))

	items, err := h.notifications.List(c.Request.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkAllRead POST /notifications/read
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	if err := h.notifications.MarkAllRead(c.Request.Context(), userID); err != nil {
		common.Fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UnreadCount GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	count, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

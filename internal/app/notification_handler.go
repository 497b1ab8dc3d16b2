package app

import (
	"net/http"
	"strconv"

	"chatsync/internal/service"
	"chatsync/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifService service.NotificationService
}

func NewNotificationHandler(notifService service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifService: notifService}
}

// GetNotifications lists the caller's notifications, newest first
// GET /api/v1/notifications?limit=20&offset=0
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, err := h.notifService.GetNotificationsByUserID(userID.(string), limit, offset)
	if err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to load notifications", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Notifications retrieved", gin.H{"notifications": notifications})
}

// GetUnreadCount reports how many notifications are unread
// GET /api/v1/notifications/unread/count
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	count, err := h.notifService.GetUnreadCount(userID.(string))
	if err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to count notifications", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Unread count retrieved", gin.H{"count": count})
}

// MarkAsRead marks one notification as read
// POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.notifService.MarkAsRead(c.Param("id"), userID.(string)); err != nil {
		util.NotFound(c, "Notification not found")
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Notification marked read", nil)
}

// MarkAllAsRead marks every notification as read
// POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.notifService.MarkAllAsRead(userID.(string)); err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to mark notifications read", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "All notifications marked read", nil)
}

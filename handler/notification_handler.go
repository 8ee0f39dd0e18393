package handler

import (
	"strconv"

	"barzo_social/store"
	"barzo_social/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	store store.DataStore
}

func NewNotificationHandler(st store.DataStore) *NotificationHandler {
	return &NotificationHandler{store: st}
}

// GetNotifications 获取通知列表
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	// 分页参数，limit 为 0 时使用默认值
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unreadOnly := c.DefaultQuery("unread_only", "false") == "true"

	notifications, err := svc.GetNotifications(c.Request.Context(), limit, offset, unreadOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"notifications": notifications})
}

// MarkNotificationRead 标记通知为已读
func (h *NotificationHandler) MarkNotificationRead(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "invalid notification id")
		return
	}

	notification, err := svc.MarkNotificationRead(c.Request.Context(), notificationID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"notification": notification})
}

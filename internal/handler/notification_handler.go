package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// NotificationHandler exposes notification and subscription endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type subscriptionRequest struct {
	EventType string  `json:"event_type" binding:"required"`
	SessionID *string `json:"session_id"`
}

type announceRequest struct {
	Title     string `json:"title" binding:"required"`
	Message   string `json:"message" binding:"required"`
	ActionURL string `json:"action_url"`
}

// List godoc
// @Summary The caller's notifications including broadcasts
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notifications.List(c.Request.Context(), claims.UserID, unreadOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// UnreadCount godoc
// @Summary Number of unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := claimsFromContext(c)
	count, err := h.notifications.UnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread_count": count}, nil)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Description Idempotent; marking an already-read notification keeps the original read_at.
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	notification, err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notification, nil)
}

// Subscribe godoc
// @Summary Subscribe to an event type
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body subscriptionRequest true "Event type and optional session scope"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/subscriptions [post]
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	observer, err := h.notifications.Subscribe(c.Request.Context(), claims.UserID, models.NotificationType(req.EventType), req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, observer, nil)
}

// Unsubscribe godoc
// @Summary Unsubscribe from an event type
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body subscriptionRequest true "Event type and optional session scope"
// @Success 204
// @Security BearerAuth
// @Router /notifications/subscriptions [delete]
func (h *NotificationHandler) Unsubscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if err := h.notifications.Unsubscribe(c.Request.Context(), claims.UserID, models.NotificationType(req.EventType), req.SessionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Announce godoc
// @Summary Broadcast an announcement to all users
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body announceRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/announcements [post]
func (h *NotificationHandler) Announce(c *gin.Context) {
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	notification, err := h.notifications.Announce(c.Request.Context(), req.Title, req.Message, req.ActionURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notification)
}

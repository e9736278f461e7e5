package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func (h *Handler) GetNotifications(c *gin.Context) {
	snap := h.state.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"notifications": nonNil(snap.Notifications),
		"unread":        snap.Unread(),
		"alert_error":   snap.AlertError,
	})
}

// MarkNotificationsRead flags every notification as read.
func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	if err := h.state.MarkAllNotificationsRead(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("failed to mark notifications read")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// DismissNotification removes one notification from the list.
func (h *Handler) DismissNotification(c *gin.Context) {
	found, err := h.state.DismissNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to dismiss notification")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

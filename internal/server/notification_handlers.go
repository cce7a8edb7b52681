package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type markReadPayload struct {
	IDs []string `json:"ids" binding:"max=100,dive,required,max=36"`
}

func (h *httpHandler) handleNotifications(c *gin.Context) {
	notifications, err := h.social.Notifications(c.Request.Context(), viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *httpHandler) handleMarkNotificationsRead(c *gin.Context) {
	var payload markReadPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondInvalidRequest(c)
			return
		}
	}
	updated, err := h.social.MarkNotificationsRead(c.Request.Context(), viewerID(c), payload.IDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// handleNotificationStream pushes the caller's new notifications as Server-Sent Events until the client
// disconnects.
func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, viewerID(c))
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventReady, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, message.Notification)
			c.Writer.Flush()
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC().Unix()})
			c.Writer.Flush()
		}
	}
}

package httpapi

import (
	"io"
	"net/http"
	"time"

	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/rbac"
	"leadpool-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultHeartbeat = 25 * time.Second

// Stream pushes lead change events as server-sent events. Team members only
// see pool changes and changes to leads they hold or just lost; admins see
// everything. A "ready" event is sent once the subscription is live.
func (h Handlers) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	admin := rbac.IsAdmin(role)

	events, err := h.Feed.Subscribe(ctx)
	if err != nil {
		logger.From(ctx).Error("change stream subscribe failed", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "change stream unavailable"})
		return
	}

	every := h.StreamHeartbeat
	if every <= 0 {
		every = defaultHeartbeat
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"user_id": uid})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			if admin || e.VisibleTo(uid) {
				c.SSEvent("change", e)
			}
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.UTC().Format(time.RFC3339))
			return true
		}
	})
}

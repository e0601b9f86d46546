package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelnotes/reelnotes-backend/internal/auth"
	"github.com/reelnotes/reelnotes-backend/internal/events"
)

// streamEvents pushes the project's state over Server-Sent Events: the
// current state first, then every update, until the project is deleted or
// the client goes away.
func (h *Handler) streamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("id")
	userID := auth.UserID(c)

	// subscribe before the initial read so no update falls in between
	sub, err := h.bus.Subscribe(ctx, events.TopicProjectUpdated, events.TopicProjectDeleted)
	if err != nil {
		writeError(c, "stream_project", err)
		return
	}

	p, err := h.svc.Get(ctx, userID, projectID)
	if err != nil {
		writeError(c, "stream_project", err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeEvent(c, flusher, "initial", gin.H{"project": p})

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case e, ok := <-sub:
			if !ok {
				return
			}
			if e.ProjectID != projectID || e.OwnerUserID != userID {
				continue
			}
			if e.Topic == events.TopicProjectDeleted {
				writeEvent(c, flusher, "deleted", gin.H{"event": "deleted", "project_id": projectID})
				return
			}
			writeEvent(c, flusher, "update", gin.H{"project": e.Project})
		}
	}
}

func writeEvent(c *gin.Context, flusher http.Flusher, name string, payload gin.H) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}

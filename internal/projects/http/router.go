package http

import "github.com/gin-gonic/gin"

// Register attaches project routes to the given router group. The group
// must already require a session.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.upload)
	rg.GET("/:id", h.get)
	rg.PATCH("/:id", h.rename)
	rg.DELETE("/:id", h.delete)
	rg.POST("/:id/transcription/retry", h.retry)
	rg.GET("/:id/events", h.streamEvents)

	rg.GET("/:id/notes", h.listNotes)
	rg.POST("/:id/notes", h.addNote)
	rg.DELETE("/:id/notes/:note_id", h.deleteNote)
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	"github.com/reelnotes/reelnotes-backend/internal/auth"
)

// listNotes accepts an optional ?kind= filter.
func (h *Handler) listNotes(c *gin.Context) {
	var kind annodomain.Kind
	if raw := c.Query("kind"); raw != "" {
		k, err := annodomain.ParseKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		kind = k
	}

	notes, err := h.svc.ListNotes(c.Request.Context(), auth.UserID(c), c.Param("id"), kind)
	if err != nil {
		writeError(c, "list_notes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "notes": notes})
}

func (h *Handler) addNote(c *gin.Context) {
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	in := annodomain.NewNote{
		ProjectID:              c.Param("id"),
		Kind:                   annodomain.Kind(req.Kind),
		Content:                req.Content,
		TranscriptSegmentIndex: req.TranscriptSegmentIndex,
		HighlightStart:         req.HighlightStart,
		HighlightEnd:           req.HighlightEnd,
		Color:                  req.Color,
		Quote:                  req.Quote,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	n, err := h.svc.AddNote(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		writeError(c, "add_note", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "note": n})
}

// deleteNote succeeds for ids that are already gone.
func (h *Handler) deleteNote(c *gin.Context) {
	if err := h.svc.DeleteNote(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("note_id")); err != nil {
		writeError(c, "delete_note", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

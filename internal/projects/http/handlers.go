package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	"github.com/reelnotes/reelnotes-backend/internal/auth"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	"github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/projects/service"
)

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, "list_projects", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

// upload takes the multipart "file" field and answers as soon as the
// project exists; the transcript follows on the events stream.
func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "failed to read upload"})
		return
	}

	p, err := h.svc.Upload(c.Request.Context(), auth.UserID(c), service.UploadInput{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		writeError(c, "upload_project", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, "get_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) rename(c *gin.Context) {
	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	p, err := h.svc.Rename(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, "rename_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

// delete needs ?confirm=true; deletion cannot be undone.
func (h *Handler) delete(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	if err := h.svc.Delete(c.Request.Context(), auth.UserID(c), c.Param("id"), confirmed); err != nil {
		writeError(c, "delete_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) retry(c *gin.Context) {
	p, err := h.svc.Retry(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, "retry_transcription", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "project": p})
}

func writeError(c *gin.Context, operation string, err error) {
	var verr *annodomain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"ok": false, "error": verr.Error(), "field": verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
	case errors.Is(err, domain.ErrBlankName):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"ok": false, "error": err.Error(), "field": "name"})
	case errors.Is(err, domain.ErrEmptyUpload):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, domain.ErrConfirmationRequired),
		errors.Is(err, domain.ErrAlreadyTranscribing),
		errors.Is(err, domain.ErrMediaUnavailable):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
	default:
		logger.New(c.Request.Context()).LogError(operation, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
	}
}

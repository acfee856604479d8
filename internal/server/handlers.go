package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/angel2rider/tgcloud/internal/engine"
)

// Handlers binds an Engine to gin handler functions. Upload and Download
// stage the multipart body (or response body) through a temp file, since
// the engine's pipeline operates on paths, not streams — it needs to seek
// back into the source for retries (spec.md §4.8).
type Handlers struct {
	Engine  Engine
	TempDir string
}

// NewHandlers wires h.TempDir to os.TempDir() if left blank.
func NewHandlers(e Engine, tempDir string) *Handlers {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Handlers{Engine: e, TempDir: tempDir}
}

func (h *Handlers) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	// The engine's upload path doubles as the stored original_name, so
	// staging happens in a request-scoped directory (concurrent uploads of
	// the same filename can't collide) and the file is renamed to the bare
	// client filename right after the chunk fan-out commits — otherwise a
	// later GET/DELETE/PATCH by that filename would miss.
	stageDir, err := os.MkdirTemp(h.TempDir, "tgcloud-upload-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(stageDir)

	tmpPath := filepath.Join(stageDir, fileHeader.Filename)
	if err := c.SaveUploadedFile(fileHeader, tmpPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.Engine.UploadFile(ctx, tmpPath, nil); err != nil {
		statusErr(c, err)
		return
	}

	if err := h.Engine.RenameFile(ctx, tmpPath, fileHeader.Filename); err != nil {
		_ = h.Engine.DeleteFile(ctx, tmpPath)
		statusErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "name": fileHeader.Filename})
}

func (h *Handlers) Download(c *gin.Context) {
	name := c.Param("name")

	tmpPath := filepath.Join(h.TempDir, fmt.Sprintf("download-%s", filepath.Base(name)))
	if err := h.Engine.DownloadFile(c.Request.Context(), name, tmpPath, nil); err != nil {
		statusErr(c, err)
		return
	}
	defer os.Remove(tmpPath)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(name)))
	c.File(tmpPath)
}

func (h *Handlers) Delete(c *gin.Context) {
	name := c.Param("name")
	if err := h.Engine.DeleteFile(c.Request.Context(), name); err != nil {
		statusErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handlers) List(c *gin.Context) {
	prefix := c.Query("prefix")
	files, err := h.Engine.ListFiles(c.Request.Context(), prefix)
	if err != nil {
		statusErr(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Handlers) Rename(c *gin.Context) {
	oldName := c.Param("name")
	var req struct {
		NewName string `json:"new_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Engine.RenameFile(c.Request.Context(), oldName, req.NewName); err != nil {
		statusErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed"})
}

// statusErr maps the engine's typed error taxonomy onto HTTP status codes.
func statusErr(c *gin.Context, err error) {
	var notFound *engine.FileNotFoundError
	var exists *engine.AlreadyExistsError
	var integrity *engine.IntegrityFailedError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &exists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &integrity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

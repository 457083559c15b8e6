package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/annotation"
	"image-annotator/internal/blobstore"
	"image-annotator/internal/transport/http/middleware"
	"image-annotator/internal/transport/http/response"
)

// FilesHandler streams stored objects for signed URLs issued by the local
// and memory backends.
type FilesHandler struct {
	store blobstore.Store
}

func NewFilesHandler(store blobstore.Store) *FilesHandler {
	return &FilesHandler{store: store}
}

func (h *FilesHandler) Serve(c *gin.Context) {
	name := c.GetString(middleware.ContextObjectNameKey)
	data, err := h.store.Get(c.Request.Context(), name)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, blobstore.ErrNotFound), errors.Is(err, blobstore.ErrInvalidName):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "file not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeStorageReadFailed, "failed to read file")
		}
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, annotation.ContentTypeFor(name), data)
}

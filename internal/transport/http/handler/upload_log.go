package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/app"
	"image-annotator/internal/transport/http/response"
)

type UploadLogHandler struct {
	uploadLog *app.UploadLogService
}

func NewUploadLogHandler(uploadLog *app.UploadLogService) *UploadLogHandler {
	return &UploadLogHandler{uploadLog: uploadLog}
}

func (h *UploadLogHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.uploadLog.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, app.ErrUploadLogDisabled) {
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list upload events failed")
		return
	}
	response.OK(c, gin.H{"events": events})
}

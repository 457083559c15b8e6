package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"image-annotator/internal/bootstrap"
	"image-annotator/internal/transport/http/middleware"
)

type HealthHandler struct {
	app *bootstrap.App
}

// probeFailedMessage is reported for a failed dependency; the cause is only
// logged since it can carry hosts or credentials.
const probeFailedMessage = "unavailable"

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	dependencies := make(gin.H, len(h.app.Checks))
	for _, check := range h.app.Checks {
		status := dependencyStatus{OK: true}
		if err := check.Probe(ctx); err != nil {
			h.app.Logger.Warn("health check failed",
				zap.String("dependency", check.Name),
				zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
				zap.Error(err))
			status = dependencyStatus{OK: false, Message: probeFailedMessage}
			allOK = false
		}
		dependencies[check.Name] = status
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": dependencies,
	})
}

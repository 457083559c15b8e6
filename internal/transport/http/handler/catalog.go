package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/app"
	"image-annotator/internal/transport/http/response"
)

type CatalogHandler struct {
	catalog *app.CatalogService
	appName string
}

func NewCatalogHandler(catalog *app.CatalogService, appName string) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, appName: appName}
}

// Index renders the gallery and the upload form.
func (h *CatalogHandler) Index(c *gin.Context) {
	names, err := h.catalog.ListImages(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"AppName": h.appName,
		"Images":  names,
	})
}

// View renders one image with its caption. The name comes from the path or
// the filename query parameter.
func (h *CatalogHandler) View(c *gin.Context) {
	view, err := h.catalog.ViewImage(c.Request.Context(), requestedName(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "view.html", gin.H{
		"AppName": h.appName,
		"View":    view,
	})
}

func (h *CatalogHandler) List(c *gin.Context) {
	names, err := h.catalog.ListImages(c.Request.Context())
	if err != nil {
		reply := replyFor(err)
		response.Error(c, reply.status, reply.code, reply.message)
		return
	}
	response.OK(c, gin.H{"images": names})
}

func (h *CatalogHandler) Get(c *gin.Context) {
	view, err := h.catalog.ViewImage(c.Request.Context(), c.Param("filename"))
	if err != nil {
		reply := replyFor(err)
		response.Error(c, reply.status, reply.code, reply.message)
		return
	}
	response.OK(c, view)
}

func requestedName(c *gin.Context) string {
	if name := c.Param("filename"); name != "" {
		return name
	}
	return c.Query("filename")
}

func renderError(c *gin.Context, err error) {
	_ = c.Error(err)
	reply := replyFor(err)
	c.HTML(reply.status, "error.html", gin.H{
		"Status":  reply.status,
		"Title":   http.StatusText(reply.status),
		"Message": reply.message,
	})
}

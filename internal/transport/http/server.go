package http

import (
	"embed"
	"html/template"
	"net/url"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/bootstrap"
	"image-annotator/internal/metrics"
	"image-annotator/internal/transport/http/handler"
	"image-annotator/internal/transport/http/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.New("pages").
	Funcs(template.FuncMap{"pathEscape": url.PathEscape}).
	ParseFS(templateFS, "templates/*.html"))

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(app.Logger.Named("http")),
		middleware.Metrics(app.HTTPMetrics),
		gin.Recovery(),
	)
	router.SetHTMLTemplate(pageTemplates)
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	uploadHandler := handler.NewUploadHandler(app.Uploads, app.Config.Upload.MaxBytes)
	catalogHandler := handler.NewCatalogHandler(app.Catalog, app.Config.App.Name)
	filesHandler := handler.NewFilesHandler(app.Store)
	uploadLogHandler := handler.NewUploadLogHandler(app.UploadLog)

	router.GET("/", catalogHandler.Index)
	router.POST("/upload", uploadHandler.Form)
	router.GET("/view", catalogHandler.View)
	router.GET("/view/:filename", catalogHandler.View)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/files/:filename", middleware.RequireSignedURL(app.Signer), filesHandler.Serve)
	if app.Config.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/images", catalogHandler.List)
	v1.POST("/images", uploadHandler.Create)
	v1.GET("/images/:filename", catalogHandler.Get)
	v1.GET("/uploads", uploadLogHandler.List)

	return router
}

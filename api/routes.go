package api

import (
	"embed"
	"html/template"
	"net/http"

	"file_reducer/notebook"
	"file_reducer/pdf"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Config holds the settings the handlers need
type Config struct {
	MaxFileSize int64
	Notebook    notebook.Options
	PDF         pdf.Options
}

// NewRouter builds the gin engine with middleware, the web UI and the API routes.
func NewRouter(config *Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger), gin.Recovery())
	// Uploads are capped at this size in readUpload, so they never spill to temp files.
	r.MaxMultipartMemory = config.MaxFileSize + MultipartOverhead

	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	SetupRoutes(r, config, logger)
	return r
}

func SetupRoutes(r *gin.Engine, config *Config, logger *zap.Logger) {
	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{
			"title":       "File Size Reducer",
			"maxFileSize": config.MaxFileSize,
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "file_reducer",
		})
	})

	r.POST("/api/notebook/reduce", func(c *gin.Context) { HandleReduceNotebook(c, config, logger) })
	r.POST("/api/pdf/compress", func(c *gin.Context) { HandleCompressPDF(c, config, logger) })
}

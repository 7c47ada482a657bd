package handlers

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"newsletter-go/internal/logging"
)

//go:embed templates/index.html
var templatesFS embed.FS

const indexTemplate = "templates/index.html"

type PageHandler struct {
	pages  fs.FS
	logger *logging.ContextLogger
}

// NewPageHandler serves pages from pages, or from the embedded templates when nil.
func NewPageHandler(pages fs.FS, logger *logging.ContextLogger) *PageHandler {
	if pages == nil {
		pages = templatesFS
	}
	return &PageHandler{pages: pages, logger: logger}
}

func (h *PageHandler) Index(c *gin.Context) {
	body, err := fs.ReadFile(h.pages, indexTemplate)
	if err != nil {
		h.logger.ErrorWithTracing(c.Request.Context(), "Failed to read landing page", err, nil)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

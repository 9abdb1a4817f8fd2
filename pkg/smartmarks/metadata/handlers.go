package metadata

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
)

// Handler serves the metadata lookup endpoint
type Handler struct {
	fetcher *Fetcher
	log     logger.Logger
}

// NewHandler creates a new metadata handler
func NewHandler(fetcher *Fetcher, log logger.Logger) *Handler {
	return &Handler{fetcher: fetcher, log: log}
}

// FetchMeta returns the title and favicon of a page
// @Summary Fetch page metadata
// @Description Download a page and extract its title and favicon
// @Tags metadata
// @Produce json
// @Param url query string true "Page URL"
// @Success 200 {object} Meta
// @Failure 400 {object} map[string]string "No URL provided"
// @Failure 500 {object} map[string]string "Failed to fetch metadata"
// @Router /fetch-meta [get]
func (h *Handler) FetchMeta(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No URL provided"})
		return
	}

	meta, err := h.fetcher.Fetch(c.Request.Context(), rawURL)
	if err != nil {
		h.log.Warn("fetch metadata failed", logger.String("url", rawURL), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch metadata"})
		return
	}

	c.JSON(http.StatusOK, meta)
}

// RegisterRoutes registers the metadata route on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/fetch-meta", h.FetchMeta)
}

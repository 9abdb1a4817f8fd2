package importexport

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

// maxImportBytes caps the size of an uploaded bookmark file.
const maxImportBytes = 10 << 20

// Handler handles import/export requests
type Handler struct {
	store *store.Store
	log   logger.Logger
}

// NewHandler creates a new import/export handler
func NewHandler(s *store.Store, log logger.Logger) *Handler {
	return &Handler{store: s, log: log}
}

// ImportRequest is the JSON import body
type ImportRequest struct {
	Bookmarks []Entry `json:"bookmarks" binding:"required"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ExportBookmark represents a bookmark for export
type ExportBookmark struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Time  string `json:"time"`
}

// Import appends bookmarks from a JSON body or a Netscape HTML file.
// URLs already in the active list are skipped.
// @Summary Import bookmarks
// @Tags import-export
// @Accept json,html
// @Produce json
// @Param request body ImportRequest true "Bookmarks, or a Netscape bookmark file"
// @Success 200 {object} ImportResult
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /import [post]
func (h *Handler) Import(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	var entries []Entry
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req ImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries = req.Bookmarks
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read import file"})
			return
		}
		entries, err = ParseHTML(bytes.NewReader(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bookmark file"})
			return
		}
	}

	existing, err := h.store.List(ctx, userID, store.ListOptions{})
	if err != nil {
		h.log.Error("list before import failed", logger.Uint("owner_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookmarks"})
		return
	}
	seen := make(map[string]bool, len(existing))
	for _, b := range existing {
		seen[b.URL] = true
	}

	result := ImportResult{Errors: []string{}}
	for i, e := range entries {
		if seen[e.URL] {
			result.Skipped++
			continue
		}
		if _, err := h.store.Insert(ctx, userID, e.Title, e.URL); err != nil {
			result.Errors = append(result.Errors, "bookmark "+strconv.Itoa(i)+": "+err.Error())
			result.Skipped++
			continue
		}
		seen[e.URL] = true
		result.Imported++
	}

	h.log.Info("import finished",
		logger.Uint("owner_id", userID),
		logger.Int("imported", result.Imported),
		logger.Int("skipped", result.Skipped))
	c.JSON(http.StatusOK, result)
}

// Export writes the active list in stored order
// @Summary Export bookmarks
// @Tags import-export
// @Produce json,html
// @Param format query string false "json (default) or html"
// @Param download query bool false "Send as an attachment"
// @Success 200 {array} ExportBookmark
// @Security BearerAuth
// @Router /export [get]
func (h *Handler) Export(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "html" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format"})
		return
	}

	list, err := h.store.List(c.Request.Context(), userID, store.ListOptions{})
	if err != nil {
		h.log.Error("list for export failed", logger.Uint("owner_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookmarks"})
		return
	}

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=smartmarks-export."+format)
	}

	if format == "html" {
		var buf bytes.Buffer
		if err := WriteHTML(&buf, list); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export"})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
		return
	}

	out := make([]ExportBookmark, len(list))
	for i, b := range list {
		out[i] = ExportBookmark{URL: b.URL, Title: b.Title, Time: b.CreatedAt.UTC().Format(time.RFC3339)}
	}
	c.JSON(http.StatusOK, out)
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/import", h.Import)
	rg.GET("/export", h.Export)
}

package bookmarks

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/realtime"
	"github.com/mikepea/smartmarks/pkg/smartmarks/reorder"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

const defaultHeartbeat = 30 * time.Second

// Handler serves the dashboard and trash API
type Handler struct {
	store        *store.Store
	subscriber   realtime.Subscriber
	reorderLimit int
	heartbeat    time.Duration
	log          logger.Logger
}

// NewHandler creates a new bookmarks handler
func NewHandler(s *store.Store, subscriber realtime.Subscriber, reorderLimit int, log logger.Logger) *Handler {
	return &Handler{
		store:        s,
		subscriber:   subscriber,
		reorderLimit: reorderLimit,
		heartbeat:    defaultHeartbeat,
		log:          log,
	}
}

// CreateBookmarkRequest represents the request body for adding a bookmark
type CreateBookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url" binding:"required,url"`
}

// UpdateBookmarkRequest represents a partial edit
type UpdateBookmarkRequest struct {
	Title *string `json:"title"`
	URL   *string `json:"url" binding:"omitempty,url"`
}

// ReorderRequest moves the bookmark at Source to Destination. Sort and
// Query describe the view the indices were taken from.
type ReorderRequest struct {
	Source      *int   `json:"source" binding:"required"`
	Destination *int   `json:"destination" binding:"required"`
	Sort        string `json:"sort"`
	Query       string `json:"query"`
}

// List returns the caller's active bookmarks
// @Summary List bookmarks
// @Tags bookmarks
// @Produce json
// @Param q query string false "Case-insensitive search over title and url"
// @Param sort query string false "manual, newest, oldest, az or za"
// @Param match query string false "fuzzy to use fuzzy matching"
// @Success 200 {array} models.Bookmark
// @Security BearerAuth
// @Router /bookmarks [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	mode, err := ParseSort(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort mode"})
		return
	}

	list, err := h.store.List(c.Request.Context(), userID, store.ListOptions{})
	if err != nil {
		h.storeError(c, err, "Failed to fetch bookmarks")
		return
	}

	view := View{Query: c.Query("q"), Sort: mode, Fuzzy: c.Query("match") == "fuzzy"}
	c.JSON(http.StatusOK, view.Apply(list))
}

// Get returns a single bookmark
// @Summary Get bookmark
// @Tags bookmarks
// @Produce json
// @Param id path string true "Bookmark ID"
// @Success 200 {object} models.Bookmark
// @Failure 404 {object} map[string]string "Bookmark not found"
// @Security BearerAuth
// @Router /bookmarks/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	b, err := h.store.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Failed to fetch bookmark")
		return
	}
	c.JSON(http.StatusOK, b)
}

// Create adds a bookmark to the end of the list
// @Summary Add bookmark
// @Tags bookmarks
// @Accept json
// @Produce json
// @Param request body CreateBookmarkRequest true "Bookmark"
// @Success 201 {object} models.Bookmark
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /bookmarks [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.store.Insert(c.Request.Context(), userID, req.Title, req.URL)
	if err != nil {
		h.storeError(c, err, "Failed to add bookmark")
		return
	}
	c.JSON(http.StatusCreated, b)
}

// Update edits title and/or url
// @Summary Edit bookmark
// @Tags bookmarks
// @Accept json
// @Produce json
// @Param id path string true "Bookmark ID"
// @Param request body UpdateBookmarkRequest true "Fields to change"
// @Success 200 {object} models.Bookmark
// @Failure 404 {object} map[string]string "Bookmark not found"
// @Security BearerAuth
// @Router /bookmarks/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.store.Update(c.Request.Context(), userID, c.Param("id"), store.Fields{Title: req.Title, URL: req.URL})
	if err != nil {
		h.storeError(c, err, "Failed to update bookmark")
		return
	}
	c.JSON(http.StatusOK, b)
}

// Delete moves a bookmark to the trash
// @Summary Move to trash
// @Tags bookmarks
// @Produce json
// @Param id path string true "Bookmark ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Bookmark not found"
// @Security BearerAuth
// @Router /bookmarks/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	if err := h.store.SoftDelete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.storeError(c, err, "Failed to delete bookmark")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bookmark moved to trash"})
}

// Reorder moves one bookmark and rewrites every position
// @Summary Reorder bookmarks
// @Description Indices refer to the manual, unfiltered list. Filtered views are rejected.
// @Tags bookmarks
// @Accept json
// @Produce json
// @Param request body ReorderRequest true "Move"
// @Success 200 {array} models.Bookmark
// @Failure 400 {object} map[string]string "Index out of range"
// @Failure 409 {object} map[string]string "View is filtered or sorted"
// @Security BearerAuth
// @Router /bookmarks/reorder [post]
func (h *Handler) Reorder(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := ParseSort(req.Sort)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort mode"})
		return
	}
	if (View{Query: req.Query, Sort: mode}).Filtered() {
		c.JSON(http.StatusConflict, gin.H{"error": "Reordering requires manual sort and no search"})
		return
	}

	ctx := c.Request.Context()
	list, err := h.store.List(ctx, userID, store.ListOptions{})
	if err != nil {
		h.storeError(c, err, "Failed to fetch bookmarks")
		return
	}

	moved, err := reorder.Move(list, *req.Source, *req.Destination)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Index out of range"})
		return
	}

	ids := make([]string, len(moved))
	for i := range moved {
		ids[i] = moved[i].ID
		moved[i].Position = i
	}

	if err := reorder.Persist(ctx, h.store, userID, ids, h.reorderLimit); err != nil {
		h.log.Error("persist order failed", logger.Uint("owner_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save order"})
		return
	}

	c.JSON(http.StatusOK, moved)
}

// ListTrash returns the caller's deleted bookmarks, most recent first
// @Summary List trash
// @Tags trash
// @Produce json
// @Success 200 {array} models.Bookmark
// @Security BearerAuth
// @Router /trash [get]
func (h *Handler) ListTrash(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	list, err := h.store.List(c.Request.Context(), userID, store.ListOptions{Deleted: true})
	if err != nil {
		h.storeError(c, err, "Failed to fetch trash")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Restore moves a bookmark out of the trash to the end of the list
// @Summary Restore from trash
// @Tags trash
// @Produce json
// @Param id path string true "Bookmark ID"
// @Success 200 {object} models.Bookmark
// @Failure 404 {object} map[string]string "Bookmark not found"
// @Security BearerAuth
// @Router /trash/{id}/restore [post]
func (h *Handler) Restore(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	b, err := h.store.Restore(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Failed to restore bookmark")
		return
	}
	c.JSON(http.StatusOK, b)
}

// Purge deletes a trashed bookmark forever
// @Summary Delete forever
// @Tags trash
// @Produce json
// @Param id path string true "Bookmark ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Bookmark not found"
// @Failure 409 {object} map[string]string "Bookmark is not in the trash"
// @Security BearerAuth
// @Router /trash/{id} [delete]
func (h *Handler) Purge(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	if err := h.store.HardDelete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.storeError(c, err, "Failed to delete bookmark")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bookmark deleted forever"})
}

// storeError maps store failures onto responses. Anything unexpected is
// logged and reported as a 500 with msg.
func (h *Handler) storeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Bookmark not found"})
	case errors.Is(err, store.ErrNotInTrash):
		c.JSON(http.StatusConflict, gin.H{"error": "Bookmark is not in the trash"})
	case errors.Is(err, store.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL must be absolute"})
	default:
		h.log.Error(msg, logger.String("path", c.FullPath()), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// RegisterRoutes registers bookmark and trash routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bookmarks", h.List)
	rg.POST("/bookmarks", h.Create)
	rg.POST("/bookmarks/reorder", h.Reorder)
	rg.GET("/bookmarks/stream", h.Stream)
	rg.GET("/bookmarks/:id", h.Get)
	rg.PATCH("/bookmarks/:id", h.Update)
	rg.DELETE("/bookmarks/:id", h.Delete)

	rg.GET("/trash", h.ListTrash)
	rg.POST("/trash/:id/restore", h.Restore)
	rg.DELETE("/trash/:id", h.Purge)
}

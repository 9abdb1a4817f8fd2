package bookmarks

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/realtime"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

// SSE event names.
const (
	EventBookmarks = "bookmarks"
	EventError     = "error"
	EventPing      = "ping"
)

type snapshot struct {
	list []models.Bookmark
	err  error
}

// Stream pushes the active list as Server-Sent Events: once on connect,
// then after every change until the client goes away.
// @Summary Watch bookmarks
// @Tags bookmarks
// @Produce text/event-stream
// @Success 200 {array} models.Bookmark "event: bookmarks"
// @Security BearerAuth
// @Router /bookmarks/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	// Only the newest snapshot matters, so a slow client skips stale ones.
	updates := make(chan snapshot, 1)
	listener := realtime.New(h.subscriber, h.store, h.log)
	if err := listener.Attach(ctx, userID, func(list []models.Bookmark, err error) {
		offerLatest(updates, snapshot{list: list, err: err})
	}); err != nil {
		h.log.Error("subscribe to changes failed", logger.Uint("owner_id", userID), logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Change feed unavailable"})
		return
	}
	defer listener.Detach()

	// Subscribed before the first read so no change slips between them.
	initial, err := h.store.List(ctx, userID, store.ListOptions{})
	if err != nil {
		h.storeError(c, err, "Failed to fetch bookmarks")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.send(c, EventBookmarks, initial)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			h.send(c, EventPing, time.Now().Unix())
		case s := <-updates:
			if s.err != nil {
				h.send(c, EventError, gin.H{"error": "Failed to fetch bookmarks"})
				continue
			}
			h.send(c, EventBookmarks, s.list)
		}
	}
}

func (h *Handler) send(c *gin.Context, event string, data interface{}) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}

func offerLatest(ch chan snapshot, s snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

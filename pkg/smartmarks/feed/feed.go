// Package feed carries bookmark change notifications from the store to
// whoever is watching a user's list.
package feed

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Type is the kind of change that happened to a bookmark row.
type Type string

const (
	Insert Type = "INSERT"
	Update Type = "UPDATE"
	Delete Type = "DELETE"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("feed: broker closed")

// Event is a single change notification. Consumers treat it as a signal
// only and re-fetch the list.
type Event struct {
	Type       Type      `json:"type"`
	OwnerID    uint      `json:"owner_id"`
	BookmarkID string    `json:"bookmark_id"`
	At         time.Time `json:"at"`
}

// Publisher is the write side of the feed, used by the store.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription delivers events for one owner until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broker fans events out to subscribers of the same owner.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, owner uint) (Subscription, error)
	Close() error
}

// Channel is the pub/sub channel name for an owner's changes.
func Channel(owner uint) string {
	return "smartmarks:bookmarks:" + strconv.FormatUint(uint64(owner), 10)
}

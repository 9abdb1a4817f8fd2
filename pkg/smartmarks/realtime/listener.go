// Package realtime keeps a watcher's copy of a bookmark list current by
// re-fetching it whenever the feed reports a change.
package realtime

import (
	"context"
	"sync"

	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

// Subscriber opens a per-owner change subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, owner uint) (feed.Subscription, error)
}

// Lister reads the active list. store.Store implements it.
type Lister interface {
	List(ctx context.Context, owner uint, opts store.ListOptions) ([]models.Bookmark, error)
}

// SnapshotFunc receives the full active list after each change, or the
// error that prevented reading it.
type SnapshotFunc func(list []models.Bookmark, err error)

// Listener holds at most one subscription at a time.
type Listener struct {
	subscriber Subscriber
	lister     Lister
	log        logger.Logger

	// attachMu serializes Attach and Detach; mu guards the fields.
	attachMu sync.Mutex
	mu       sync.Mutex
	sub    feed.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a detached listener.
func New(subscriber Subscriber, lister Lister, log logger.Logger) *Listener {
	if log == nil {
		log = logger.Nop()
	}
	return &Listener{subscriber: subscriber, lister: lister, log: log}
}

// Attach releases any previous subscription, then subscribes to owner's
// changes. Every notification leads to a full re-fetch handed to
// onSnapshot; notifications that arrive while a re-fetch is running are
// folded into one more re-fetch. onSnapshot runs on the listener's
// goroutine and must not call Attach or Detach.
func (l *Listener) Attach(ctx context.Context, owner uint, onSnapshot SnapshotFunc) error {
	l.attachMu.Lock()
	defer l.attachMu.Unlock()
	l.detach()

	ctx, cancel := context.WithCancel(ctx)
	sub, err := l.subscriber.Subscribe(ctx, owner)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	l.mu.Lock()
	l.sub, l.cancel, l.done = sub, cancel, done
	l.mu.Unlock()

	go l.run(ctx, owner, sub, onSnapshot, done)
	return nil
}

// Detach releases the current subscription, if any, and waits for the
// listener goroutine to stop.
func (l *Listener) Detach() {
	l.attachMu.Lock()
	defer l.attachMu.Unlock()
	l.detach()
}

func (l *Listener) detach() {
	l.mu.Lock()
	sub, cancel, done := l.sub, l.cancel, l.done
	l.sub, l.cancel, l.done = nil, nil, nil
	l.mu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	if err := sub.Close(); err != nil {
		l.log.Warn("close subscription failed", logger.Error(err))
	}
	<-done
}

// Attached reports whether a subscription is currently held.
func (l *Listener) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

func (l *Listener) run(ctx context.Context, owner uint, sub feed.Subscription, onSnapshot SnapshotFunc, done chan struct{}) {
	defer close(done)

	trigger := make(chan struct{}, 1)
	go func() {
		defer close(trigger)
		for range sub.Events() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-trigger:
			if !ok {
				return
			}
			list, err := l.lister.List(ctx, owner, store.ListOptions{})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				l.log.Error("re-fetch after change failed",
					logger.Uint("owner_id", owner),
					logger.Error(err))
			}
			onSnapshot(list, err)
		}
	}
}

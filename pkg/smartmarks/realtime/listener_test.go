package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

type fakeLister struct {
	calls atomic.Int32
	gate  chan struct{} // when set, each call waits for a value
	err   error
}

func (f *fakeLister) List(ctx context.Context, owner uint, _ store.ListOptions) ([]models.Bookmark, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []models.Bookmark{{ID: "b1", OwnerID: owner}}, nil
}

type snapshots struct {
	mu   sync.Mutex
	got  [][]models.Bookmark
	errs []error
	ch   chan struct{}
}

func newSnapshots() *snapshots { return &snapshots{ch: make(chan struct{}, 64)} }

func (s *snapshots) fn(list []models.Bookmark, err error) {
	s.mu.Lock()
	s.got = append(s.got, list)
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

func (s *snapshots) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestAttachRefetchesOnChange(t *testing.T) {
	broker := feed.NewMemory()
	defer broker.Close()
	lister := &fakeLister{}
	l := New(broker, lister, logger.Nop())
	snaps := newSnapshots()

	require.NoError(t, l.Attach(context.Background(), 1, snaps.fn))
	defer l.Detach()

	require.NoError(t, broker.Publish(context.Background(), feed.Event{Type: feed.Insert, OwnerID: 1}))
	snaps.wait(t)

	snaps.mu.Lock()
	defer snaps.mu.Unlock()
	require.Len(t, snaps.got, 1)
	assert.Equal(t, "b1", snaps.got[0][0].ID)
	assert.NoError(t, snaps.errs[0])
}

func TestAttachIgnoresOtherOwners(t *testing.T) {
	broker := feed.NewMemory()
	defer broker.Close()
	lister := &fakeLister{}
	l := New(broker, lister, logger.Nop())

	require.NoError(t, l.Attach(context.Background(), 1, func([]models.Bookmark, error) {}))
	defer l.Detach()

	require.NoError(t, broker.Publish(context.Background(), feed.Event{Type: feed.Insert, OwnerID: 2}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), lister.calls.Load())
}

func TestReattachReleasesPreviousSubscription(t *testing.T) {
	broker := feed.NewMemory()
	defer broker.Close()
	l := New(broker, &fakeLister{}, logger.Nop())
	noop := func([]models.Bookmark, error) {}

	require.NoError(t, l.Attach(context.Background(), 1, noop))
	require.NoError(t, l.Attach(context.Background(), 1, noop))
	assert.Equal(t, 1, broker.Subscribers(1))

	require.NoError(t, l.Attach(context.Background(), 2, noop))
	assert.Equal(t, 0, broker.Subscribers(1))
	assert.Equal(t, 1, broker.Subscribers(2))

	l.Detach()
	assert.Equal(t, 0, broker.Subscribers(2))
	assert.False(t, l.Attached())

	l.Detach()
}

func TestConcurrentAttachHoldsOneSubscription(t *testing.T) {
	broker := feed.NewMemory()
	defer broker.Close()
	l := New(broker, &fakeLister{}, logger.Nop())
	noop := func([]models.Bookmark, error) {}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Attach(context.Background(), 1, noop))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, broker.Subscribers(1))
	assert.True(t, l.Attached())

	l.Detach()
	assert.Equal(t, 0, broker.Subscribers(1))
}

func TestBurstIsCoalesced(t *testing.T) {
	broker := feed.NewMemory()
	defer broker.Close()
	lister := &fakeLister{gate: make(chan struct{})}
	l := New(broker, lister, logger.Nop())
	snaps := newSnapshots()

	require.NoError(t, l.Attach(context.Background(), 1, snaps.fn))
	defer l.Detach()

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, feed.Event{Type: feed.Update, OwnerID: 1}))
	require.Eventually(t, func() bool { return lister.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		require.NoError(t, broker.Publish(ctx, feed.Event{Type: feed.Update, OwnerID: 1}))
	}
	// Let the pump fold the burst into the pending trigger.
	time.Sleep(50 * time.Millisecond)

	lister.gate <- struct{}{}
	snaps.wait(t)
	lister.gate <- struct{}{}
	snaps.wait(t)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), lister.calls.Load())
}

func TestRefetchErrorIsReported(t *testing.T) {
	broker := feed.NewMemory()
	defer broker.Close()
	boom := errors.New("db down")
	l := New(broker, &fakeLister{err: boom}, logger.Nop())
	snaps := newSnapshots()

	require.NoError(t, l.Attach(context.Background(), 1, snaps.fn))
	defer l.Detach()

	require.NoError(t, broker.Publish(context.Background(), feed.Event{Type: feed.Delete, OwnerID: 1}))
	snaps.wait(t)

	snaps.mu.Lock()
	defer snaps.mu.Unlock()
	assert.ErrorIs(t, snaps.errs[0], boom)
}

func TestAttachOnClosedBroker(t *testing.T) {
	broker := feed.NewMemory()
	require.NoError(t, broker.Close())
	l := New(broker, &fakeLister{}, logger.Nop())

	err := l.Attach(context.Background(), 1, func([]models.Bookmark, error) {})
	assert.ErrorIs(t, err, feed.ErrClosed)
	assert.False(t, l.Attached())
}

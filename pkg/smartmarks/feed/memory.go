package feed

import (
	"context"
	"sync"
)

const subscriptionBuffer = 16

// Memory is an in-process broker. Delivery never blocks the publisher;
// a subscriber that falls behind misses events, which is fine because
// any single event triggers a full re-fetch.
type Memory struct {
	mu     sync.RWMutex
	subs   map[uint]map[*memorySub]struct{}
	closed bool
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[uint]map[*memorySub]struct{})}
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	for sub := range m.subs[ev.OwnerID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, owner uint) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		broker: m,
		owner:  owner,
		ch:     make(chan Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	if m.subs[owner] == nil {
		m.subs[owner] = make(map[*memorySub]struct{})
	}
	m.subs[owner][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Subscribers reports how many live subscriptions an owner has.
func (m *Memory) Subscribers(owner uint) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[owner])
}

// Close ends every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySub
	for _, set := range m.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

type memorySub struct {
	broker *Memory
	owner  uint
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		if set := s.broker.subs[s.owner]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.broker.subs, s.owner)
			}
		}
		close(s.ch)
		s.broker.mu.Unlock()
		close(s.done)
	})
	return nil
}

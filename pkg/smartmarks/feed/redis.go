package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
)

// Redis publishes events on a per-owner pub/sub channel so that every
// server instance sharing the database sees the same changes.
type Redis struct {
	client *redis.Client
	log    logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewRedis wraps an already connected client. Close closes the client.
func NewRedis(client *redis.Client, log logger.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	if r.isClosed() {
		return ErrClosed
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(ev.OwnerID), payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, owner uint) (Subscription, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}

	ps := r.client.Subscribe(ctx, Channel(owner))
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	sub := &redisSub{ps: ps, ch: make(chan Event, subscriptionBuffer)}
	go sub.pump(ctx, r.log)
	return sub, nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Event
	once sync.Once
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

func (s *redisSub) pump(ctx context.Context, log logger.Logger) {
	defer close(s.ch)
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				log.Warn("dropping malformed feed event",
					logger.String("channel", msg.Channel),
					logger.Error(err))
				continue
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}

func encodeEvent(ev Event) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", errors.Wrap(err, "encode event")
	}
	return string(b), nil
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if ev.Type == "" || ev.OwnerID == 0 {
		return Event{}, errors.New("event missing type or owner")
	}
	return ev, nil
}

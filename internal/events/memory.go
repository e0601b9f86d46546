package events

import (
	"context"
	"sync"

	"github.com/reelnotes/reelnotes-backend/internal/logger"
)

const subscriberBuffer = 64

type subscriber struct {
	topics map[string]struct{}
	ch     chan Event
	done   <-chan struct{}
}

// MemoryBus fans events out in process.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*subscriber]struct{})}
}

// Publish never waits on subscribers. A subscriber whose buffer is full
// loses its oldest pending event to make room, so one stalled reader cannot
// hold up publishers or other readers.
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		if _, ok := s.topics[e.Topic]; ok {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if s.offer(e) > 0 {
			logger.New(ctx).LogWarnf("publish_event", "slow subscriber dropped oldest event topic=%s project_id=%s", e.Topic, e.ProjectID)
		}
	}
	return nil
}

// offer enqueues e, evicting the oldest buffered events while the buffer is
// full. It returns how many were evicted.
func (s *subscriber) offer(e Event) int {
	dropped := 0
	for {
		select {
		case <-s.done:
			return dropped
		case s.ch <- e:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, topics ...string) (<-chan Event, error) {
	s := &subscriber{
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan Event, subscriberBuffer),
		done:   ctx.Done(),
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-s.ch:
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/reelnotes/reelnotes-backend/internal/logger"
)

// RedisBus publishes events on Redis Pub/Sub, one channel per topic, so
// several API processes share completions.
type RedisBus struct {
	client *redis.Client
	prefix string
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(client *redis.Client, namespace string) *RedisBus {
	if namespace == "" {
		namespace = "reelnotes"
	}
	return &RedisBus{client: client, prefix: namespace + ":events:"}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(e.Topic), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (<-chan Event, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = b.channel(t)
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					logger.New(ctx).LogWarnf("subscribe_events", "dropping malformed payload channel=%s error=%v", msg.Channel, err)
					continue
				}
				if e.Topic == "" {
					e.Topic = strings.TrimPrefix(msg.Channel, b.prefix)
				}
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

func (b *RedisBus) channel(topic string) string {
	return b.prefix + topic
}

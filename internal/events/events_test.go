package events

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertNothing(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func testBus(t *testing.T, bus Bus) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished, err := bus.Subscribe(ctx, TopicTranscriptionFinished)
	require.NoError(t, err)
	updates, err := bus.Subscribe(ctx, TopicProjectUpdated, TopicProjectDeleted)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{
		Topic:     TopicTranscriptionFinished,
		ProjectID: "p1",
		Segments:  []projdomain.TranscriptSegment{{StartTime: 0, EndTime: 1, Text: "Hi."}},
	}))
	e := receive(t, finished)
	assert.Equal(t, "p1", e.ProjectID)
	require.Len(t, e.Segments, 1)
	assert.Equal(t, "Hi.", e.Segments[0].Text)
	assertNothing(t, updates)

	require.NoError(t, bus.Publish(ctx, Event{Topic: TopicProjectDeleted, ProjectID: "p2"}))
	e = receive(t, updates)
	assert.Equal(t, TopicProjectDeleted, e.Topic)
	assertNothing(t, finished)

	cancel()
	select {
	case _, ok := <-finished:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close")
	}
}

func TestMemoryBus(t *testing.T) {
	testBus(t, NewMemoryBus())
}

func TestRedisBus(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	testBus(t, NewRedisBus(client, "test"))
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	assert.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicProjectUpdated}))
}

func TestMemoryBusDropsCancelledSubscriber(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := bus.Subscribe(ctx, TopicProjectUpdated)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBusStalledSubscriberKeepsNewest(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stalled, err := bus.Subscribe(ctx, TopicProjectUpdated)
	require.NoError(t, err)

	total := subscriberBuffer + 20
	pctx, pcancel := context.WithTimeout(context.Background(), time.Second)
	defer pcancel()
	for i := 0; i < total; i++ {
		require.NoError(t, bus.Publish(pctx, Event{Topic: TopicProjectUpdated, ProjectID: fmt.Sprintf("p%d", i)}))
	}

	var got []string
	for {
		select {
		case e := <-stalled:
			got = append(got, e.ProjectID)
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), subscriberBuffer+1)
	assert.Equal(t, fmt.Sprintf("p%d", total-1), got[len(got)-1])
}

func TestRedisBusSkipsMalformedPayload(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()

	bus := NewRedisBus(client, "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, TopicProjectUpdated)
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "test:events:"+TopicProjectUpdated, "{not json").Err())
	require.NoError(t, bus.Publish(ctx, Event{Topic: TopicProjectUpdated, ProjectID: "p1"}))

	assert.Equal(t, "p1", receive(t, ch).ProjectID)
	assert.Contains(t, buf.String(), "[warn] request_id=background operation=subscribe_events dropping malformed payload")
}

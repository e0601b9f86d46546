package transcription

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

func TestCachingGateway_HitSkipsRemote(t *testing.T) {
	ResetMetrics()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var calls int32
	remote := GatewayFunc(func(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
		atomic.AddInt32(&calls, 1)
		return []projdomain.TranscriptSegment{{StartTime: 0, EndTime: 2.5, Text: "Hello"}}, nil
	})
	g := NewCachingGateway(remote, client, "test", time.Hour)
	media := Media{Data: []byte("identical bytes"), MimeType: "video/mp4"}

	first, err := g.Transcribe(context.Background(), media)
	require.NoError(t, err)
	second, err := g.Transcribe(context.Background(), media)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), GetMetrics().CacheHits())
	assert.True(t, mr.Exists("test:transcript:"+HashMedia(media.Data)))

	mr.FastForward(2 * time.Hour)
	_, err = g.Transcribe(context.Background(), media)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCachingGateway_FailuresAreNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	remote := GatewayFunc(func(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
		return nil, ErrTranscriptionFailed
	})
	g := NewCachingGateway(remote, client, "test", time.Hour)
	media := Media{Data: []byte("x"), MimeType: "video/mp4"}

	_, err = g.Transcribe(context.Background(), media)
	assert.True(t, errors.Is(err, ErrTranscriptionFailed))
	assert.False(t, mr.Exists("test:transcript:"+HashMedia(media.Data)))
}

func TestCachingGateway_RedisDownFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	remote := GatewayFunc(func(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
		return []projdomain.TranscriptSegment{{StartTime: 0, EndTime: 1, Text: "ok"}}, nil
	})
	g := NewCachingGateway(remote, client, "test", time.Hour)

	segs, err := g.Transcribe(context.Background(), Media{Data: []byte("x"), MimeType: "video/mp4"})
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

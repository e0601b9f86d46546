package transcription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelnotes/reelnotes-backend/internal/logger"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

// CachingGateway remembers transcripts by media content hash so identical
// uploads skip the remote call. Cache errors degrade to a miss.
type CachingGateway struct {
	next   Gateway
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ Gateway = (*CachingGateway)(nil)

func NewCachingGateway(next Gateway, client *redis.Client, namespace string, ttl time.Duration) *CachingGateway {
	if namespace == "" {
		namespace = "reelnotes"
	}
	return &CachingGateway{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: namespace + ":transcript:",
	}
}

func (g *CachingGateway) Transcribe(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
	log := logger.New(ctx)
	if m.Hash == "" {
		m.Hash = HashMedia(m.Data)
	}
	key := g.prefix + m.Hash

	data, err := g.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var segs []projdomain.TranscriptSegment
		if jerr := json.Unmarshal(data, &segs); jerr == nil {
			recordCacheHit()
			log.LogInfof("transcribe_cache", "hit media_hash=%s segments=%d", m.Hash, len(segs))
			return segs, nil
		}
		log.LogWarnf("transcribe_cache", "discarding unreadable entry media_hash=%s", m.Hash)
	case err != redis.Nil:
		log.LogWarnf("transcribe_cache", "lookup failed media_hash=%s error=%v", m.Hash, err)
	}

	segs, err := g.next.Transcribe(ctx, m)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(segs); err == nil {
		if err := g.client.Set(ctx, key, data, g.ttl).Err(); err != nil {
			log.LogWarnf("transcribe_cache", "store failed media_hash=%s error=%v", m.Hash, err)
		}
	}
	return segs, nil
}

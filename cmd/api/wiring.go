package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/reelnotes/reelnotes-backend/config"
	httpapi "github.com/reelnotes/reelnotes-backend/internal/api/http"
	"github.com/reelnotes/reelnotes-backend/internal/bootstrap"
	"github.com/reelnotes/reelnotes-backend/internal/events"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
	"github.com/reelnotes/reelnotes-backend/internal/storage/postgres"
	"github.com/reelnotes/reelnotes-backend/internal/storage/redisstore"
	"github.com/reelnotes/reelnotes-backend/internal/storage/sqlitestore"
	"github.com/reelnotes/reelnotes-backend/internal/transcription"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type deps struct {
	store   storage.Store
	bus     events.Bus
	gateway transcription.Gateway
	redis   *redis.Client
	// storeOwnsRedis is set when closing the store also closes redis.
	storeOwnsRedis bool
}

func (d *deps) close() error {
	var errs []error
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if d.redis != nil && !d.storeOwnsRedis {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// cachePinger returns nil when no Redis client was opened so the health
// handler omits the cache probe.
func (d *deps) cachePinger() httpapi.Pinger {
	if d.redis == nil {
		return nil
	}
	return httpapi.PingFunc(func(ctx context.Context) error {
		return d.redis.Ping(ctx).Err()
	})
}

// needsRedis reports whether any component is configured onto Redis. The
// transcription cache rides along whenever a client exists.
func needsRedis(cfg *config.Config) bool {
	return cfg.Storage.Backend == "redis" || cfg.Storage.EventBus == "redis"
}

func wire(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{}

	if needsRedis(cfg) {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			_ = d.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, d.redis)
	if err != nil {
		_ = d.close()
		return nil, err
	}
	d.store = store
	d.storeOwnsRedis = cfg.Storage.Backend == "redis"

	switch cfg.Storage.EventBus {
	case "redis":
		d.bus = events.NewRedisBus(d.redis, cfg.Storage.Namespace)
	default:
		d.bus = events.NewMemoryBus()
	}

	gw, err := buildGateway(ctx, cfg, d.redis)
	if err != nil {
		_ = d.close()
		return nil, err
	}
	d.gateway = gw

	return d, nil
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (storage.Store, error) {
	ns := cfg.Storage.Namespace
	switch cfg.Storage.Backend {
	case "redis":
		return redisstore.New(rdb, ns), nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Storage.SQLitePath, ns)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		return s, nil
	case "postgres":
		db := cfg.Database
		pool, err := bootstrap.OpenPostgres(ctx, bootstrap.PostgresOptions{
			DSN:         db.PostgresDSN(),
			MaxConns:    int32(db.MaxConns),
			MinConns:    int32(db.MinConns),
			MaxConnLife: db.MaxConnLife,
			MaxConnIdle: db.MaxConnIdle,
		})
		if err != nil {
			return nil, err
		}
		s := postgres.New(pool, ns)
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Storage.Backend)
}

func buildGateway(ctx context.Context, cfg *config.Config, rdb *redis.Client) (transcription.Gateway, error) {
	tc := cfg.Transcription

	var ts oauth2.TokenSource
	switch {
	case tc.AccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tc.AccessToken})
	case tc.UseADC:
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("default credentials: %w", err)
		}
		ts = creds.TokenSource
	}
	if tc.APIKey == "" && ts == nil {
		log.Println("transcription has no credentials; every job will fail until TRANSCRIBE_API_KEY, TRANSCRIBE_ACCESS_TOKEN or TRANSCRIBE_USE_ADC is set")
	}

	var gw transcription.Gateway = transcription.NewClient(transcription.ClientConfig{
		BaseURL:       tc.BaseURL,
		Model:         tc.Model,
		APIKey:        tc.APIKey,
		TokenSource:   ts,
		Timeout:       tc.Timeout,
		RatePerMinute: tc.RatePerMinute,
	})
	if rdb != nil && tc.CacheTTL > 0 {
		gw = transcription.NewCachingGateway(gw, rdb, cfg.Storage.Namespace, tc.CacheTTL)
	}
	return gw, nil
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Storage.EventBus)
	assert.Equal(t, int64(512<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.StaleAfter)
	assert.False(t, cfg.Transcription.UseADC)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, time.Hour, cfg.Database.MaxConnLife)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/notes.db")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("TRANSCRIBE_USE_ADC", "true")
	t.Setenv("TRANSCRIBE_RATE_PER_MINUTE", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Storage.SessionTTL)
	assert.True(t, cfg.Transcription.UseADC)
	assert.Equal(t, 10, cfg.Transcription.RatePerMinute)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"unknown bus", func(c *Config) { c.Storage.EventBus = "kafka" }},
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"postgres without dsn", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Database.DSN, c.Database.Host = "", ""
		}},
		{"no upload budget", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
		{"no origins", func(c *Config) { c.Server.AllowedOrigins = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, validConfig().Validate())
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", d.PostgresDSN())

	d.DSN = "postgres://x"
	assert.Equal(t, "postgres://x", d.PostgresDSN())
}

func validConfig() *Config {
	return &Config{
		Server:        ServerConfig{Port: "8080", MaxUploadBytes: 1 << 20, AllowedOrigins: []string{"http://localhost:5173"}},
		Redis:         RedisConfig{Addr: "localhost:6379"},
		Storage:       StorageConfig{Backend: "redis", EventBus: "memory"},
		Transcription: TranscriptionConfig{BaseURL: "http://localhost"},
	}
}

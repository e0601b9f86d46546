package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelnotes/reelnotes-backend/internal/transcription"
)

const pingTimeout = time.Second

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type TranscriptionHealth struct {
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	ErrorRate    float64 `json:"error_rate"`
	CacheHits    int64   `json:"cache_hits"`
	Cancelled    int64   `json:"cancelled"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type HealthResponse struct {
	Status        string              `json:"status"`
	Timestamp     time.Time           `json:"timestamp"`
	Service       string              `json:"service"`
	Version       string              `json:"version"`
	Store         string              `json:"store"`
	Cache         string              `json:"cache,omitempty"`
	Transcription TranscriptionHealth `json:"transcription"`
}

type HealthHandler struct {
	serviceName string
	version     string
	store       Pinger
	cache       Pinger
}

// NewHealthHandler probes store on every check, and cache when it is not
// nil.
func NewHealthHandler(serviceName, version string, store, cache Pinger) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		store:       store,
		cache:       cache,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		Store:     probe(c.Request.Context(), h.store),
	}
	if h.cache != nil {
		resp.Cache = probe(c.Request.Context(), h.cache)
	}

	m := transcription.GetMetrics()
	resp.Transcription = TranscriptionHealth{
		Calls:        m.UpstreamCalls(),
		Errors:       m.UpstreamErrors(),
		ErrorRate:    m.UpstreamErrorRate(),
		CacheHits:    m.CacheHits(),
		Cancelled:    m.CancelledTasks(),
		AvgLatencyMs: m.AverageUpstreamLatency(),
	}

	status := http.StatusOK
	if resp.Store != "up" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		return "down"
	}
	return "up"
}

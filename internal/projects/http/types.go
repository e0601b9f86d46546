package http

import (
	"time"

	"github.com/reelnotes/reelnotes-backend/internal/events"
	"github.com/reelnotes/reelnotes-backend/internal/projects/service"
)

const (
	defaultMaxUploadBytes = 512 << 20
	defaultKeepAlive      = 15 * time.Second
)

// Handler bundles the dependencies for projects HTTP endpoints.
type Handler struct {
	svc            *service.ProjectService
	bus            events.Bus
	maxUploadBytes int64
	keepAlive      time.Duration
}

type Option func(*Handler)

// WithMaxUploadBytes caps the multipart upload size.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithKeepAlive sets the interval of SSE keep-alive comments.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

func New(svc *service.ProjectService, bus events.Bus, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		bus:            bus,
		maxUploadBytes: defaultMaxUploadBytes,
		keepAlive:      defaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type renameReq struct {
	Name string `json:"name"`
}

type noteReq struct {
	Kind                   string   `json:"kind"`
	Timestamp              *float64 `json:"timestamp"`
	Content                string   `json:"content"`
	TranscriptSegmentIndex *int     `json:"transcript_segment_index"`
	HighlightStart         *int     `json:"highlight_start"`
	HighlightEnd           *int     `json:"highlight_end"`
	Color                  *string  `json:"color"`
	Quote                  *string  `json:"quote"`
}

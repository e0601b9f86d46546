package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/reelnotes/reelnotes-backend/internal/annotations"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

const (
	DefaultTimeout = 5 * time.Minute

	// responses larger than this are treated as malformed
	maxResponseBytes = 8 << 20
)

const transcribePrompt = `Transcribe the speech in this media. Split it into sentence-level segments.
Return only a JSON array, in chronological order, where each element is
{"startTime": <seconds>, "endTime": <seconds>, "text": "<sentence>"}.
Return [] if there is no speech.`

type ClientConfig struct {
	BaseURL string
	Model   string
	// APIKey is sent as the "key" query parameter when set.
	APIKey string
	// TokenSource authorizes requests with a bearer token when set.
	TokenSource   oauth2.TokenSource
	Timeout       time.Duration
	RatePerMinute int
	HTTPClient    *http.Client
}

// Client calls a generateContent endpoint with the media inlined as base64.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if cfg.TokenSource != nil {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc = &http.Client{
			Timeout:   hc.Timeout,
			Transport: &oauth2.Transport{Source: cfg.TokenSource, Base: base},
		}
	}

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	InlineData *inlineData `json:"inline_data,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type wireSegment struct {
	StartTime *decimal.Decimal `json:"startTime"`
	EndTime   *decimal.Decimal `json:"endTime"`
	Text      *string          `json:"text"`
}

// Transcribe sends one request and returns the parsed segments. Every
// failure wraps ErrTranscriptionFailed.
func (c *Client) Transcribe(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
	log := logger.New(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		log.LogError("transcribe", err)
		return nil, fmt.Errorf("%w: rate limit: %v", ErrTranscriptionFailed, err)
	}

	start := time.Now()
	segs, err := c.call(ctx, m)
	recordUpstreamCall(time.Since(start), err)
	if err != nil {
		log.LogErrorf("transcribe", "mime_type=%s bytes=%d error=%v", m.MimeType, len(m.Data), err)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	log.LogInfof("transcribe", "mime_type=%s bytes=%d segments=%d latency=%s", m.MimeType, len(m.Data), len(segs), time.Since(start))
	return segs, nil
}

func (c *Client) call(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: m.MimeType, Data: base64.StdEncoding.EncodeToString(m.Data)}},
			{Text: transcribePrompt},
		}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("response has no candidates")
	}

	return ParseSegments(gr.Candidates[0].Content.Parts[0].Text)
}

func (c *Client) endpoint() string {
	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	return u
}

// ParseSegments decodes the model's JSON array of segments. Times are parsed
// as decimals and rounded to the millisecond.
func ParseSegments(text string) ([]projdomain.TranscriptSegment, error) {
	text = stripCodeFence(text)

	var wire []wireSegment
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}

	out := make([]projdomain.TranscriptSegment, 0, len(wire))
	for i, w := range wire {
		if w.StartTime == nil || w.EndTime == nil || w.Text == nil {
			return nil, fmt.Errorf("segment %d is missing a field", i)
		}
		start, _ := w.StartTime.Round(3).Float64()
		end, _ := w.EndTime.Round(3).Float64()
		out = append(out, projdomain.TranscriptSegment{
			StartTime: start,
			EndTime:   end,
			Text:      strings.TrimSpace(*w.Text),
		})
	}
	if err := annotations.ValidateTranscript(out); err != nil {
		return nil, err
	}
	return out, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

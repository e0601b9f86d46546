// Package transcription turns uploaded media into timed transcript segments
// through a remote generative model, and runs that call in the background
// per project.
package transcription

import (
	"context"
	"encoding/hex"
	"errors"

	"lukechampine.com/blake3"

	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

// ErrTranscriptionFailed is the single failure outcome of a transcription
// call. Quota, invalid media, timeouts and bad responses all collapse to it;
// the wrapped cause is for logs only.
var ErrTranscriptionFailed = errors.New("transcription failed")

type Media struct {
	Data     []byte
	MimeType string
	// Hash is the hex blake3 digest of Data, filled by HashMedia.
	Hash string
}

type Gateway interface {
	Transcribe(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error)

func (f GatewayFunc) Transcribe(ctx context.Context, m Media) ([]projdomain.TranscriptSegment, error) {
	return f(ctx, m)
}

// HashMedia returns the hex blake3-256 digest of data.
func HashMedia(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

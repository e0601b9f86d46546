package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the review dimension a note belongs to.
type Kind string

const (
	KindOriginal Kind = "original"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindVerbal   Kind = "verbal"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOriginal, KindVideo, KindAudio, KindVerbal:
		return true
	}
	return false
}

// ParseKind accepts the lowercase kind names.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown note kind %q", s)
	}
	return k, nil
}

// Note is a timestamped or text-span annotation. Notes are never mutated in
// place; edits are delete + recreate.
type Note struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Kind      Kind      `json:"kind"`
	Timestamp float64   `json:"timestamp"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// verbal only
	TranscriptSegmentIndex *int    `json:"transcript_segment_index,omitempty"`
	HighlightStart         *int    `json:"highlight_start,omitempty"`
	HighlightEnd           *int    `json:"highlight_end,omitempty"`
	Color                  *string `json:"color,omitempty"`
	Quote                  *string `json:"quote,omitempty"`
}

// NewNote is the input for creating a note.
type NewNote struct {
	ProjectID string
	Kind      Kind
	Timestamp float64
	Content   string

	TranscriptSegmentIndex *int
	HighlightStart         *int
	HighlightEnd           *int
	Color                  *string
	Quote                  *string
}

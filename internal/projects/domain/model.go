package domain

import "time"

// Project is one uploaded video with its transcript. Media is the transient
// handle to the uploaded bytes; it is never persisted.
type Project struct {
	ID                 string              `json:"id"`
	OwnerUserID        string              `json:"owner_user_id"`
	Name               string              `json:"name"`
	CreatedAt          time.Time           `json:"created_at"`
	Transcribing       bool                `json:"transcribing"`
	Transcript         []TranscriptSegment `json:"transcript"`
	FileName           string              `json:"file_name,omitempty"`
	MimeType           string              `json:"mime_type,omitempty"`
	MediaHash          string              `json:"media_hash,omitempty"`
	TranscriptionError string              `json:"transcription_error,omitempty"`

	Media *MediaHandle `json:"-"`
}

// TranscriptSegment is one sentence-level span of spoken text, in seconds.
type TranscriptSegment struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
}

// MediaHandle references uploaded media bytes held in process memory.
type MediaHandle struct {
	Data     []byte
	MimeType string
}

// Clone returns a copy whose transcript can be modified independently.
func (p Project) Clone() Project {
	out := p
	if p.Transcript != nil {
		out.Transcript = make([]TranscriptSegment, len(p.Transcript))
		copy(out.Transcript, p.Transcript)
	}
	return out
}

// Segment returns the transcript segment at idx.
func (p Project) Segment(idx int) (TranscriptSegment, bool) {
	if idx < 0 || idx >= len(p.Transcript) {
		return TranscriptSegment{}, false
	}
	return p.Transcript[idx], true
}

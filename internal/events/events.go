// Package events carries completion and change notifications between the
// background transcription work and the parts of the app that react to it.
package events

import (
	"context"
	"time"

	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

const (
	TopicTranscriptionFinished = "transcription.finished"
	TopicProjectUpdated        = "project.updated"
	TopicProjectDeleted        = "project.deleted"
)

type Event struct {
	Topic       string    `json:"topic"`
	ProjectID   string    `json:"project_id"`
	OwnerUserID string    `json:"owner_user_id,omitempty"`
	At          time.Time `json:"at"`

	// transcription.finished: Segments on success, Error on failure.
	Segments []projdomain.TranscriptSegment `json:"segments,omitempty"`
	Error    string                         `json:"error,omitempty"`

	// project.updated carries the project as persisted.
	Project *projdomain.Project `json:"project,omitempty"`
}

// Bus delivers every published event to each live subscription of its topic.
// A subscription ends, and its channel closes, when ctx is done.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, topics ...string) (<-chan Event, error)
}

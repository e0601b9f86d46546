// Package annotations owns notes and the transcript transitions of a
// project: every note is checked against the transcript it points into.
package annotations

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
)

// Model keeps the loaded note set of each project in memory and writes
// through to the store. Mutations are serialized.
type Model struct {
	store storage.Store

	mu    sync.Mutex
	notes map[string][]domain.Note

	now   func() time.Time
	newID func() string
}

type Option func(*Model)

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithIDs overrides note id generation.
func WithIDs(newID func() string) Option {
	return func(m *Model) { m.newID = newID }
}

func NewModel(store storage.Store, opts ...Option) *Model {
	m := &Model{
		store: store,
		notes: make(map[string][]domain.Note),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddNote validates in against the project's current transcript, then
// appends and persists it.
func (m *Model) AddNote(ctx context.Context, in domain.NewNote) (domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !in.Kind.Valid() {
		return domain.Note{}, domain.Invalid("kind", "unknown kind %q", in.Kind)
	}
	if math.IsNaN(in.Timestamp) || math.IsInf(in.Timestamp, 0) || in.Timestamp < 0 {
		return domain.Note{}, domain.Invalid("timestamp", "must be a non-negative number of seconds")
	}

	p, err := m.project(ctx, in.ProjectID)
	if err != nil {
		return domain.Note{}, err
	}

	if in.Kind == domain.KindVerbal {
		if err := validateVerbal(*p, in); err != nil {
			return domain.Note{}, err
		}
	} else if err := validatePlain(in); err != nil {
		return domain.Note{}, err
	}

	if _, err := m.loaded(ctx, in.ProjectID); err != nil {
		return domain.Note{}, err
	}

	n := domain.Note{
		ID:                     m.newID(),
		ProjectID:              in.ProjectID,
		Kind:                   in.Kind,
		Timestamp:              in.Timestamp,
		Content:                in.Content,
		CreatedAt:              m.now().UTC(),
		TranscriptSegmentIndex: copyInt(in.TranscriptSegmentIndex),
		HighlightStart:         copyInt(in.HighlightStart),
		HighlightEnd:           copyInt(in.HighlightEnd),
		Color:                  copyString(in.Color),
		Quote:                  copyString(in.Quote),
	}
	if err := m.store.SaveNote(ctx, n); err != nil {
		return domain.Note{}, fmt.Errorf("save note: %w", err)
	}
	m.notes[n.ProjectID] = append(m.notes[n.ProjectID], n)

	logger.New(ctx).LogInfof("add_note", "project_id=%s note_id=%s kind=%s", n.ProjectID, n.ID, n.Kind)
	return n, nil
}

func validatePlain(in domain.NewNote) error {
	if strings.TrimSpace(in.Content) == "" {
		return domain.Invalid("content", "must not be blank")
	}
	switch {
	case in.TranscriptSegmentIndex != nil:
		return domain.Invalid("transcript_segment_index", "only verbal notes reference the transcript")
	case in.HighlightStart != nil, in.HighlightEnd != nil:
		return domain.Invalid("highlight", "only verbal notes carry highlight bounds")
	case in.Quote != nil:
		return domain.Invalid("quote", "only verbal notes carry a quote")
	case in.Color != nil:
		return domain.Invalid("color", "only verbal notes carry a highlight color")
	}
	return nil
}

// validateVerbal checks the highlight against the referenced segment.
// Offsets count runes, so a range never splits a character.
func validateVerbal(p projdomain.Project, in domain.NewNote) error {
	switch {
	case in.TranscriptSegmentIndex == nil:
		return domain.Invalid("transcript_segment_index", "required for verbal notes")
	case in.HighlightStart == nil:
		return domain.Invalid("highlight_start", "required for verbal notes")
	case in.HighlightEnd == nil:
		return domain.Invalid("highlight_end", "required for verbal notes")
	case in.Quote == nil:
		return domain.Invalid("quote", "required for verbal notes")
	}

	idx := *in.TranscriptSegmentIndex
	seg, ok := p.Segment(idx)
	if !ok {
		return domain.Invalid("transcript_segment_index", "%d is outside the transcript (%d segments)", idx, len(p.Transcript))
	}

	start, end := *in.HighlightStart, *in.HighlightEnd
	length := utf8.RuneCountInString(seg.Text)
	if start < 0 || start > end || end > length {
		return domain.Invalid("highlight", "range [%d,%d) is outside segment text of length %d", start, end, length)
	}

	runes := []rune(seg.Text)
	if want := string(runes[start:end]); *in.Quote != want {
		return domain.Invalid("quote", "does not match the highlighted text %q", want)
	}
	if in.Color != nil && strings.TrimSpace(*in.Color) == "" {
		return domain.Invalid("color", "must not be blank when set")
	}
	return nil
}

// DeleteNote removes the note from memory and the store. Unknown ids are a
// no-op.
func (m *Model) DeleteNote(ctx context.Context, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pid, list := range m.notes {
		for i, n := range list {
			if n.ID == noteID {
				m.notes[pid] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	if err := m.store.DeleteNote(ctx, noteID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// FilterByKind returns the notes of one kind in their original order.
func FilterByKind(notes []domain.Note, kind domain.Kind) []domain.Note {
	out := make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// AttachTranscript replaces the transcript of a transcribing project and
// ends the transcribing state. It runs at most once per transcription.
func (m *Model) AttachTranscript(ctx context.Context, projectID string, segments []projdomain.TranscriptSegment) (projdomain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ValidateTranscript(segments); err != nil {
		return projdomain.Project{}, err
	}

	p, err := m.project(ctx, projectID)
	if err != nil {
		return projdomain.Project{}, err
	}
	if !p.Transcribing {
		return projdomain.Project{}, projdomain.ErrNotTranscribing
	}

	p.Transcript = make([]projdomain.TranscriptSegment, len(segments))
	copy(p.Transcript, segments)
	p.Transcribing = false
	p.TranscriptionError = ""

	if err := m.store.SaveProject(ctx, *p); err != nil {
		return projdomain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return *p, nil
}

// FailTranscription ends the transcribing state with an empty transcript
// and records reason for diagnostics.
func (m *Model) FailTranscription(ctx context.Context, projectID, reason string) (projdomain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.project(ctx, projectID)
	if err != nil {
		return projdomain.Project{}, err
	}
	if !p.Transcribing {
		return projdomain.Project{}, projdomain.ErrNotTranscribing
	}

	p.Transcript = []projdomain.TranscriptSegment{}
	p.Transcribing = false
	p.TranscriptionError = reason

	if err := m.store.SaveProject(ctx, *p); err != nil {
		return projdomain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return *p, nil
}

// ValidateTranscript checks that every segment has 0 <= start <= end and
// that segments are in chronological order.
func ValidateTranscript(segments []projdomain.TranscriptSegment) error {
	prev := 0.0
	for i, s := range segments {
		if math.IsNaN(s.StartTime) || math.IsNaN(s.EndTime) || s.StartTime < 0 {
			return domain.Invalid("transcript", "segment %d has an invalid start time", i)
		}
		if s.EndTime < s.StartTime {
			return domain.Invalid("transcript", "segment %d ends before it starts", i)
		}
		if s.StartTime < prev {
			return domain.Invalid("transcript", "segment %d is out of chronological order", i)
		}
		prev = s.StartTime
	}
	return nil
}

// Load reads a project's notes from the store and caches them.
func (m *Model) Load(ctx context.Context, projectID string) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.notes, projectID)
	list, err := m.loaded(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return cloneNotes(list), nil
}

// Notes returns the cached note set of a project, nil if never loaded.
func (m *Model) Notes(projectID string) []domain.Note {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.notes[projectID]
	if !ok {
		return nil
	}
	return cloneNotes(list)
}

// Forget drops the cached note set of a project.
func (m *Model) Forget(projectID string) {
	m.mu.Lock()
	delete(m.notes, projectID)
	m.mu.Unlock()
}

// PurgeNotes deletes every stored note of a project. It is separate from
// project deletion and is not atomic with it.
func (m *Model) PurgeNotes(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.notes, projectID)
	list, err := m.store.GetNotes(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	var errs []error
	for _, n := range list {
		if err := m.store.DeleteNote(ctx, n.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Model) loaded(ctx context.Context, projectID string) ([]domain.Note, error) {
	if list, ok := m.notes[projectID]; ok {
		return list, nil
	}
	list, err := m.store.GetNotes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	m.notes[projectID] = list
	return list, nil
}

func (m *Model) project(ctx context.Context, id string) (*projdomain.Project, error) {
	p, err := m.store.GetProject(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, projdomain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func cloneNotes(list []domain.Note) []domain.Note {
	out := make([]domain.Note, len(list))
	copy(out, list)
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

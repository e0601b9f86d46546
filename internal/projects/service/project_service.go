package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelnotes/reelnotes-backend/internal/annotations"
	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	"github.com/reelnotes/reelnotes-backend/internal/events"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	"github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
	"github.com/reelnotes/reelnotes-backend/internal/transcription"
)

const (
	defaultProjectName = "Untitled video"
	staleReason        = "transcription task was lost before it finished"
	publishTimeout     = 5 * time.Second
)

// Scheduler runs transcriptions in the background, one per project.
type Scheduler interface {
	Schedule(job transcription.Job)
	Cancel(projectID string) bool
	Active(projectID string) bool
}

// UploadInput is one selected media file.
type UploadInput struct {
	FileName string
	MimeType string
	Data     []byte
}

// ProjectService owns the project lifecycle: upload, rename, delete and the
// transcription outcome. Mutations of a project are serialized so that a
// late transcription result can never race a delete.
type ProjectService struct {
	store     storage.Store
	model     *annotations.Model
	scheduler Scheduler
	bus       events.Bus
	media     *mediaRegistry

	mu sync.Mutex
	wg sync.WaitGroup

	now   func() time.Time
	newID func() string
}

type Option func(*ProjectService)

func WithClock(now func() time.Time) Option {
	return func(s *ProjectService) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *ProjectService) { s.newID = newID }
}

func NewProjectService(store storage.Store, model *annotations.Model, scheduler Scheduler, bus events.Bus, opts ...Option) *ProjectService {
	s := &ProjectService{
		store:     store,
		model:     model,
		scheduler: scheduler,
		bus:       bus,
		media:     newMediaRegistry(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload creates a transcribing project for the media and schedules its
// transcription. It returns before the transcription starts.
func (s *ProjectService) Upload(ctx context.Context, userID string, in UploadInput) (domain.Project, error) {
	if len(in.Data) == 0 {
		return domain.Project{}, domain.ErrEmptyUpload
	}

	fileName := path.Base(strings.ReplaceAll(strings.TrimSpace(in.FileName), "\\", "/"))
	name := fileName
	if name == "" || name == "." || name == "/" {
		name, fileName = defaultProjectName, ""
	}
	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(in.Data)
	}

	handle := &domain.MediaHandle{Data: in.Data, MimeType: mimeType}
	p := domain.Project{
		ID:           s.newID(),
		OwnerUserID:  userID,
		Name:         name,
		CreatedAt:    s.now().UTC(),
		Transcribing: true,
		Transcript:   []domain.TranscriptSegment{},
		FileName:     fileName,
		MimeType:     mimeType,
		MediaHash:    transcription.HashMedia(in.Data),
	}

	s.mu.Lock()
	if err := s.store.SaveProject(ctx, p); err != nil {
		s.mu.Unlock()
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	s.media.put(p.ID, handle)
	s.schedule(p, handle)
	s.mu.Unlock()

	logger.New(ctx).LogInfof("upload_project", "project_id=%s user_id=%s bytes=%d mime=%s", p.ID, userID, len(in.Data), mimeType)
	s.publish(ctx, events.TopicProjectUpdated, p)

	p.Media = handle
	return p, nil
}

// List returns the user's projects, newest first.
func (s *ProjectService) List(ctx context.Context, userID string) ([]domain.Project, error) {
	list, err := s.store.GetProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for i := range list {
		list[i].Media = s.media.get(list[i].ID)
	}
	return list, nil
}

// Get returns one project of the user. Projects of other users are
// reported as not found.
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (domain.Project, error) {
	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	p.Media = s.media.get(p.ID)
	return *p, nil
}

// Rename persists a new name. Blank names are rejected and the stored name
// is kept.
func (s *ProjectService) Rename(ctx context.Context, userID, projectID, name string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, domain.ErrBlankName
	}

	p, err := s.rename(ctx, userID, projectID, name)
	if err != nil {
		return domain.Project{}, err
	}

	logger.New(ctx).LogInfof("rename_project", "project_id=%s", p.ID)
	s.publish(ctx, events.TopicProjectUpdated, *p)
	p.Media = s.media.get(p.ID)
	return *p, nil
}

func (s *ProjectService) rename(ctx context.Context, userID, projectID, name string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	p.Name = name
	if err := s.store.SaveProject(ctx, *p); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	return p, nil
}

// Delete removes the project for good once confirmed. Any running
// transcription is cancelled first. Notes are removed in a separate step
// afterwards; a failure there is logged and does not undo the delete.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string, confirmed bool) error {
	if !confirmed {
		return domain.ErrConfirmationRequired
	}

	p, err := s.delete(ctx, userID, projectID)
	if err != nil {
		return err
	}

	logger.New(ctx).LogInfof("delete_project", "project_id=%s", p.ID)
	s.publish(ctx, events.TopicProjectDeleted, *p)
	return nil
}

func (s *ProjectService) delete(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	log := logger.New(ctx)
	if s.scheduler.Cancel(p.ID) {
		log.LogInfof("delete_project", "cancelled transcription project_id=%s", p.ID)
	}
	s.media.release(p.ID)

	if err := s.store.DeleteProject(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("delete project: %w", err)
	}
	if err := s.model.PurgeNotes(ctx, p.ID); err != nil {
		log.LogWarnf("delete_project", "notes left behind project_id=%s error=%v", p.ID, err)
	}
	return p, nil
}

// Retry schedules a new transcription of a project whose media is still
// held in memory.
func (s *ProjectService) Retry(ctx context.Context, userID, projectID string) (domain.Project, error) {
	p, err := s.retry(ctx, userID, projectID)
	if err != nil {
		return domain.Project{}, err
	}

	logger.New(ctx).LogInfof("retry_transcription", "project_id=%s", p.ID)
	s.publish(ctx, events.TopicProjectUpdated, p)
	return p, nil
}

func (s *ProjectService) retry(ctx context.Context, userID, projectID string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Transcribing && s.scheduler.Active(p.ID) {
		return domain.Project{}, domain.ErrAlreadyTranscribing
	}
	handle := s.media.get(p.ID)
	if handle == nil {
		return domain.Project{}, domain.ErrMediaUnavailable
	}

	p.Transcribing = true
	p.Transcript = []domain.TranscriptSegment{}
	p.TranscriptionError = ""
	if err := s.store.SaveProject(ctx, *p); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	s.schedule(*p, handle)
	p.Media = handle
	return *p, nil
}

// HandleTranscription applies one transcription.finished event. Results for
// deleted projects, or for projects no longer transcribing, are dropped.
func (s *ProjectService) HandleTranscription(ctx context.Context, e events.Event) error {
	if e.Topic != events.TopicTranscriptionFinished {
		return nil
	}

	p, err := s.applyTranscription(ctx, e)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotTranscribing):
		logger.New(ctx).LogInfof("apply_transcription", "dropped result project_id=%s reason=%v", e.ProjectID, err)
		return nil
	case err != nil:
		return fmt.Errorf("apply transcription: %w", err)
	}

	s.publish(ctx, events.TopicProjectUpdated, p)
	return nil
}

func (s *ProjectService) applyTranscription(ctx context.Context, e events.Event) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.New(ctx)
	var (
		p   domain.Project
		err error
	)
	if e.Error != "" {
		p, err = s.model.FailTranscription(ctx, e.ProjectID, e.Error)
	} else {
		p, err = s.model.AttachTranscript(ctx, e.ProjectID, e.Segments)
		if errors.Is(err, annodomain.ErrValidation) {
			log.LogWarnf("apply_transcription", "rejected transcript project_id=%s error=%v", e.ProjectID, err)
			p, err = s.model.FailTranscription(ctx, e.ProjectID, transcription.ErrTranscriptionFailed.Error())
		}
	}

	if err != nil {
		return domain.Project{}, err
	}

	if p.TranscriptionError == "" {
		s.media.release(p.ID)
		log.LogInfof("apply_transcription", "project_id=%s segments=%d", p.ID, len(p.Transcript))
	} else {
		log.LogWarnf("apply_transcription", "project_id=%s failed reason=%s", p.ID, p.TranscriptionError)
	}
	return p, nil
}

// Start subscribes to transcription results and applies them in the
// background until ctx is done. Wait blocks until that loop exits.
func (s *ProjectService) Start(ctx context.Context) error {
	ch, err := s.bus.Subscribe(ctx, events.TopicTranscriptionFinished)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range ch {
			if err := s.HandleTranscription(ctx, e); err != nil {
				logger.New(ctx).LogError("apply_transcription", err)
			}
		}
	}()
	return nil
}

// Run is Start followed by waiting for ctx.
func (s *ProjectService) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

func (s *ProjectService) Wait() {
	s.wg.Wait()
}

// ReconcileStale fails projects left transcribing for longer than olderThan
// with no live task behind them, as happens after a restart. It returns how
// many projects it changed.
func (s *ProjectService) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	list, err := s.store.ListTranscribing(ctx)
	if err != nil {
		return 0, fmt.Errorf("list transcribing projects: %w", err)
	}

	failed, err := s.failStale(ctx, list, olderThan)
	for _, p := range failed {
		s.publish(ctx, events.TopicProjectUpdated, p)
	}
	return len(failed), err
}

func (s *ProjectService) failStale(ctx context.Context, list []domain.Project, olderThan time.Duration) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.New(ctx)
	cutoff := s.now().Add(-olderThan)
	var failed []domain.Project
	for _, candidate := range list {
		if candidate.CreatedAt.After(cutoff) || s.scheduler.Active(candidate.ID) {
			continue
		}
		p, err := s.model.FailTranscription(ctx, candidate.ID, staleReason)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotTranscribing) {
			continue
		}
		if err != nil {
			return failed, fmt.Errorf("fail stale project %s: %w", candidate.ID, err)
		}
		log.LogWarnf("reconcile_stale", "project_id=%s created_at=%s", p.ID, p.CreatedAt.Format(time.RFC3339))
		failed = append(failed, p)
	}
	return failed, nil
}

// ListNotes returns the project's notes in insertion order, only those of
// kind when kind is set.
func (s *ProjectService) ListNotes(ctx context.Context, userID, projectID string, kind annodomain.Kind) ([]annodomain.Note, error) {
	if _, err := s.owned(ctx, userID, projectID); err != nil {
		return nil, err
	}
	notes, err := s.model.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		notes = annotations.FilterByKind(notes, kind)
	}
	return notes, nil
}

// AddNote creates a note on one of the user's projects.
func (s *ProjectService) AddNote(ctx context.Context, userID string, in annodomain.NewNote) (annodomain.Note, error) {
	if _, err := s.owned(ctx, userID, in.ProjectID); err != nil {
		return annodomain.Note{}, err
	}
	return s.model.AddNote(ctx, in)
}

// DeleteNote removes a note of one of the user's projects. Ids that do not
// name a note of that project are a no-op. Membership is checked against
// the store, since another instance may have added the note.
func (s *ProjectService) DeleteNote(ctx context.Context, userID, projectID, noteID string) error {
	if _, err := s.owned(ctx, userID, projectID); err != nil {
		return err
	}
	notes, err := s.model.Load(ctx, projectID)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.ID == noteID {
			return s.model.DeleteNote(ctx, noteID)
		}
	}
	return nil
}

// HeldMedia reports how many uploads are still held in memory.
func (s *ProjectService) HeldMedia() int {
	return s.media.len()
}

func (s *ProjectService) owned(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p.OwnerUserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *ProjectService) schedule(p domain.Project, h *domain.MediaHandle) {
	s.scheduler.Schedule(transcription.Job{
		ProjectID:   p.ID,
		OwnerUserID: p.OwnerUserID,
		Media: transcription.Media{
			Data:     h.Data,
			MimeType: h.MimeType,
			Hash:     p.MediaHash,
		},
	})
}

// publish must not be called with s.mu held. The request context is kept
// for its values only; delivery gets its own deadline.
func (s *ProjectService) publish(ctx context.Context, topic string, p domain.Project) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.Media = nil
	e := events.Event{
		Topic:       topic,
		ProjectID:   p.ID,
		OwnerUserID: p.OwnerUserID,
		At:          s.now().UTC(),
		Project:     &p,
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		logger.New(ctx).LogWarnf("publish_event", "topic=%s project_id=%s error=%v", topic, p.ID, err)
	}
}

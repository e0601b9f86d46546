// Package controller is the top-level state machine of a reviewing client:
// auth, dashboard and project views, the active annotation tab, uploads,
// renames, deletes and notes. It reacts to project events published by the
// background transcription.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reelnotes/reelnotes-backend/internal/annotations"
	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	authdomain "github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	"github.com/reelnotes/reelnotes-backend/internal/events"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	"github.com/reelnotes/reelnotes-backend/internal/playback"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/projects/service"
	"github.com/reelnotes/reelnotes-backend/internal/session"
)

type State string

const (
	StateAuth      State = "auth"
	StateDashboard State = "dashboard"
	StateProject   State = "project"
)

// Layout says which panels of the project view are shown.
type Layout struct {
	MediaPanelVisible   bool
	AnnotationFullWidth bool
}

// Auth is the account side the controller drives.
type Auth interface {
	session.Authenticator
	LoginUser(ctx context.Context, email, password string) (*authdomain.User, string, error)
	RegisterUser(ctx context.Context, email, password, name string) (*authdomain.User, string, error)
}

// Projects is the project side the controller drives; *service.ProjectService
// satisfies it.
type Projects interface {
	Upload(ctx context.Context, userID string, in service.UploadInput) (projdomain.Project, error)
	List(ctx context.Context, userID string) ([]projdomain.Project, error)
	Get(ctx context.Context, userID, projectID string) (projdomain.Project, error)
	Rename(ctx context.Context, userID, projectID, name string) (projdomain.Project, error)
	Delete(ctx context.Context, userID, projectID string, confirmed bool) error
	Retry(ctx context.Context, userID, projectID string) (projdomain.Project, error)
	ListNotes(ctx context.Context, userID, projectID string, kind annodomain.Kind) ([]annodomain.Note, error)
	AddNote(ctx context.Context, userID string, in annodomain.NewNote) (annodomain.Note, error)
	DeleteNote(ctx context.Context, userID, projectID, noteID string) error
}

// Upload is a file picked for upload.
type Upload = service.UploadInput

// NoteInput is a note for the open project. A nil Timestamp takes the
// current playback position.
type NoteInput struct {
	Kind      annodomain.Kind
	Timestamp *float64
	Content   string

	TranscriptSegmentIndex *int
	HighlightStart         *int
	HighlightEnd           *int
	Color                  *string
	Quote                  *string
}

type renameDraft struct {
	projectID string
	name      string
}

// Controller serializes every user action and every applied event.
type Controller struct {
	auth     Auth
	projects Projects
	session  *session.Session
	player   *playback.Coordinator
	bus      events.Bus

	mu       sync.Mutex
	state    State
	tab      playback.Tab
	list     []projdomain.Project
	active   *projdomain.Project
	notes    []annodomain.Note
	renaming *renameDraft

	wg sync.WaitGroup
}

func New(auth Auth, projects Projects, sess *session.Session, player *playback.Coordinator, bus events.Bus) *Controller {
	return &Controller{
		auth:     auth,
		projects: projects,
		session:  sess,
		player:   player,
		bus:      bus,
		state:    StateAuth,
		tab:      playback.TabOriginal,
	}
}

// Init restores a persisted session. With a live session the controller
// lands on the dashboard, otherwise it stays on auth.
func (c *Controller) Init(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.session.Restore(ctx, token)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		c.resetLocked()
		return nil
	}
	return c.enterDashboardLocked(ctx)
}

// Login fails with an *authdomain.AuthError on bad credentials and leaves
// the controller on auth.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, token, err := c.auth.LoginUser(ctx, email, password)
	if err != nil {
		return err
	}
	c.session.Begin(user, token)
	return c.enterDashboardLocked(ctx)
}

func (c *Controller) Register(ctx context.Context, email, password, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, token, err := c.auth.RegisterUser(ctx, email, password, name)
	if err != nil {
		return err
	}
	c.session.Begin(user, token)
	return c.enterDashboardLocked(ctx)
}

// Logout ends the session and returns to auth. Local state is cleared even
// when the remote logout fails.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.session.Teardown(ctx)
	c.resetLocked()
	return err
}

// Upload creates the project, puts it at the head of the list and opens it.
// The transcript arrives later as an event.
func (c *Controller) Upload(ctx context.Context, in Upload) (projdomain.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID, err := c.userIDLocked()
	if err != nil {
		return projdomain.Project{}, err
	}
	p, err := c.projects.Upload(ctx, userID, in)
	if err != nil {
		return projdomain.Project{}, err
	}
	c.upsertLocked(p, true)
	c.openLocked(p, []annodomain.Note{})
	return p, nil
}

// OpenProject switches to the project view on the original tab.
func (c *Controller) OpenProject(ctx context.Context, projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID, err := c.userIDLocked()
	if err != nil {
		return err
	}
	p, err := c.projects.Get(ctx, userID, projectID)
	if err != nil {
		return err
	}
	notes, err := c.projects.ListNotes(ctx, userID, projectID, "")
	if err != nil {
		return err
	}
	c.upsertLocked(p, false)
	c.openLocked(p, notes)
	return nil
}

// CloseProject returns to the dashboard.
func (c *Controller) CloseProject() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateProject {
		c.closeLocked()
	}
}

// SelectTab switches the annotation tab and the playback presentation.
func (c *Controller) SelectTab(tab playback.Tab) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateProject {
		return ErrNoActiveProject
	}
	if err := c.player.ApplyTab(tab); err != nil {
		return err
	}
	c.tab = tab
	return nil
}

// BeginRename puts one project into rename mode, replacing any draft in
// progress.
func (c *Controller) BeginRename(projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(projectID)
	if i < 0 {
		return ErrProjectNotListed
	}
	c.renaming = &renameDraft{projectID: projectID, name: c.list[i].Name}
	return nil
}

func (c *Controller) SetRenameDraft(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.renaming == nil {
		return ErrNoRename
	}
	c.renaming.name = name
	return nil
}

// CommitRename persists the draft and leaves rename mode. A blank draft is
// rejected with projdomain.ErrBlankName and the prior name is kept.
func (c *Controller) CommitRename(ctx context.Context) (projdomain.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	draft := c.renaming
	if draft == nil {
		return projdomain.Project{}, ErrNoRename
	}
	c.renaming = nil

	userID, err := c.userIDLocked()
	if err != nil {
		return projdomain.Project{}, err
	}
	p, err := c.projects.Rename(ctx, userID, draft.projectID, draft.name)
	if err != nil {
		return projdomain.Project{}, err
	}
	c.upsertLocked(p, false)
	return p, nil
}

// CancelRename leaves rename mode without saving.
func (c *Controller) CancelRename() {
	c.mu.Lock()
	c.renaming = nil
	c.mu.Unlock()
}

// Renaming returns the project in rename mode and its draft.
func (c *Controller) Renaming() (projectID, draft string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.renaming == nil {
		return "", "", false
	}
	return c.renaming.projectID, c.renaming.name, true
}

// DeleteProject deletes for good once confirmed; without confirmation it
// returns projdomain.ErrConfirmationRequired and changes nothing.
func (c *Controller) DeleteProject(ctx context.Context, projectID string, confirmed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID, err := c.userIDLocked()
	if err != nil {
		return err
	}
	if err := c.projects.Delete(ctx, userID, projectID, confirmed); err != nil {
		return err
	}
	c.removeLocked(projectID)
	return nil
}

// RetryTranscription starts a new transcription of a project whose first
// attempt failed.
func (c *Controller) RetryTranscription(ctx context.Context, projectID string) (projdomain.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID, err := c.userIDLocked()
	if err != nil {
		return projdomain.Project{}, err
	}
	p, err := c.projects.Retry(ctx, userID, projectID)
	if err != nil {
		return projdomain.Project{}, err
	}
	c.upsertLocked(p, false)
	return p, nil
}

// AddNote adds a note to the open project.
func (c *Controller) AddNote(ctx context.Context, in NoteInput) (annodomain.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID, err := c.userIDLocked()
	if err != nil {
		return annodomain.Note{}, err
	}
	if c.active == nil {
		return annodomain.Note{}, ErrNoActiveProject
	}

	ts := c.player.CurrentTime()
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}
	n, err := c.projects.AddNote(ctx, userID, annodomain.NewNote{
		ProjectID:              c.active.ID,
		Kind:                   in.Kind,
		Timestamp:              ts,
		Content:                in.Content,
		TranscriptSegmentIndex: in.TranscriptSegmentIndex,
		HighlightStart:         in.HighlightStart,
		HighlightEnd:           in.HighlightEnd,
		Color:                  in.Color,
		Quote:                  in.Quote,
	})
	if err != nil {
		return annodomain.Note{}, err
	}
	c.notes = append(c.notes, n)
	return n, nil
}

// DeleteNote is idempotent.
func (c *Controller) DeleteNote(ctx context.Context, noteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	userID, err := c.userIDLocked()
	if err != nil {
		return err
	}
	if c.active == nil {
		return ErrNoActiveProject
	}
	if err := c.projects.DeleteNote(ctx, userID, c.active.ID, noteID); err != nil {
		return err
	}
	for i, n := range c.notes {
		if n.ID == noteID {
			c.notes = append(c.notes[:i:i], c.notes[i+1:]...)
			break
		}
	}
	return nil
}

// NotesByKind returns the open project's notes of one kind, oldest first.
func (c *Controller) NotesByKind(kind annodomain.Kind) []annodomain.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return annotations.FilterByKind(c.notes, kind)
}

// SeekToNote moves playback to where the note points. Verbal notes point
// at the start of their transcript segment.
func (c *Controller) SeekToNote(noteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ErrNoActiveProject
	}
	for _, n := range c.notes {
		if n.ID != noteID {
			continue
		}
		t := n.Timestamp
		if n.Kind == annodomain.KindVerbal && n.TranscriptSegmentIndex != nil {
			if seg, ok := c.active.Segment(*n.TranscriptSegmentIndex); ok {
				t = seg.StartTime
			}
		}
		c.player.Seek(t)
		return nil
	}
	return ErrNoteNotFound
}

// CaptureTimestamp is the playback position a new note would get.
func (c *Controller) CaptureTimestamp() float64 {
	return c.player.CurrentTime()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Tab() playback.Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab
}

// Layout of the project view: the verbal tab hides the media panel and
// gives the annotations the full width.
func (c *Controller) Layout() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateProject && c.tab == playback.TabVerbal {
		return Layout{MediaPanelVisible: false, AnnotationFullWidth: true}
	}
	return Layout{MediaPanelVisible: true, AnnotationFullWidth: false}
}

// Projects returns the visible project list, newest first.
func (c *Controller) Projects() []projdomain.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]projdomain.Project, len(c.list))
	for i, p := range c.list {
		out[i] = p.Clone()
	}
	return out
}

// ActiveProject returns the open project.
func (c *Controller) ActiveProject() (projdomain.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return projdomain.Project{}, false
	}
	return c.active.Clone(), true
}

func (c *Controller) Notes() []annodomain.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]annodomain.Note, len(c.notes))
	copy(out, c.notes)
	return out
}

func (c *Controller) Session() *session.Session {
	return c.session
}

// Start subscribes to project events and applies them in the background
// until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	ch, err := c.bus.Subscribe(ctx, events.TopicProjectUpdated, events.TopicProjectDeleted)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for e := range ch {
			c.HandleEvent(e)
		}
	}()
	return nil
}

// Run is Start followed by waiting for ctx.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.wg.Wait()
	return nil
}

// HandleEvent applies a project event of the signed-in user. Events of
// other users are ignored.
func (c *Controller) HandleEvent(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	uid := c.session.UserID()
	if uid == "" || e.OwnerUserID != uid {
		return
	}

	switch e.Topic {
	case events.TopicProjectUpdated:
		if e.Project == nil {
			return
		}
		p := e.Project.Clone()
		if c.indexLocked(p.ID) >= 0 {
			c.upsertLocked(p, false)
		} else if c.state != StateAuth {
			c.upsertLocked(p, true)
		}
	case events.TopicProjectDeleted:
		c.removeLocked(e.ProjectID)
	default:
		logger.New(context.Background()).LogWarnf("controller_event", "ignored topic=%s", e.Topic)
	}
}

func (c *Controller) userIDLocked() (string, error) {
	id := c.session.UserID()
	if id == "" {
		return "", ErrNotSignedIn
	}
	return id, nil
}

func (c *Controller) enterDashboardLocked(ctx context.Context) error {
	list, err := c.projects.List(ctx, c.session.UserID())
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	c.list = list
	c.state = StateDashboard
	c.active, c.notes, c.renaming = nil, nil, nil
	c.tab = playback.TabOriginal
	return nil
}

func (c *Controller) resetLocked() {
	c.state = StateAuth
	c.list, c.active, c.notes, c.renaming = nil, nil, nil, nil
	c.tab = playback.TabOriginal
}

func (c *Controller) openLocked(p projdomain.Project, notes []annodomain.Note) {
	c.active = &p
	c.notes = notes
	c.state = StateProject
	c.tab = playback.TabOriginal
	c.session.SetActiveProject(p.ID)
	if err := c.player.ApplyTab(playback.TabOriginal); err != nil {
		logger.New(context.Background()).LogError("open_project", err)
	}
}

func (c *Controller) closeLocked() {
	c.active, c.notes = nil, nil
	c.state = StateDashboard
	c.tab = playback.TabOriginal
	c.session.SetActiveProject("")
}

func (c *Controller) indexLocked(projectID string) int {
	for i, p := range c.list {
		if p.ID == projectID {
			return i
		}
	}
	return -1
}

// upsertLocked replaces a listed project in place, or inserts it at the
// head when head is set. The open project is refreshed too.
func (c *Controller) upsertLocked(p projdomain.Project, head bool) {
	if c.active != nil && c.active.ID == p.ID {
		fresh := p.Clone()
		c.active = &fresh
	}
	if i := c.indexLocked(p.ID); i >= 0 {
		if !head {
			c.list[i] = p
			return
		}
		c.list = append(c.list[:i:i], c.list[i+1:]...)
	}
	if head {
		c.list = append([]projdomain.Project{p}, c.list...)
	}
}

func (c *Controller) removeLocked(projectID string) {
	if i := c.indexLocked(projectID); i >= 0 {
		c.list = append(c.list[:i:i], c.list[i+1:]...)
	}
	if c.renaming != nil && c.renaming.projectID == projectID {
		c.renaming = nil
	}
	if c.active != nil && c.active.ID == projectID {
		c.closeLocked()
	}
}

// IsRecoverable reports whether err is a rejection the user can fix and
// retry, as opposed to a storage failure.
func IsRecoverable(err error) bool {
	return authdomain.IsAuthError(err) ||
		errors.Is(err, annodomain.ErrValidation) ||
		errors.Is(err, projdomain.ErrBlankName) ||
		errors.Is(err, projdomain.ErrConfirmationRequired) ||
		errors.Is(err, projdomain.ErrEmptyUpload)
}

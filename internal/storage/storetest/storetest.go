// Package storetest is the behavioural suite every storage.Store backend
// must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	authdomain "github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("ProjectRoundTrip", func(t *testing.T) { testProjectRoundTrip(t, newStore(t)) })
	t.Run("ProjectsNewestFirst", func(t *testing.T) { testProjectsNewestFirst(t, newStore(t)) })
	t.Run("DeleteProject", func(t *testing.T) { testDeleteProject(t, newStore(t)) })
	t.Run("ListTranscribing", func(t *testing.T) { testListTranscribing(t, newStore(t)) })
	t.Run("NotesInsertionOrder", func(t *testing.T) { testNotesInsertionOrder(t, newStore(t)) })
	t.Run("DeleteNote", func(t *testing.T) { testDeleteNote(t, newStore(t)) })
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rec := storage.UserRecord{
		User:         authdomain.User{ID: "u1", Email: "Ada@Example.com", Name: "Ada", CreatedAt: base},
		PasswordHash: "hash",
	}
	require.NoError(t, s.CreateUser(ctx, rec))

	got, err := s.UserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.User.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	u, err := s.UserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.True(t, base.Equal(u.CreatedAt))

	dup := rec
	dup.User.ID = "u2"
	dup.User.Email = " ADA@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, dup), storage.ErrEmailTaken)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.UserByID(ctx, "u2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSessions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "tok", "u1", time.Hour))

	id, err := s.SessionUserID(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	require.NoError(t, s.DeleteSession(ctx, "tok"))
	_, err = s.SessionUserID(ctx, "tok")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// deleting twice is fine
	require.NoError(t, s.DeleteSession(ctx, "tok"))
}

func testProjectRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	p := projdomain.Project{
		ID:          "p1",
		OwnerUserID: "u1",
		Name:        "Demo",
		CreatedAt:   base,
		Transcript: []projdomain.TranscriptSegment{
			{StartTime: 0, EndTime: 1.5, Text: "Hello world."},
		},
		MimeType: "video/mp4",
		Media:    &projdomain.MediaHandle{Data: []byte{1, 2, 3}, MimeType: "video/mp4"},
	}
	require.NoError(t, s.SaveProject(ctx, p))

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Name)
	assert.Equal(t, p.Transcript, got.Transcript)
	assert.Nil(t, got.Media, "media handle must not survive persistence")

	p.Name = "Renamed"
	p.Transcribing = true
	require.NoError(t, s.SaveProject(ctx, p))
	got, err = s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.Transcribing)

	_, err = s.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testProjectsNewestFirst(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveProject(ctx, projdomain.Project{
			ID:          id,
			OwnerUserID: "u1",
			Name:        id,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.SaveProject(ctx, projdomain.Project{ID: "other", OwnerUserID: "u2", Name: "x", CreatedAt: base}))

	list, err := s.GetProjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})

	empty, err := s.GetProjects(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeleteProject(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveProject(ctx, projdomain.Project{ID: "p1", OwnerUserID: "u1", Name: "x", CreatedAt: base}))
	require.NoError(t, s.SaveNote(ctx, annodomain.Note{ID: "n1", ProjectID: "p1", Kind: annodomain.KindVideo, Content: "c", CreatedAt: base}))

	require.NoError(t, s.DeleteProject(ctx, "p1"))
	_, err := s.GetProject(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.GetProjects(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// notes are removed separately by the caller
	notes, err := s.GetNotes(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	require.NoError(t, s.DeleteProject(ctx, "p1"))
}

func testListTranscribing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveProject(ctx, projdomain.Project{ID: "late", OwnerUserID: "u2", Name: "x", CreatedAt: base.Add(time.Hour), Transcribing: true}))
	require.NoError(t, s.SaveProject(ctx, projdomain.Project{ID: "early", OwnerUserID: "u1", Name: "x", CreatedAt: base, Transcribing: true}))
	require.NoError(t, s.SaveProject(ctx, projdomain.Project{ID: "done", OwnerUserID: "u1", Name: "x", CreatedAt: base}))

	list, err := s.ListTranscribing(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "late", list[1].ID)

	finished := list[0]
	finished.Transcribing = false
	require.NoError(t, s.SaveProject(ctx, finished))
	require.NoError(t, s.DeleteProject(ctx, "late"))

	list, err = s.ListTranscribing(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testNotesInsertionOrder(t *testing.T, s storage.Store) {
	ctx := context.Background()
	idx, start, end := 0, 0, 5
	color, quote := "yellow", "Hello"

	ids := []string{"n3", "n1", "n2"}
	for i, id := range ids {
		n := annodomain.Note{
			ID:        id,
			ProjectID: "p1",
			Kind:      annodomain.KindAudio,
			Timestamp: float64(10 - i),
			Content:   "note " + id,
			CreatedAt: base,
		}
		if id == "n2" {
			n.Kind = annodomain.KindVerbal
			n.TranscriptSegmentIndex, n.HighlightStart, n.HighlightEnd = &idx, &start, &end
			n.Color, n.Quote = &color, &quote
		}
		require.NoError(t, s.SaveNote(ctx, n))
	}
	require.NoError(t, s.SaveNote(ctx, annodomain.Note{ID: "x", ProjectID: "p2", Kind: annodomain.KindVideo, Content: "c", CreatedAt: base}))

	notes, err := s.GetNotes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, ids, []string{notes[0].ID, notes[1].ID, notes[2].ID})

	verbal := notes[2]
	require.NotNil(t, verbal.TranscriptSegmentIndex)
	require.NotNil(t, verbal.Quote)
	assert.Equal(t, "Hello", *verbal.Quote)
	assert.Equal(t, 5, *verbal.HighlightEnd)
	assert.Nil(t, notes[0].Color)
}

func testDeleteNote(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveNote(ctx, annodomain.Note{ID: "n1", ProjectID: "p1", Kind: annodomain.KindVideo, Content: "a", CreatedAt: base}))
	require.NoError(t, s.SaveNote(ctx, annodomain.Note{ID: "n2", ProjectID: "p1", Kind: annodomain.KindVideo, Content: "b", CreatedAt: base}))

	require.NoError(t, s.DeleteNote(ctx, "n1"))
	require.NoError(t, s.DeleteNote(ctx, "n1"))
	require.NoError(t, s.DeleteNote(ctx, "never-existed"))

	notes, err := s.GetNotes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n2", notes[0].ID)
}

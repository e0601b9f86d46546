package annotations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage/sqlitestore"
)

var fixedNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func setup(t *testing.T, transcript []projdomain.TranscriptSegment, transcribing bool) (*Model, *sqlitestore.Store) {
	t.Helper()
	store, err := sqlitestore.Open(":memory:", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SaveProject(context.Background(), projdomain.Project{
		ID:           "p1",
		OwnerUserID:  "u1",
		Name:         "demo.mp4",
		CreatedAt:    fixedNow,
		Transcribing: transcribing,
		Transcript:   transcript,
	}))

	seq := 0
	m := NewModel(store,
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(func() string { seq++; return fmt.Sprintf("n%d", seq) }),
	)
	return m, store
}

func hello() []projdomain.TranscriptSegment {
	return []projdomain.TranscriptSegment{{StartTime: 0, EndTime: 2.5, Text: "Hello"}}
}

func TestAddNote_PlainKinds(t *testing.T) {
	m, store := setup(t, nil, true)
	ctx := context.Background()

	n, err := m.AddNote(ctx, domain.NewNote{ProjectID: "p1", Kind: domain.KindVideo, Timestamp: 12.5, Content: "shaky cam"})
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, fixedNow, n.CreatedAt)
	assert.Equal(t, 12.5, n.Timestamp)

	stored, err := store.GetNotes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "shaky cam", stored[0].Content)
	assert.Len(t, m.Notes("p1"), 1)
}

func TestAddNote_VerbalAfterTranscript(t *testing.T) {
	m, _ := setup(t, nil, true)
	ctx := context.Background()

	p, err := m.AttachTranscript(ctx, "p1", hello())
	require.NoError(t, err)
	assert.False(t, p.Transcribing)
	require.Len(t, p.Transcript, 1)

	n, err := m.AddNote(ctx, domain.NewNote{
		ProjectID:              "p1",
		Kind:                   domain.KindVerbal,
		TranscriptSegmentIndex: intp(0),
		HighlightStart:         intp(0),
		HighlightEnd:           intp(5),
		Quote:                  strp("Hello"),
		Color:                  strp("yellow"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", *n.Quote)
	assert.Equal(t, "yellow", *n.Color)
}

func TestAddNote_VerbalCountsRunes(t *testing.T) {
	m, _ := setup(t, []projdomain.TranscriptSegment{{StartTime: 0, EndTime: 1, Text: "café au lait"}}, false)

	_, err := m.AddNote(context.Background(), domain.NewNote{
		ProjectID:              "p1",
		Kind:                   domain.KindVerbal,
		TranscriptSegmentIndex: intp(0),
		HighlightStart:         intp(0),
		HighlightEnd:           intp(4),
		Quote:                  strp("café"),
	})
	assert.NoError(t, err)

	_, err = m.AddNote(context.Background(), domain.NewNote{
		ProjectID:              "p1",
		Kind:                   domain.KindVerbal,
		TranscriptSegmentIndex: intp(0),
		HighlightStart:         intp(0),
		HighlightEnd:           intp(13),
		Quote:                  strp("café au lait"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAddNote_Rejections(t *testing.T) {
	verbal := func(mod func(*domain.NewNote)) domain.NewNote {
		n := domain.NewNote{
			ProjectID:              "p1",
			Kind:                   domain.KindVerbal,
			TranscriptSegmentIndex: intp(0),
			HighlightStart:         intp(0),
			HighlightEnd:           intp(5),
			Quote:                  strp("Hello"),
		}
		mod(&n)
		return n
	}

	cases := []struct {
		name  string
		in    domain.NewNote
		field string
	}{
		{"unknown kind", domain.NewNote{ProjectID: "p1", Kind: "misc", Content: "x"}, "kind"},
		{"negative timestamp", domain.NewNote{ProjectID: "p1", Kind: domain.KindAudio, Timestamp: -1, Content: "x"}, "timestamp"},
		{"blank content", domain.NewNote{ProjectID: "p1", Kind: domain.KindAudio, Content: "  "}, "content"},
		{"plain note with quote", domain.NewNote{ProjectID: "p1", Kind: domain.KindOriginal, Content: "x", Quote: strp("Hello")}, "quote"},
		{"plain note with color", domain.NewNote{ProjectID: "p1", Kind: domain.KindOriginal, Content: "x", Color: strp("red")}, "color"},
		{"missing index", verbal(func(n *domain.NewNote) { n.TranscriptSegmentIndex = nil }), "transcript_segment_index"},
		{"missing start", verbal(func(n *domain.NewNote) { n.HighlightStart = nil }), "highlight_start"},
		{"missing end", verbal(func(n *domain.NewNote) { n.HighlightEnd = nil }), "highlight_end"},
		{"missing quote", verbal(func(n *domain.NewNote) { n.Quote = nil }), "quote"},
		{"index out of range", verbal(func(n *domain.NewNote) { n.TranscriptSegmentIndex = intp(1) }), "transcript_segment_index"},
		{"negative start", verbal(func(n *domain.NewNote) { n.HighlightStart = intp(-1) }), "highlight"},
		{"start after end", verbal(func(n *domain.NewNote) { n.HighlightStart = intp(4); n.HighlightEnd = intp(2) }), "highlight"},
		{"end past text", verbal(func(n *domain.NewNote) { n.HighlightEnd = intp(6) }), "highlight"},
		{"quote mismatch", verbal(func(n *domain.NewNote) { n.Quote = strp("Help") }), "quote"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, store := setup(t, hello(), false)
			_, err := m.AddNote(context.Background(), tc.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)

			stored, err := store.GetNotes(context.Background(), "p1")
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestAddNote_UnknownProject(t *testing.T) {
	m, _ := setup(t, nil, false)
	_, err := m.AddNote(context.Background(), domain.NewNote{ProjectID: "nope", Kind: domain.KindAudio, Content: "x"})
	assert.ErrorIs(t, err, projdomain.ErrNotFound)
}

func TestAddNote_VerbalWhileTranscribing(t *testing.T) {
	m, _ := setup(t, nil, true)
	_, err := m.AddNote(context.Background(), domain.NewNote{
		ProjectID:              "p1",
		Kind:                   domain.KindVerbal,
		TranscriptSegmentIndex: intp(0),
		HighlightStart:         intp(0),
		HighlightEnd:           intp(0),
		Quote:                  strp(""),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteNote_Idempotent(t *testing.T) {
	m, store := setup(t, nil, false)
	ctx := context.Background()

	a, err := m.AddNote(ctx, domain.NewNote{ProjectID: "p1", Kind: domain.KindAudio, Content: "a"})
	require.NoError(t, err)
	_, err = m.AddNote(ctx, domain.NewNote{ProjectID: "p1", Kind: domain.KindAudio, Content: "b"})
	require.NoError(t, err)

	require.NoError(t, m.DeleteNote(ctx, a.ID))
	before := m.Notes("p1")
	require.NoError(t, m.DeleteNote(ctx, a.ID))
	assert.Equal(t, before, m.Notes("p1"))

	stored, err := store.GetNotes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].Content)
}

func TestFilterByKind(t *testing.T) {
	notes := []domain.Note{
		{ID: "1", Kind: domain.KindAudio},
		{ID: "2", Kind: domain.KindVideo},
		{ID: "3", Kind: domain.KindAudio},
	}
	got := FilterByKind(notes, domain.KindAudio)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Empty(t, FilterByKind(notes, domain.KindVerbal))
	assert.Len(t, notes, 3)
}

func TestAttachTranscript_OnlyOnce(t *testing.T) {
	m, _ := setup(t, nil, true)
	ctx := context.Background()

	_, err := m.AttachTranscript(ctx, "p1", hello())
	require.NoError(t, err)

	_, err = m.AttachTranscript(ctx, "p1", hello())
	assert.ErrorIs(t, err, projdomain.ErrNotTranscribing)
	_, err = m.FailTranscription(ctx, "p1", "late failure")
	assert.ErrorIs(t, err, projdomain.ErrNotTranscribing)
}

func TestAttachTranscript_RejectsBadSegments(t *testing.T) {
	cases := map[string][]projdomain.TranscriptSegment{
		"negative start":   {{StartTime: -1, EndTime: 1, Text: "a"}},
		"end before start": {{StartTime: 2, EndTime: 1, Text: "a"}},
		"out of order": {
			{StartTime: 5, EndTime: 6, Text: "b"},
			{StartTime: 1, EndTime: 2, Text: "a"},
		},
	}
	for name, segs := range cases {
		t.Run(name, func(t *testing.T) {
			m, store := setup(t, nil, true)
			_, err := m.AttachTranscript(context.Background(), "p1", segs)
			assert.ErrorIs(t, err, domain.ErrValidation)

			p, err := store.GetProject(context.Background(), "p1")
			require.NoError(t, err)
			assert.True(t, p.Transcribing)
		})
	}
}

func TestFailTranscription(t *testing.T) {
	m, store := setup(t, nil, true)
	ctx := context.Background()

	p, err := m.FailTranscription(ctx, "p1", "quota exceeded")
	require.NoError(t, err)
	assert.False(t, p.Transcribing)
	assert.Empty(t, p.Transcript)

	stored, err := store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, stored.Transcribing)
	assert.Empty(t, stored.Transcript)
	assert.Equal(t, "quota exceeded", stored.TranscriptionError)
}

func TestLoadAndPurge(t *testing.T) {
	m, store := setup(t, nil, false)
	ctx := context.Background()

	for _, c := range []string{"a", "b"} {
		_, err := m.AddNote(ctx, domain.NewNote{ProjectID: "p1", Kind: domain.KindOriginal, Content: c})
		require.NoError(t, err)
	}

	fresh := NewModel(store)
	assert.Nil(t, fresh.Notes("p1"))
	loaded, err := fresh.Load(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].Content)

	require.NoError(t, m.PurgeNotes(ctx, "p1"))
	stored, err := store.GetNotes(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Nil(t, m.Notes("p1"))
}

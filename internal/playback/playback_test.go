package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlayer() (*MemoryMedia, *Coordinator) {
	m := NewMemoryMedia(60)
	c := NewCoordinator(m)
	m.Attach(c)
	return m, c
}

func recv(t *testing.T, ch <-chan float64) float64 {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok)
		return v
	case <-time.After(time.Second):
		t.Fatal("no time update")
		return 0
	}
}

func TestObserveTime_PushesUpdates(t *testing.T) {
	m, c := newPlayer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.ObserveTime(ctx)
	assert.Zero(t, recv(t, ch))

	m.Play()
	m.Advance(1.5)
	assert.Equal(t, 1.5, recv(t, ch))
}

func TestObserveTime_SlowObserverSeesLatest(t *testing.T) {
	m, c := newPlayer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.ObserveTime(ctx)
	m.Play()
	for i := 0; i < 10; i++ {
		m.Advance(1)
	}
	assert.Equal(t, 10.0, recv(t, ch))
	assert.Equal(t, 10.0, c.LastObserved())
}

func TestObserveTime_ClosesOnCancel(t *testing.T) {
	_, c := newPlayer()
	ctx, cancel := context.WithCancel(context.Background())
	ch := c.ObserveTime(ctx)
	<-ch
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	// updates after close must not panic
	c.TimeUpdated(3)
}

func TestSeek_DoesNotResume(t *testing.T) {
	m, c := newPlayer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := c.ObserveTime(ctx)
	<-ch

	c.Seek(42)
	assert.True(t, m.Paused())
	assert.Equal(t, 42.0, c.CurrentTime())
	assert.Equal(t, 42.0, recv(t, ch))

	c.Seek(-3)
	assert.Zero(t, c.CurrentTime())
}

func TestSetMode(t *testing.T) {
	m, c := newPlayer()
	assert.Equal(t, ModeVideo, c.Mode())

	require.NoError(t, c.SetMode(ModeAudio))
	assert.False(t, m.VideoVisible())
	assert.False(t, m.Muted())

	require.NoError(t, c.SetMode(ModeMutedVideo))
	assert.True(t, m.VideoVisible())
	assert.True(t, m.Muted())

	assert.Error(t, c.SetMode("hologram"))
	assert.Equal(t, ModeMutedVideo, c.Mode())
}

func TestApplyTab(t *testing.T) {
	tests := []struct {
		tab  Tab
		want Mode
	}{
		{TabOriginal, ModeVideo},
		{TabVisual, ModeMutedVideo},
		{TabAudio, ModeAudio},
	}
	for _, tt := range tests {
		t.Run(string(tt.tab), func(t *testing.T) {
			_, c := newPlayer()
			require.NoError(t, c.ApplyTab(tt.tab))
			assert.Equal(t, tt.want, c.Mode())
		})
	}
}

func TestApplyTab_VerbalPausesAndStaysPaused(t *testing.T) {
	m, c := newPlayer()
	require.NoError(t, c.ApplyTab(TabAudio))
	m.Play()

	require.NoError(t, c.ApplyTab(TabVerbal))
	assert.True(t, m.Paused())
	assert.Equal(t, ModeAudio, c.Mode(), "verbal keeps the mode")

	require.NoError(t, c.ApplyTab(TabOriginal))
	assert.True(t, m.Paused(), "leaving verbal must not resume")

	assert.Error(t, c.ApplyTab("credits"))
}

func TestParseTab(t *testing.T) {
	tab, err := ParseTab(" Verbal ")
	require.NoError(t, err)
	assert.Equal(t, TabVerbal, tab)

	_, err = ParseTab("video")
	assert.Error(t, err)
}

func TestMemoryMedia_StopsAtEnd(t *testing.T) {
	m, _ := newPlayer()
	m.Play()
	m.Advance(90)
	assert.Equal(t, 60.0, m.CurrentTime())
	assert.True(t, m.Paused())
}

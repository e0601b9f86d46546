// Package playback keeps the media element and the annotation views in
// step: it publishes the playback position, seeks, and switches the
// presentation mode to match the active annotation tab.
package playback

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Media is the opaque media element being reviewed.
type Media interface {
	CurrentTime() float64
	Seek(t float64)
	Play()
	Pause()
	Paused() bool
	SetMuted(muted bool)
	SetVideoVisible(visible bool)
}

type Mode string

const (
	ModeVideo      Mode = "video"
	ModeAudio      Mode = "audio"
	ModeMutedVideo Mode = "muted-video"
)

// Tab is an annotation review dimension.
type Tab string

const (
	TabOriginal Tab = "original"
	TabVisual   Tab = "visual"
	TabAudio    Tab = "audio"
	TabVerbal   Tab = "verbal"
)

func ParseTab(s string) (Tab, error) {
	t := Tab(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TabOriginal, TabVisual, TabAudio, TabVerbal:
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

type Coordinator struct {
	media Media

	mu        sync.Mutex
	mode      Mode
	last      float64
	observers map[chan float64]struct{}
}

func NewCoordinator(media Media) *Coordinator {
	c := &Coordinator{
		media:     media,
		observers: make(map[chan float64]struct{}),
	}
	c.applyMode(ModeVideo)
	return c
}

// ObserveTime returns a channel of playback positions, starting with the
// current one. Each observer only holds the latest position, so a slow
// reader skips values instead of holding up the media element. The channel
// closes when ctx is done.
func (c *Coordinator) ObserveTime(ctx context.Context) <-chan float64 {
	ch := make(chan float64, 1)

	c.mu.Lock()
	c.observers[ch] = struct{}{}
	ch <- c.media.CurrentTime()
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.observers, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

// TimeUpdated is called by the media element as the position changes.
func (c *Coordinator) TimeUpdated(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = t
	for ch := range c.observers {
		select {
		case <-ch:
		default:
		}
		ch <- t
	}
}

// CurrentTime reads the media position directly.
func (c *Coordinator) CurrentTime() float64 {
	return c.media.CurrentTime()
}

// LastObserved is the last position pushed to observers.
func (c *Coordinator) LastObserved() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Seek jumps to t seconds. A paused element stays paused.
func (c *Coordinator) Seek(t float64) {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	c.media.Seek(t)
	c.TimeUpdated(t)
}

func (c *Coordinator) SetMode(m Mode) error {
	switch m {
	case ModeVideo, ModeAudio, ModeMutedVideo:
	default:
		return fmt.Errorf("unknown playback mode %q", m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyMode(m)
	return nil
}

func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ApplyTab sets the presentation for the tab. The verbal tab pauses
// playback and keeps the mode; leaving it never resumes playback.
func (c *Coordinator) ApplyTab(tab Tab) error {
	switch tab {
	case TabOriginal:
		return c.SetMode(ModeVideo)
	case TabVisual:
		return c.SetMode(ModeMutedVideo)
	case TabAudio:
		return c.SetMode(ModeAudio)
	case TabVerbal:
		c.media.Pause()
		return nil
	}
	return fmt.Errorf("unknown tab %q", tab)
}

// Paused reports the media element's state.
func (c *Coordinator) Paused() bool {
	return c.media.Paused()
}

func (c *Coordinator) applyMode(m Mode) {
	c.mode = m
	c.media.SetVideoVisible(m != ModeAudio)
	c.media.SetMuted(m == ModeMutedVideo)
}

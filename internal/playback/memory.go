package playback

import "sync"

// MemoryMedia is a headless media element. Advance moves the position while
// playing and reports it to the attached coordinator, the way a real
// element fires time updates.
type MemoryMedia struct {
	mu       sync.Mutex
	position float64
	duration float64
	paused   bool
	muted    bool
	visible  bool
	onTime   func(float64)
}

var _ Media = (*MemoryMedia)(nil)

// NewMemoryMedia returns a paused element of the given length in seconds.
// A zero duration means unbounded.
func NewMemoryMedia(duration float64) *MemoryMedia {
	return &MemoryMedia{duration: duration, paused: true, visible: true}
}

// Attach routes time updates to c.
func (m *MemoryMedia) Attach(c *Coordinator) {
	m.mu.Lock()
	m.onTime = c.TimeUpdated
	m.mu.Unlock()
}

// Advance plays dt seconds forward if not paused.
func (m *MemoryMedia) Advance(dt float64) {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return
	}
	m.position += dt
	if m.duration > 0 && m.position >= m.duration {
		m.position, m.paused = m.duration, true
	}
	pos, notify := m.position, m.onTime
	m.mu.Unlock()

	if notify != nil {
		notify(pos)
	}
}

func (m *MemoryMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *MemoryMedia) Seek(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duration > 0 && t > m.duration {
		t = m.duration
	}
	m.position = t
}

func (m *MemoryMedia) Play() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

func (m *MemoryMedia) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

func (m *MemoryMedia) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *MemoryMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

func (m *MemoryMedia) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *MemoryMedia) SetVideoVisible(visible bool) {
	m.mu.Lock()
	m.visible = visible
	m.mu.Unlock()
}

func (m *MemoryMedia) VideoVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

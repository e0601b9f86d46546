package service

import (
	"sync"

	"github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

// mediaRegistry holds the transient upload bytes of each project for as
// long as a transcription may still need them. Nothing here is persisted.
type mediaRegistry struct {
	mu    sync.RWMutex
	items map[string]*domain.MediaHandle
}

func newMediaRegistry() *mediaRegistry {
	return &mediaRegistry{items: make(map[string]*domain.MediaHandle)}
}

func (r *mediaRegistry) put(projectID string, h *domain.MediaHandle) {
	r.mu.Lock()
	r.items[projectID] = h
	r.mu.Unlock()
}

func (r *mediaRegistry) get(projectID string) *domain.MediaHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[projectID]
}

func (r *mediaRegistry) release(projectID string) {
	r.mu.Lock()
	delete(r.items, projectID)
	r.mu.Unlock()
}

func (r *mediaRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

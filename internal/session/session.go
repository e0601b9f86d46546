// Package session holds the signed-in user and the open project of one
// client, with an explicit start and end.
package session

import (
	"context"
	"sync"

	"github.com/reelnotes/reelnotes-backend/internal/auth/domain"
)

// Authenticator is the part of the auth service a session needs.
type Authenticator interface {
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
	LogoutUser(ctx context.Context, token string) error
}

type Session struct {
	auth Authenticator

	mu              sync.RWMutex
	token           string
	user            *domain.User
	activeProjectID string
}

func New(auth Authenticator) *Session {
	return &Session{auth: auth}
}

// Restore reads the persisted session behind token. It reports whether a
// user is signed in afterwards.
func (s *Session) Restore(ctx context.Context, token string) (bool, error) {
	user, err := s.auth.CurrentUser(ctx, token)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeProjectID = ""
	if user == nil {
		s.token, s.user = "", nil
		return false, nil
	}
	s.token, s.user = token, user
	return true, nil
}

// Begin records a fresh login.
func (s *Session) Begin(user *domain.User, token string) {
	s.mu.Lock()
	s.user, s.token, s.activeProjectID = user, token, ""
	s.mu.Unlock()
}

// Teardown deletes the persisted session and clears the user and the
// active project. The local state is cleared even if the delete fails.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.token, s.user, s.activeProjectID = "", nil, ""
	s.mu.Unlock()

	if token == "" {
		return nil
	}
	return s.auth.LogoutUser(ctx, token)
}

func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SignedIn() bool {
	return s.User() != nil
}

func (s *Session) ActiveProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeProjectID
}

func (s *Session) SetActiveProject(id string) {
	s.mu.Lock()
	s.activeProjectID = id
	s.mu.Unlock()
}

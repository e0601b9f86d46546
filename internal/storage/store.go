// Package storage defines the key-value store contract the application
// persists users, sessions, projects and notes through. Backends live in
// sub-packages.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	authdomain "github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
)

var (
	ErrNotFound   = errors.New("storage: record not found")
	ErrEmailTaken = errors.New("storage: email already registered")
)

// UserRecord is a user plus the credential material the store keeps for it.
type UserRecord struct {
	User         authdomain.User `json:"user"`
	PasswordHash string          `json:"password_hash"`
}

// Store is accessed synchronously from the caller's point of view; concurrent
// saves of the same id are last-write-wins.
type Store interface {
	CreateUser(ctx context.Context, rec UserRecord) error
	UserByEmail(ctx context.Context, email string) (*UserRecord, error)
	UserByID(ctx context.Context, id string) (*authdomain.User, error)

	SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error
	SessionUserID(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error

	// GetProjects returns the owner's projects, newest first.
	GetProjects(ctx context.Context, userID string) ([]projdomain.Project, error)
	GetProject(ctx context.Context, id string) (*projdomain.Project, error)
	SaveProject(ctx context.Context, p projdomain.Project) error
	// DeleteProject is idempotent and leaves the project's notes in place.
	DeleteProject(ctx context.Context, id string) error
	// ListTranscribing returns every project, of any owner, still marked
	// as transcribing.
	ListTranscribing(ctx context.Context) ([]projdomain.Project, error)

	// GetNotes returns a project's notes in insertion order.
	GetNotes(ctx context.Context, projectID string) ([]annodomain.Note, error)
	SaveNote(ctx context.Context, n annodomain.Note) error
	// DeleteNote is idempotent.
	DeleteNote(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// NormalizeEmail is the form emails are indexed under.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
)

const minPasswordLength = 6

type AuthService struct {
	store      storage.Store
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

type Option func(*AuthService)

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *AuthService) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(store storage.Store, sessionTTL time.Duration, opts ...Option) *AuthService {
	s := &AuthService{
		store:      store,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUser creates the account and opens a session for it.
func (s *AuthService) RegisterUser(ctx context.Context, email, password, name string) (*domain.User, string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, "", domain.InvalidInput("a valid email is required")
	}
	email = addr.Address
	if len(password) < minPasswordLength {
		return nil, "", domain.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Email:     storage.NormalizeEmail(email),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	err = s.store.CreateUser(ctx, storage.UserRecord{User: user, PasswordHash: string(hash)})
	if errors.Is(err, storage.ErrEmailTaken) {
		return nil, "", domain.EmailTaken(user.Email)
	}
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	logger.New(ctx).LogInfof("register_user", "user_id=%s", user.ID)
	return &user, token, nil
}

// LoginUser checks the credentials and opens a session. Unknown emails and
// wrong passwords fail the same way.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*domain.User, string, error) {
	rec, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", domain.InvalidCredentials()
	}
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, "", domain.InvalidCredentials()
	}

	token, err := s.openSession(ctx, rec.User.ID)
	if err != nil {
		return nil, "", err
	}
	logger.New(ctx).LogInfof("login_user", "user_id=%s", rec.User.ID)
	user := rec.User
	return &user, token, nil
}

// CurrentUser resolves a session token. It returns nil, nil when the token
// does not name a live session.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	userID, err := s.store.SessionUserID(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		// session outlived its user
		_ = s.store.DeleteSession(ctx, token)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// LogoutUser ends the session. Unknown tokens are ignored.
func (s *AuthService) LogoutUser(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *AuthService) openSession(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.store.SaveSession(ctx, token, userID, s.sessionTTL); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

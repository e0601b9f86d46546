// Package postgres implements storage.Store on PostgreSQL through pgx.
// Records are JSONB documents; only the columns needed for lookups and
// ordering are broken out.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	authdomain "github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
)

const uniqueViolation = "23505"

type Store struct {
	pool      *pgxpool.Pool
	namespace string
}

var _ storage.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, namespace string) *Store {
	if namespace == "" {
		namespace = "reelnotes"
	}
	return &Store{pool: pool, namespace: namespace}
}

func (s *Store) CreateUser(ctx context.Context, rec storage.UserRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	const q = `
INSERT INTO kv_users (namespace, id, email, data)
VALUES ($1, $2, $3, $4);
`
	_, err = s.pool.Exec(ctx, q, s.namespace, rec.User.ID, storage.NormalizeEmail(rec.User.Email), data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*storage.UserRecord, error) {
	const q = `SELECT data FROM kv_users WHERE namespace = $1 AND email = $2;`
	var rec storage.UserRecord
	if err := s.queryJSON(ctx, &rec, q, s.namespace, storage.NormalizeEmail(email)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*authdomain.User, error) {
	const q = `SELECT data FROM kv_users WHERE namespace = $1 AND id = $2;`
	var rec storage.UserRecord
	if err := s.queryJSON(ctx, &rec, q, s.namespace, id); err != nil {
		return nil, err
	}
	return &rec.User, nil
}

func (s *Store) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	const q = `
INSERT INTO kv_sessions (namespace, token, user_id, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (namespace, token) DO UPDATE
SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at;
`
	if _, err := s.pool.Exec(ctx, q, s.namespace, token, userID, expires); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) SessionUserID(ctx context.Context, token string) (string, error) {
	const q = `
SELECT user_id FROM kv_sessions
WHERE namespace = $1 AND token = $2 AND (expires_at IS NULL OR expires_at > now());
`
	var userID string
	err := s.pool.QueryRow(ctx, q, s.namespace, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	const q = `DELETE FROM kv_sessions WHERE namespace = $1 AND token = $2;`
	if _, err := s.pool.Exec(ctx, q, s.namespace, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) GetProjects(ctx context.Context, userID string) ([]projdomain.Project, error) {
	const q = `
SELECT data FROM kv_projects
WHERE namespace = $1 AND owner_user_id = $2
ORDER BY created_at DESC, id DESC;
`
	rows, err := s.pool.Query(ctx, q, s.namespace, userID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := make([]projdomain.Project, 0, 16)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p projdomain.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*projdomain.Project, error) {
	const q = `SELECT data FROM kv_projects WHERE namespace = $1 AND id = $2;`
	var p projdomain.Project
	if err := s.queryJSON(ctx, &p, q, s.namespace, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProject(ctx context.Context, p projdomain.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	const q = `
INSERT INTO kv_projects (namespace, id, owner_user_id, created_at, data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (namespace, id) DO UPDATE
SET owner_user_id = EXCLUDED.owner_user_id, created_at = EXCLUDED.created_at, data = EXCLUDED.data;
`
	if _, err := s.pool.Exec(ctx, q, s.namespace, p.ID, p.OwnerUserID, p.CreatedAt, data); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	const q = `DELETE FROM kv_projects WHERE namespace = $1 AND id = $2;`
	if _, err := s.pool.Exec(ctx, q, s.namespace, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *Store) ListTranscribing(ctx context.Context) ([]projdomain.Project, error) {
	const q = `
SELECT data FROM kv_projects
WHERE namespace = $1 AND (data->>'transcribing')::boolean
ORDER BY created_at ASC;
`
	rows, err := s.pool.Query(ctx, q, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("query transcribing projects: %w", err)
	}
	defer rows.Close()

	var out []projdomain.Project
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p projdomain.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetNotes(ctx context.Context, projectID string) ([]annodomain.Note, error) {
	const q = `
SELECT data FROM kv_notes
WHERE namespace = $1 AND project_id = $2
ORDER BY seq ASC;
`
	rows, err := s.pool.Query(ctx, q, s.namespace, projectID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := make([]annodomain.Note, 0, 16)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		var n annodomain.Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("unmarshal note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveNote(ctx context.Context, n annodomain.Note) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}
	const q = `
INSERT INTO kv_notes (namespace, id, project_id, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (namespace, id) DO UPDATE
SET project_id = EXCLUDED.project_id, data = EXCLUDED.data;
`
	if _, err := s.pool.Exec(ctx, q, s.namespace, n.ID, n.ProjectID, data); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	const q = `DELETE FROM kv_notes WHERE namespace = $1 AND id = $2;`
	if _, err := s.pool.Exec(ctx, q, s.namespace, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) queryJSON(ctx context.Context, dst interface{}, q string, args ...interface{}) error {
	var raw []byte
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("query: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

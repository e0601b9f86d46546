// Package sqlitestore implements storage.Store on an embedded SQLite file,
// the single-machine equivalent of the browser's origin-scoped storage.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	authdomain "github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	email TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (namespace, id),
	UNIQUE (namespace, email)
);

CREATE TABLE IF NOT EXISTS sessions (
	namespace TEXT NOT NULL,
	token TEXT NOT NULL,
	user_id TEXT NOT NULL,
	expires_at INTEGER,
	PRIMARY KEY (namespace, token)
);

CREATE TABLE IF NOT EXISTS projects (
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	owner_user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (namespace, id)
);
CREATE INDEX IF NOT EXISTS projects_owner ON projects (namespace, owner_user_id, created_at);

CREATE TABLE IF NOT EXISTS notes (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (namespace, id)
);
CREATE INDEX IF NOT EXISTS notes_project ON notes (namespace, project_id, seq);
`

// Store keeps each record as a JSON document keyed by id.
type Store struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path. Use ":memory:" in tests.
func Open(path, namespace string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if namespace == "" {
		namespace = "reelnotes"
	}
	return &Store{db: db, namespace: namespace, now: time.Now}, nil
}

func (s *Store) CreateUser(ctx context.Context, rec storage.UserRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (namespace, id, email, data) VALUES (?, ?, ?, ?)`,
		s.namespace, rec.User.ID, storage.NormalizeEmail(rec.User.Email), string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*storage.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM users WHERE namespace = ? AND email = ?`,
		s.namespace, storage.NormalizeEmail(email))
	var rec storage.UserRecord
	if err := scanJSON(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*authdomain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM users WHERE namespace = ? AND id = ?`, s.namespace, id)
	var rec storage.UserRecord
	if err := scanJSON(row, &rec); err != nil {
		return nil, err
	}
	return &rec.User, nil
}

func (s *Store) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	var expires sql.NullInt64
	if ttl > 0 {
		expires = sql.NullInt64{Int64: s.now().Add(ttl).UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (namespace, token, user_id, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, token) DO UPDATE SET user_id = excluded.user_id, expires_at = excluded.expires_at`,
		s.namespace, token, userID, expires)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) SessionUserID(ctx context.Context, token string) (string, error) {
	var userID string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE namespace = ? AND token = ?`,
		s.namespace, token).Scan(&userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if expires.Valid && s.now().UnixMilli() >= expires.Int64 {
		_ = s.DeleteSession(ctx, token)
		return "", storage.ErrNotFound
	}
	return userID, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE namespace = ? AND token = ?`, s.namespace, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) GetProjects(ctx context.Context, userID string) ([]projdomain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM projects
		WHERE namespace = ? AND owner_user_id = ?
		ORDER BY created_at DESC, id DESC`, s.namespace, userID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := make([]projdomain.Project, 0, 16)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p projdomain.Project
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id string) (*projdomain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM projects WHERE namespace = ? AND id = ?`, s.namespace, id)
	var p projdomain.Project
	if err := scanJSON(row, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProject(ctx context.Context, p projdomain.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (namespace, id, owner_user_id, created_at, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, id) DO UPDATE SET
			owner_user_id = excluded.owner_user_id,
			created_at = excluded.created_at,
			data = excluded.data`,
		s.namespace, p.ID, p.OwnerUserID, p.CreatedAt.UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM projects WHERE namespace = ? AND id = ?`, s.namespace, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *Store) ListTranscribing(ctx context.Context) ([]projdomain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM projects
		WHERE namespace = ? AND json_extract(data, '$.transcribing') = 1
		ORDER BY created_at ASC`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("query transcribing projects: %w", err)
	}
	defer rows.Close()

	var out []projdomain.Project
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p projdomain.Project
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetNotes(ctx context.Context, projectID string) ([]annodomain.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM notes
		WHERE namespace = ? AND project_id = ?
		ORDER BY seq ASC`, s.namespace, projectID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := make([]annodomain.Note, 0, 16)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		var n annodomain.Note
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("unmarshal note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) SaveNote(ctx context.Context, n annodomain.Note) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (namespace, id, project_id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, id) DO UPDATE SET project_id = excluded.project_id, data = excluded.data`,
		s.namespace, n.ID, n.ProjectID, string(data))
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE namespace = ? AND id = ?`, s.namespace, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanJSON(row *sql.Row, dst interface{}) error {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("scan: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

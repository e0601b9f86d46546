// Package redisstore implements storage.Store on Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	annodomain "github.com/reelnotes/reelnotes-backend/internal/annotations/domain"
	authdomain "github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	projdomain "github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/storage"
)

// Key layout, all under "{namespace}:":
//
//	user:{id}               user record JSON
//	email:{email}           user id
//	session:{token}         user id, expiring
//	project:{id}            project JSON
//	user:{id}:projects      zset of project ids scored by created_at
//	note:{id}               note JSON
//	project:{id}:notes      zset of note ids scored by insertion sequence
//	seq:notes               insertion sequence counter
//	transcribing            set of project ids still transcribing
type Store struct {
	client    *redis.Client
	namespace string
}

var _ storage.Store = (*Store)(nil)

func New(client *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = "reelnotes"
	}
	return &Store{client: client, namespace: namespace}
}

func (s *Store) CreateUser(ctx context.Context, rec storage.UserRecord) error {
	email := storage.NormalizeEmail(rec.User.Email)

	ok, err := s.client.SetNX(ctx, s.emailKey(email), rec.User.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !ok {
		return storage.ErrEmailTaken
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.client.Del(ctx, s.emailKey(email))
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.client.Set(ctx, s.userKey(rec.User.ID), data, 0).Err(); err != nil {
		s.client.Del(ctx, s.emailKey(email))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*storage.UserRecord, error) {
	id, err := s.client.Get(ctx, s.emailKey(storage.NormalizeEmail(email))).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return s.userRecord(ctx, id)
}

func (s *Store) UserByID(ctx context.Context, id string) (*authdomain.User, error) {
	rec, err := s.userRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec.User, nil
}

func (s *Store) userRecord(ctx context.Context, id string) (*storage.UserRecord, error) {
	var rec storage.UserRecord
	if err := s.getJSON(ctx, s.userKey(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.sessionKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) SessionUserID(ctx context.Context, token string) (string, error) {
	id, err := s.client.Get(ctx, s.sessionKey(token)).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) GetProjects(ctx context.Context, userID string) ([]projdomain.Project, error) {
	ids, err := s.client.ZRevRange(ctx, s.userProjectsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	out := make([]projdomain.Project, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.projectKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// index entry without a record; skip it
			continue
		}
		var p projdomain.Project
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*projdomain.Project, error) {
	var p projdomain.Project
	if err := s.getJSON(ctx, s.projectKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProject(ctx context.Context, p projdomain.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.projectKey(p.ID), data, 0)
	pipe.ZAdd(ctx, s.userProjectsKey(p.OwnerUserID), redis.Z{
		Score:  float64(p.CreatedAt.UnixMilli()),
		Member: p.ID,
	})
	if p.Transcribing {
		pipe.SAdd(ctx, s.transcribingKey(), p.ID)
	} else {
		pipe.SRem(ctx, s.transcribingKey(), p.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	p, err := s.GetProject(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.projectKey(id))
	pipe.ZRem(ctx, s.userProjectsKey(p.OwnerUserID), id)
	pipe.SRem(ctx, s.transcribingKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (s *Store) ListTranscribing(ctx context.Context) ([]projdomain.Project, error) {
	ids, err := s.client.SMembers(ctx, s.transcribingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transcribing projects: %w", err)
	}
	var out []projdomain.Project
	for _, id := range ids {
		p, err := s.GetProject(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Transcribing {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetNotes(ctx context.Context, projectID string) ([]annodomain.Note, error) {
	ids, err := s.client.ZRange(ctx, s.projectNotesKey(projectID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	out := make([]annodomain.Note, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.noteKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var n annodomain.Note
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal note: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) SaveNote(ctx context.Context, n annodomain.Note) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal note: %w", err)
	}
	seq, err := s.client.Incr(ctx, s.noteSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate note sequence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.noteKey(n.ID), data, 0)
	// NX keeps the original position if the same note is saved twice
	pipe.ZAddNX(ctx, s.projectNotesKey(n.ProjectID), redis.Z{Score: float64(seq), Member: n.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	return nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	var n annodomain.Note
	err := s.getJSON(ctx, s.noteKey(id), &n)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.noteKey(id))
	pipe.ZRem(ctx, s.projectNotesKey(n.ProjectID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) getJSON(ctx context.Context, key string, dst interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// Helper methods for key generation
func (s *Store) userKey(id string) string         { return fmt.Sprintf("%s:user:%s", s.namespace, id) }
func (s *Store) emailKey(email string) string     { return fmt.Sprintf("%s:email:%s", s.namespace, email) }
func (s *Store) sessionKey(token string) string   { return fmt.Sprintf("%s:session:%s", s.namespace, token) }
func (s *Store) projectKey(id string) string      { return fmt.Sprintf("%s:project:%s", s.namespace, id) }
func (s *Store) noteKey(id string) string         { return fmt.Sprintf("%s:note:%s", s.namespace, id) }
func (s *Store) noteSeqKey() string               { return fmt.Sprintf("%s:seq:notes", s.namespace) }
func (s *Store) transcribingKey() string          { return fmt.Sprintf("%s:transcribing", s.namespace) }
func (s *Store) userProjectsKey(id string) string { return fmt.Sprintf("%s:user:%s:projects", s.namespace, id) }
func (s *Store) projectNotesKey(id string) string { return fmt.Sprintf("%s:project:%s:notes", s.namespace, id) }

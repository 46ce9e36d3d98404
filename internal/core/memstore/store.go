// Package memstore keeps metadata and vectors in process memory. It backs
// METADATA_BACKEND=memory / VECTOR_BACKEND=memory and the tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.DbClient = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]models.User
	files    map[int64]models.FileRecord
	messages map[int64]models.ChatMessage
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    map[int64]models.User{},
		files:    map[int64]models.FileRecord{},
		messages: map[int64]models.ChatMessage{},
		now:      time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("nil user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return fmt.Errorf("username %q: %w", user.Username, core.ErrConflict)
		}
	}
	user.ID = s.id()
	user.CreatedAt = s.now()
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) CreateFile(_ context.Context, rec *models.FileRecord) error {
	if rec == nil {
		return fmt.Errorf("nil file record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.id()
	rec.CreatedAt = s.now()
	s.files[rec.ID] = *rec
	return nil
}

func (s *Store) GetFile(_ context.Context, id int64) (*models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) ListFiles(_ context.Context) ([]models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FileRecord, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	// newest first, like the SQL store
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) DeleteFile(_ context.Context, id int64) (*models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	delete(s.files, id)
	return &rec, nil
}

func (s *Store) FinalizeFile(_ context.Context, id int64, status models.FileStatus, msg *models.ChatMessage) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if rec.Status != models.FileStatusProcessing {
		return false, nil
	}
	rec.Status = status
	s.files[id] = rec

	msg.ID = s.id()
	msg.CreatedAt = s.now()
	s.messages[msg.ID] = *msg
	return true, nil
}

func (s *Store) CreateMessage(_ context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return fmt.Errorf("nil message")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.id()
	msg.CreatedAt = s.now()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *Store) GetMessage(_ context.Context, id int64) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &m, nil
}

func (s *Store) ListMessages(_ context.Context, userID int64, sessionID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m models.ChatMessage) bool {
		return m.UserID == userID && m.SessionID == sessionID
	}), nil
}

func (s *Store) ListMessagesBySession(_ context.Context, sessionID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m models.ChatMessage) bool { return m.SessionID == sessionID }), nil
}

// collect returns matching messages oldest first, hiding outcome messages of
// deleted files. Callers hold the read lock.
func (s *Store) collect(match func(models.ChatMessage) bool) []models.ChatMessage {
	out := []models.ChatMessage{}
	for _, m := range s.messages {
		if !match(m) {
			continue
		}
		if m.FileID != nil {
			if _, ok := s.files[*m.FileID]; !ok {
				continue
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) DeleteMessage(_ context.Context, id int64) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	delete(s.messages, id)
	return &m, nil
}

func (s *Store) ListSessionIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, m := range s.messages {
		if m.SessionID != "" {
			seen[m.SessionID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error { return nil }

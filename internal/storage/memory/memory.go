// memory — потокобезопасное хранилище в памяти процесса.
// Используется в локальном окружении (storage.driver=memory) и в тестах.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
)

type Storage struct {
	mu sync.RWMutex

	users   map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID

	sessions map[uuid.UUID]models.Session
	byUser   map[uuid.UUID]map[uuid.UUID]struct{}
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:    make(map[uuid.UUID]models.User),
		byEmail:  make(map[string]uuid.UUID),
		sessions: make(map[uuid.UUID]models.Session),
		byUser:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Ping всегда успешен.
func (s *Storage) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Storage) Close() {}

// SaveUser создает нового пользователя.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	email := strings.ToLower(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.users[user.ID] = *user
	s.byEmail[email] = user.ID

	return nil
}

// UserByEmail находит пользователя по email (без учёта регистра).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := s.users[id]
	return &u, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &u, nil
}

// SaveSession сохраняет новую сессию.
func (s *Storage) SaveSession(ctx context.Context, session *models.Session) error {
	const op = "storage.memory.SaveSession"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.putSessionLocked(*session)
	return nil
}

// SessionByID находит действующую сессию по ID.
func (s *Storage) SessionByID(ctx context.Context, id uuid.UUID, now time.Time) (*models.Session, error) {
	const op = "storage.memory.SessionByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &sess, nil
}

// RotateSession заменяет сессию oldID на next под одной блокировкой.
func (s *Storage) RotateSession(ctx context.Context, oldID uuid.UUID, oldHash string, next *models.Session, now time.Time) error {
	const op = "storage.memory.RotateSession"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[oldID]
	if !ok || old.Expired(now) || old.RefreshSecretHash != oldHash {
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
	if _, ok := s.sessions[next.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.deleteSessionLocked(old)
	s.putSessionLocked(*next)

	return nil
}

// DeleteSession удаляет сессию по ID.
func (s *Storage) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.memory.DeleteSession"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}

	s.deleteSessionLocked(sess)
	return true, nil
}

// DeleteUserSessions удаляет все сессии пользователя.
func (s *Storage) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.memory.DeleteUserSessions"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byUser[userID]
	for id := range ids {
		delete(s.sessions, id)
	}
	delete(s.byUser, userID)

	return int64(len(ids)), nil
}

// DeleteExpiredSessions удаляет все сессии с истёкшим сроком.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.DeleteExpiredSessions"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, sess := range s.sessions {
		if sess.Expired(now) {
			s.deleteSessionLocked(sess)
			n++
		}
	}

	return n, nil
}

func (s *Storage) putSessionLocked(sess models.Session) {
	s.sessions[sess.ID] = sess

	set, ok := s.byUser[sess.UserID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		s.byUser[sess.UserID] = set
	}
	set[sess.ID] = struct{}{}
}

func (s *Storage) deleteSessionLocked(sess models.Session) {
	delete(s.sessions, sess.ID)

	if set, ok := s.byUser[sess.UserID]; ok {
		delete(set, sess.ID)
		if len(set) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)

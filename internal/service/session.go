package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
)

// SessionStore — сессии поверх storage.SessionStorage.
//
// Секрет refresh-токена хранится только в виде медленного хэша. Поиск
// сессии идёт по первичному ключу, сверка хэша выполняется один раз
// для найденной записи.
type SessionStore struct {
	storage storage.SessionStorage
	hasher  SecretHasher
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionStore создаёт SessionStore. ttl — абсолютное время жизни сессии.
func NewSessionStore(st storage.SessionStorage, h SecretHasher, ttl time.Duration, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}

	return &SessionStore{storage: st, hasher: h, ttl: ttl, now: now}
}

// Create сохраняет новую сессию с хэшем secret. Если id == uuid.Nil,
// идентификатор генерируется; иначе используется переданный, чтобы он совпадал
// с sessionId, уже зашитым в выпущенные токены.
func (s *SessionStore) Create(ctx context.Context, id, userID uuid.UUID, secret, deviceID string) (*models.Session, error) {
	const op = "service.session.Create"

	session, err := s.build(ctx, id, userID, secret, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// FindByID возвращает действующую сессию или storage.ErrNotFound,
// если её нет или она истекла.
func (s *SessionStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const op = "service.session.FindByID"

	session, err := s.storage.SessionByID(ctx, id, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// VerifySecret сверяет предъявленный секрет с хэшем сессии.
// Несовпадение — hasher.ErrMismatch.
func (s *SessionStore) VerifySecret(ctx context.Context, session *models.Session, secret string) error {
	const op = "service.session.VerifySecret"

	if err := s.hasher.Compare(ctx, session.RefreshSecretHash, secret); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Rotate атомарно заменяет old новой сессией nextID с хэшем secret.
// Пользователь и метка устройства сохраняются, срок отсчитывается заново.
// Если old уже ротирована, удалена или истекла — storage.ErrConflict.
func (s *SessionStore) Rotate(ctx context.Context, old *models.Session, nextID uuid.UUID, secret string) (*models.Session, error) {
	const op = "service.session.Rotate"

	next, err := s.build(ctx, nextID, old.UserID, secret, old.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.RotateSession(ctx, old.ID, old.RefreshSecretHash, next, next.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return next, nil
}

// Delete удаляет сессию; false, если её уже не было.
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "service.session.Delete"

	ok, err := s.storage.DeleteSession(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// DeleteAllForUser удаляет все сессии пользователя.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "service.session.DeleteAllForUser"

	n, err := s.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// SweepExpired удаляет истёкшие сессии. Повторный вызов безопасен.
func (s *SessionStore) SweepExpired(ctx context.Context) (int64, error) {
	const op = "service.session.SweepExpired"

	n, err := s.storage.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *SessionStore) build(ctx context.Context, id, userID uuid.UUID, secret, deviceID string) (*models.Session, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	hash, err := s.hasher.Hash(ctx, secret)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	return &models.Session{
		ID:                id,
		UserID:            userID,
		DeviceID:          deviceID,
		RefreshSecretHash: hash,
		ExpiresAt:         now.Add(s.ttl),
		CreatedAt:         now,
	}, nil
}

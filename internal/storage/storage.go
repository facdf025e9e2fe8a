package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/сессия).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/id сессии).
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict — условная замена не применена: сессия уже ротирована,
	// удалена или истекла к моменту записи.
	ErrConflict = errors.New("conflict")
)

//go:generate mockgen -destination=../../mocks/storage_mock.go -package=mocks github.com/pribylovaa/go-goal-tracker/internal/storage UserStorage,SessionStorage

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionStorage выполняет операции над сессиями.
// Все чтения и записи идут по первичному ключу; сканирование допускается
// только в DeleteExpiredSessions.
type SessionStorage interface {
	// SaveSession сохраняет новую сессию.
	SaveSession(ctx context.Context, session *models.Session) error
	// SessionByID находит сессию по ID; истёкшие сессии считаются отсутствующими.
	SessionByID(ctx context.Context, id uuid.UUID, now time.Time) (*models.Session, error)
	// RotateSession атомарно удаляет сессию oldID, если она ещё существует, не истекла
	// и хранит хэш oldHash, и сохраняет next. Иначе возвращает ErrConflict и ничего не меняет.
	RotateSession(ctx context.Context, oldID uuid.UUID, oldHash string, next *models.Session, now time.Time) error
	// DeleteSession удаляет сессию; false, если её не было.
	DeleteSession(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteUserSessions удаляет все сессии пользователя и возвращает их число.
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)
	// DeleteExpiredSessions удаляет все сессии с expires_at <= now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Storage задает контракт работы с хранилищем.
type Storage interface {
	UserStorage
	SessionStorage
	Ping(ctx context.Context) error
	Close()
}

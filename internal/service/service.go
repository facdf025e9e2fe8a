// service содержит бизнес-логику auth-сервиса: вход через внешнего
// провайдера, ротацию refresh-токенов и отзыв сессий.
//
// Основные аспекты:
//   - Service не хранит состояние запроса и безопасен для конкурентного
//     использования при потокобезопасном хранилище.
//   - Ошибки возвращаются как *Error с видом ErrValidation, ErrUnauthorized
//     или ErrUnexpected; транспорт маппит вид на код ответа.
//   - Ротация refresh-токена выполняется условной заменой сессии в хранилище,
//     поэтому из двух конкурентных refresh с одним токеном успешен ровно один.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/metrics"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
	"github.com/pribylovaa/go-goal-tracker/internal/token"
)

// TokenCodec выпускает и проверяет токены (реализация: token.Codec).
type TokenCodec interface {
	Issue(user *models.User, sessionID uuid.UUID) (*models.TokenPair, error)
	VerifyAccess(raw string) (token.AccessClaims, bool)
	VerifyRefresh(raw string) (token.RefreshClaims, bool)
	RefreshTTL() time.Duration
}

// SecretHasher — медленный односторонний хэш секретов (реализация: hasher.Hasher).
type SecretHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Compare(ctx context.Context, hash, secret string) error
}

// IdentityVerifier проверяет assertion внешнего провайдера
// (реализация: identity.Verifier).
type IdentityVerifier interface {
	Verify(ctx context.Context, a models.Assertion) (*models.Identity, error)
}

// Deps — зависимости Service.
type Deps struct {
	Users    storage.UserStorage
	Sessions storage.SessionStorage
	Codec    TokenCodec
	Identity IdentityVerifier
	Hasher   SecretHasher
	Metrics  *metrics.Auth // может быть nil
	Now      func() time.Time
}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	users    storage.UserStorage
	codec    TokenCodec
	sessions *SessionStore
	broker   *IdentityBroker
	metrics  *metrics.Auth
}

// New создаёт новый экземпляр Service.
func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		users:    d.Users,
		codec:    d.Codec,
		sessions: NewSessionStore(d.Sessions, d.Hasher, d.Codec.RefreshTTL(), now),
		broker:   NewIdentityBroker(d.Users, d.Identity, now),
		metrics:  d.Metrics,
	}
}

// Sessions возвращает хранилище сессий (для janitor).
func (s *Service) Sessions() *SessionStore { return s.sessions }

// observe учитывает результат операции в метриках.
func (s *Service) observe(operation string, err error) {
	result := metrics.ResultOK

	switch KindOf(err) {
	case nil:
	case ErrValidation:
		result = metrics.ResultInvalid
	case ErrUnauthorized:
		result = metrics.ResultUnauthorized
	default:
		result = metrics.ResultError
	}

	s.metrics.Operation(operation, result)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Session — одна авторизованная сессия (устройство/вход).
//
// RefreshSecretHash хранит только медленный одноразовый хэш действующего
// refresh-токена; сам токен на сервере не хранится.
type Session struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	DeviceID          string
	RefreshSecretHash string
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// Expired сообщает, истёк ли срок жизни сессии на момент now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

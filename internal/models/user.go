package models

import (
	"time"

	"github.com/google/uuid"
)

// User — локальная учётная запись, привязанная к внешней идентичности.
type User struct {
	ID          uuid.UUID
	Email       string
	ExternalID  string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

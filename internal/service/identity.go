package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/identity"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/log"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/redact"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
)

// IdentityBroker сопоставляет проверенную внешнюю идентичность локальному
// пользователю, создавая его при первом входе.
type IdentityBroker struct {
	users    storage.UserStorage
	verifier IdentityVerifier
	now      func() time.Time
}

// NewIdentityBroker создаёт IdentityBroker.
func NewIdentityBroker(users storage.UserStorage, v IdentityVerifier, now func() time.Time) *IdentityBroker {
	if now == nil {
		now = time.Now
	}

	return &IdentityBroker{users: users, verifier: v, now: now}
}

// ResolveOrCreateUser проверяет assertion и возвращает пользователя с e-mail
// из подписанного identity token. E-mail из a.User не используется:
// клиент может подставить туда чужой адрес. Из a.User берётся только имя.
func (b *IdentityBroker) ResolveOrCreateUser(ctx context.Context, a models.Assertion) (*models.User, error) {
	const op = "service.identity.ResolveOrCreateUser"

	if strings.TrimSpace(a.IdentityToken) == "" {
		return nil, validationError(op, "identityToken")
	}

	lg := log.From(ctx)

	id, err := b.verifier.Verify(ctx, a)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidAssertion) {
			lg.Warn("identity_rejected", slog.String("op", op), slog.String("err", err.Error()))
			return nil, unauthorized(op, err)
		}

		return nil, unexpected(op, err)
	}

	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" || !id.EmailVerified {
		lg.Warn("identity_without_verified_email", slog.String("op", op))
		return nil, unauthorized(op, errNoEmail)
	}

	user, err := b.users.UserByEmail(ctx, email)
	if err == nil {
		lg.Debug("identity_resolved",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("subject", redact.Subject(id.Subject)),
		)
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, unexpected(op, err)
	}

	now := b.now().UTC()
	user = &models.User{
		ID:          uuid.New(),
		Email:       email,
		ExternalID:  id.Subject,
		DisplayName: displayName(a.User),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := b.users.SaveUser(ctx, user); err != nil {
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, unexpected(op, err)
		}

		// Параллельный первый вход с тем же e-mail: пользователя уже создал
		// другой запрос.
		existing, lerr := b.users.UserByEmail(ctx, email)
		if lerr != nil {
			return nil, unexpected(op, fmt.Errorf("lookup after conflict: %w", lerr))
		}

		return existing, nil
	}

	lg.Info("user_created",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(email)),
		slog.String("subject", redact.Subject(id.Subject)),
	)

	return user, nil
}

func displayName(u *models.AssertionUser) string {
	if u == nil {
		return ""
	}

	return strings.TrimSpace(u.Name)
}

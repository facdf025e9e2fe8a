package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/hasher"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/log"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/redact"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
	"github.com/pribylovaa/go-goal-tracker/internal/token"
)

// Имена операций для метрик.
const (
	opSignIn    = "sign_in"
	opRefresh   = "refresh"
	opLogout    = "logout"
	opLogoutAll = "logout_all"
)

// SignIn выполняет вход по assertion внешнего провайдера.
//
// Идентификатор сессии генерируется до выпуска токенов, поэтому sessionId
// в токенах и ключ сохранённой сессии совпадают с первой записи.
func (s *Service) SignIn(ctx context.Context, a models.Assertion, deviceID string) (res *models.AuthResult, err error) {
	const op = "service.auth.SignIn"
	defer func() { s.observe(opSignIn, err) }()

	user, err := s.broker.ResolveOrCreateUser(ctx, a)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New()

	pair, err := s.codec.Issue(user, sessionID)
	if err != nil {
		return nil, unexpected(op, err)
	}

	if _, err := s.sessions.Create(ctx, sessionID, user.ID, pair.RefreshToken, strings.TrimSpace(deviceID)); err != nil {
		return nil, unexpected(op, err)
	}

	log.From(ctx).Info("sign_in",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("session_id", sessionID.String()),
	)

	return &models.AuthResult{User: user, Tokens: pair}, nil
}

// Refresh обменивает refresh-токен на новую пару и ротирует сессию.
// Предъявленный токен после успешной ротации недействителен.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (res *models.AuthResult, err error) {
	const op = "service.auth.Refresh"
	defer func() { s.observe(opRefresh, err) }()

	if refreshToken == "" {
		return nil, validationError(op, "refreshToken")
	}

	lg := log.From(ctx)

	claims, ok := s.codec.VerifyRefresh(refreshToken)
	if !ok {
		lg.Debug("refresh_token_rejected",
			slog.String("op", op),
			slog.String("token", redact.Token(refreshToken)),
		)
		return nil, unauthorized(op, errTokenRejected)
	}

	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("refresh_session_not_found",
				slog.String("op", op),
				slog.String("session_id", claims.SessionID.String()),
			)
			return nil, unauthorized(op, errSessionGone)
		}

		return nil, unexpected(op, err)
	}

	if session.UserID != claims.UserID {
		lg.Warn("refresh_session_user_mismatch",
			slog.String("op", op),
			slog.String("session_id", session.ID.String()),
		)
		return nil, unauthorized(op, errSessionMismatch)
	}

	if err := s.sessions.VerifySecret(ctx, session, refreshToken); err != nil {
		if errors.Is(err, hasher.ErrMismatch) {
			lg.Warn("refresh_secret_mismatch",
				slog.String("op", op),
				slog.String("session_id", session.ID.String()),
			)
			return nil, unauthorized(op, errSecretMismatch)
		}

		return nil, unexpected(op, err)
	}

	user, err := s.users.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, unauthorized(op, errUserGone)
		}

		return nil, unexpected(op, err)
	}

	nextID := uuid.New()

	pair, err := s.codec.Issue(user, nextID)
	if err != nil {
		return nil, unexpected(op, err)
	}

	if _, err := s.sessions.Rotate(ctx, session, nextID, pair.RefreshToken); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			lg.Warn("rotate_conflict",
				slog.String("op", op),
				slog.String("session_id", session.ID.String()),
			)
			return nil, unauthorized(op, errRotated)
		}

		return nil, unexpected(op, err)
	}

	lg.Debug("session_rotated",
		slog.String("op", op),
		slog.String("from", session.ID.String()),
		slog.String("to", nextID.String()),
	)

	return &models.AuthResult{User: user, Tokens: pair}, nil
}

// Logout удаляет сессию, к которой привязан access-токен.
// Уже удалённая сессия — ErrUnauthorized.
func (s *Service) Logout(ctx context.Context, accessToken string) (err error) {
	const op = "service.auth.Logout"
	defer func() { s.observe(opLogout, err) }()

	claims, err := s.authenticate(op, accessToken)
	if err != nil {
		return err
	}

	deleted, err := s.sessions.Delete(ctx, claims.SessionID)
	if err != nil {
		return unexpected(op, err)
	}

	if !deleted {
		log.From(ctx).Info("logout_session_not_found",
			slog.String("op", op),
			slog.String("session_id", claims.SessionID.String()),
		)
		return unauthorized(op, errSessionGone)
	}

	return nil
}

// LogoutAll удаляет все сессии пользователя и возвращает их число.
// Ноль — корректный результат.
func (s *Service) LogoutAll(ctx context.Context, accessToken string) (n int64, err error) {
	const op = "service.auth.LogoutAll"
	defer func() { s.observe(opLogoutAll, err) }()

	claims, err := s.authenticate(op, accessToken)
	if err != nil {
		return 0, err
	}

	n, err = s.sessions.DeleteAllForUser(ctx, claims.UserID)
	if err != nil {
		return 0, unexpected(op, err)
	}

	log.From(ctx).Info("logout_all",
		slog.String("op", op),
		slog.String("user_id", claims.UserID.String()),
		slog.Int64("sessions", n),
	)

	return n, nil
}

// Authenticate проверяет access-токен. Проверка только криптографическая:
// отозванная сессия обнаруживается при refresh, не здесь.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (token.AccessClaims, error) {
	const op = "service.auth.Authenticate"

	return s.authenticate(op, accessToken)
}

func (s *Service) authenticate(op, accessToken string) (token.AccessClaims, error) {
	claims, ok := s.codec.VerifyAccess(accessToken)
	if !ok {
		return token.AccessClaims{}, unauthorized(op, errTokenRejected)
	}

	return claims, nil
}
